package model

import (
	"fmt"
	"strings"
)

// Correlation ids embed the source site so a result line can be routed back
// to its posting: "<code>-<site-local id>". Codes are two letters to keep
// request payloads small.
var sourceCodes = map[string]string{
	"indeed":        "in",
	"linkedin":      "li",
	"zip_recruiter": "zr",
	"glassdoor":     "gd",
	"google":        "go",
}

var codeSources = func() map[string]string {
	m := make(map[string]string, len(sourceCodes))
	for source, code := range sourceCodes {
		m[code] = source
	}
	return m
}()

// CorrelationID builds the request correlation id for a posting.
func CorrelationID(key Key) (string, error) {
	code, ok := sourceCodes[key.Source]
	if !ok {
		return "", fmt.Errorf("no source code registered for %q", key.Source)
	}
	if key.ID == "" {
		return "", fmt.Errorf("empty posting id for source %q", key.Source)
	}
	return code + "-" + key.ID, nil
}

// ParseCorrelationID recovers the posting key from a result line's
// correlation id.
func ParseCorrelationID(cid string) (Key, error) {
	code, id, ok := strings.Cut(cid, "-")
	if !ok || id == "" {
		return Key{}, fmt.Errorf("malformed correlation id %q", cid)
	}
	source, ok := codeSources[code]
	if !ok {
		return Key{}, fmt.Errorf("unknown source code %q in correlation id %q", code, cid)
	}
	return Key{Source: source, ID: id}, nil
}

// KnownSource reports whether a scraper site name has a registered code.
func KnownSource(source string) bool {
	_, ok := sourceCodes[source]
	return ok
}
