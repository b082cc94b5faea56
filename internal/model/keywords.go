package model

import "strings"

// ParseKeywords splits the model's comma-separated keyword string into an
// ordered list of trimmed, non-empty keywords. An empty or whitespace-only
// output yields an empty (non-nil) list so the posting still counts as
// reconciled.
func ParseKeywords(s string) []string {
	parts := strings.Split(s, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		kw := strings.TrimSpace(p)
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
	}
	return keywords
}
