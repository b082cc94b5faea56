package model

import (
	"reflect"
	"testing"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	key := Key{Source: "indeed", ID: "job-123-abc"}

	cid, err := CorrelationID(key)
	if err != nil {
		t.Fatalf("CorrelationID failed: %v", err)
	}
	if cid != "in-job-123-abc" {
		t.Errorf("expected 'in-job-123-abc', got %q", cid)
	}

	got, err := ParseCorrelationID(cid)
	if err != nil {
		t.Fatalf("ParseCorrelationID failed: %v", err)
	}
	if got != key {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, key)
	}
}

func TestCorrelationIDUnknownSource(t *testing.T) {
	if _, err := CorrelationID(Key{Source: "craigslist", ID: "1"}); err == nil {
		t.Error("expected error for unregistered source")
	}
}

func TestParseCorrelationIDMalformed(t *testing.T) {
	for _, cid := range []string{"", "in", "in-", "xx-123"} {
		if _, err := ParseCorrelationID(cid); err == nil {
			t.Errorf("expected error for %q", cid)
		}
	}
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"typical", "Go, Kubernetes,Terraform , AWS", []string{"Go", "Kubernetes", "Terraform", "AWS"}},
		{"empty", "", []string{}},
		{"whitespace only", "  ,  , ", []string{}},
		{"single", "Python", []string{"Python"}},
		{"preserves order", "c, b, a", []string{"c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKeywords(tt.input)
			if got == nil {
				t.Fatal("ParseKeywords must never return nil")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseBatchStatus(t *testing.T) {
	for _, s := range []string{"init", "processing", "retry", "cancelled", "completed", "partial", "error"} {
		if _, err := ParseBatchStatus(s); err != nil {
			t.Errorf("valid status %q rejected: %v", s, err)
		}
	}
	if _, err := ParseBatchStatus("pending"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusPartial.Terminal() || !StatusError.Terminal() {
		t.Error("completed, partial and error must be terminal")
	}
	if StatusProcessing.Terminal() || StatusRetry.Terminal() {
		t.Error("processing and retry must not be terminal")
	}
	if !StatusInit.Dispatchable() || !StatusRetry.Dispatchable() || !StatusCancelled.Dispatchable() {
		t.Error("init, retry and cancelled must be dispatchable")
	}
	if StatusProcessing.Dispatchable() {
		t.Error("processing must not be dispatchable")
	}
}
