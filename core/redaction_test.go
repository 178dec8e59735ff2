package core

import (
	"context"
	"testing"
)

func TestRedactSensitiveMapKeepsTraceabilityFields(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"user_id":        "user-1",
		"request_id":     "req_1",
		"email":          "asha@x.com",
		"recovery_phone": "9876543210",
		"masked_email":   "as**@x.com",
		"has_email":      true,
		"nested":         map[string]any{"phone": "9876543210", "trace_id": "trace_nested"},
		"contacts":       []any{map[string]any{"email_fingerprint": "fp"}, map[string]any{"event_id": "evt_1"}},
	})

	if redacted["user_id"] != "user-1" || redacted["request_id"] != "req_1" {
		t.Fatalf("expected traceability ids to remain visible, got %#v", redacted)
	}
	if redacted["email"] != RedactedValue || redacted["recovery_phone"] != RedactedValue {
		t.Fatalf("expected contact values to be redacted, got %#v", redacted)
	}
	if redacted["masked_email"] != "as**@x.com" || redacted["has_email"] != true {
		t.Fatalf("expected masked and presence fields to stay, got %#v", redacted)
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok || nested["phone"] != RedactedValue || nested["trace_id"] != "trace_nested" {
		t.Fatalf("unexpected nested redaction %#v", redacted["nested"])
	}
	contacts, ok := redacted["contacts"].([]any)
	if !ok || contacts[0].(map[string]any)["email_fingerprint"] != RedactedValue {
		t.Fatalf("expected fingerprints in slices to be redacted, got %#v", redacted["contacts"])
	}
}

func TestLogWithLevelRedactsContactFields(t *testing.T) {
	logger := newCaptureLogger()
	logWithLevel(context.Background(), logger, "warn", "contact rejected", map[string]any{
		"user_id": "user-1",
		"phone":   "9876543210",
	})
	records := logger.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].fields["phone"] != RedactedValue || records[0].fields["user_id"] != "user-1" {
		t.Fatalf("expected redacted log fields, got %#v", records[0].fields)
	}
}
