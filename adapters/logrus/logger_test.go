package logrus

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_WritesKeyValuePairsAsFields(t *testing.T) {
	var out bytes.Buffer
	logger := New(Options{Level: "debug", Output: &out})

	logger.Info("create_user succeeded", "user_id", "user-1", "duration_ms", 12)

	record := decodeLine(t, out.String())
	if record["msg"] != "create_user succeeded" || record["user_id"] != "user-1" {
		t.Fatalf("unexpected log record %#v", record)
	}
	if record["level"] != "info" {
		t.Fatalf("expected info level, got %v", record["level"])
	}
}

func TestLogger_WithFieldsAndProviderName(t *testing.T) {
	var out bytes.Buffer
	provider := NewProvider(New(Options{Output: &out}))

	logger := provider.GetLogger("accounts").WithContext(context.Background())
	fieldsLogger, ok := logger.(*Logger)
	if !ok {
		t.Fatalf("expected logrus logger, got %T", logger)
	}
	fieldsLogger.WithFields(map[string]any{"event_type": "accounts.update_user"}).Warn("update_user failed", "orphan")

	record := decodeLine(t, out.String())
	if record["logger"] != "accounts" || record["event_type"] != "accounts.update_user" {
		t.Fatalf("unexpected log record %#v", record)
	}
	if record["arg"] != "orphan" {
		t.Fatalf("expected odd trailing arg to be kept, got %#v", record)
	}
}

func TestLogger_RespectsLevel(t *testing.T) {
	var out bytes.Buffer
	logger := New(Options{Level: "warn", Output: &out})
	logger.Debug("hidden")
	logger.Info("hidden")
	if out.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", out.String())
	}
}

func decodeLine(t *testing.T, raw string) map[string]any {
	t.Helper()
	line := strings.TrimSpace(raw)
	record := map[string]any{}
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("decode log line %q: %v", line, err)
	}
	return record
}
