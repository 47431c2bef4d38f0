package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]any{"api_key", "sk-123", "Authorization", "Bearer x", "path", "/ask/chat"})

	if out[1] != redacted {
		t.Errorf("expected api_key redacted, got %v", out[1])
	}
	if out[3] != redacted {
		t.Errorf("expected Authorization redacted, got %v", out[3])
	}
	if out[5] != "/ask/chat" {
		t.Errorf("expected path kept, got %v", out[5])
	}
}

func TestSanitizeOddKVs(t *testing.T) {
	out := sanitizeKVs([]any{"conversation_id", "c1", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Errorf("unexpected output %v", out)
	}
}

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("component", "tutor").Info("turn stored", "conversation_id", "c1", "token", "abc")
	l.Debug("hidden")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["component"] != "tutor" || fields["conversation_id"] != "c1" {
		t.Errorf("unexpected fields %v", fields)
	}
	if fields["token"] != redacted {
		t.Errorf("expected token redacted, got %v", fields["token"])
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New("development", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
	l, err := New("production", "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("dropped")
}
