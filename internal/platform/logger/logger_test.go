package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	got := sanitizeKVs([]interface{}{"api_key", "sk-123", "company", "Acme", "dangling"})
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	if got[1] != "[REDACTED]" {
		t.Fatalf("expected api_key redacted, got %v", got[1])
	}
	if got[3] != "Acme" {
		t.Fatalf("expected company untouched, got %v", got[3])
	}
	if got[4] != "dangling" {
		t.Fatalf("expected trailing key kept, got %v", got[4])
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Info("ignored", "k", "v")
	l.Warn("ignored")
	if l.With("k", "v") != nil {
		t.Fatal("expected nil logger from nil With")
	}
	Nop().Info("discarded", "k", 1)
}
