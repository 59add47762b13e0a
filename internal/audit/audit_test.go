package audit

import (
	"context"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	if got := ClientIP(req); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Real-IP", "10.0.0.2")
	if got := ClientIP(req); got != "10.0.0.2" {
		t.Fatalf("expected real ip, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestZapLoggerFillsDefaults(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := NewZapLogger(zap.New(core))
	err := logger.Log(context.Background(), Entry{
		Actor:        "ops-1",
		Action:       "appointment.cancel",
		ResourceType: "appointment",
		ResourceID:   "appt-002",
		Metadata:     []byte(`{"event":"cancel"}`),
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["action"] != "appointment.cancel" || fields["payload_digest"] != DigestJSON([]byte(`{"event":"cancel"}`)) {
		t.Fatalf("unexpected fields %+v", fields)
	}
	if id, _ := fields["id"].(string); len(id) != len("audit-")+32 {
		t.Fatalf("unexpected id %q", id)
	}
}
