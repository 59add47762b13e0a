package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"fleet-risk-engine/internal/platform/config"
)

func testConfig() config.Config {
	return config.Config{
		Store:     config.Store{Driver: config.StoreMemory},
		Scoring:   config.DefaultScoring(),
		Scheduler: config.DefaultScheduler(),
	}
}

func TestBuildContainerRejectsNilLogger(t *testing.T) {
	if _, err := BuildContainer(context.Background(), testConfig(), nil); err == nil {
		t.Fatal("expected nil logger error")
	}
}

func TestBuildContainerMemory(t *testing.T) {
	c, err := BuildContainer(context.Background(), testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if c.Postgres != nil {
		t.Fatal("memory driver must not open postgres")
	}
	ranks, err := c.Risk.RankFleet(context.Background())
	if err != nil || len(ranks) != 10 {
		t.Fatalf("expected 10 ranks, got %d (%v)", len(ranks), err)
	}
	if _, err := c.Assistant.Chat(context.Background(), "s1", "", "hi"); err == nil {
		t.Fatal("assistant must be unavailable without an api key")
	}
}

func TestBuildContainerWiresNotifications(t *testing.T) {
	events := make(chan string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Meta struct {
				Event string `json:"event"`
			} `json:"meta"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		events <- payload.Meta.Event
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Notify = config.Notify{WebhookURL: server.URL, Cooldown: time.Minute}
	c, err := BuildContainer(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if _, err := c.Scheduling.Cancel(context.Background(), "appt-001"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	select {
	case event := <-events:
		if event != "cancelled" {
			t.Fatalf("unexpected event %q", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestBuildContainerRejectsBadTemplate(t *testing.T) {
	cfg := testConfig()
	cfg.Notify = config.Notify{WebhookURL: "http://127.0.0.1:1", Template: "{{.Broken"}
	if _, err := BuildContainer(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected template parse error")
	}
}
