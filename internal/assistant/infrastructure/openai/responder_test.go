package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	assistant "fleet-risk-engine/internal/assistant/domain"
)

func TestNewResponderRequiresKey(t *testing.T) {
	if _, err := NewResponder(Config{}, nil); err == nil {
		t.Fatal("expected api key error")
	}
}

func TestGenerateReply(t *testing.T) {
	var got chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Book a brake service today. "}}]}`))
	}))
	defer server.Close()

	responder, err := NewResponder(Config{BaseURL: server.URL + "/v1/", APIKey: "sk-test", Model: "test-model"}, server.Client())
	if err != nil {
		t.Fatalf("responder: %v", err)
	}
	reply, err := responder.GenerateReply(context.Background(), assistant.ReplyContext{
		VehicleSummary:    "Vehicle: 2022 Hyundai Creta",
		PredictionSummary: "Predicted Issues:\n- Brake Pads: critical risk (89%)",
		ConversationHistory: []assistant.Message{
			{Role: assistant.RoleUser, Content: "hi"},
			{Role: assistant.RoleAssistant, Content: "hello"},
		},
	}, "Is it safe to drive?")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply != "Book a brake service today." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got.Model != "test-model" || len(got.Messages) != 4 {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(got.Messages[0].Content, "Brake Pads: critical risk (89%)") {
		t.Fatalf("system message missing context: %q", got.Messages[0].Content)
	}
	if last := got.Messages[3]; last.Role != "user" || last.Content != "Is it safe to drive?" {
		t.Fatalf("unexpected last message %+v", last)
	}
}

func TestGenerateReplyErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	responder, err := NewResponder(Config{BaseURL: server.URL, APIKey: "sk-test"}, server.Client())
	if err != nil {
		t.Fatalf("responder: %v", err)
	}
	if _, err := responder.GenerateReply(context.Background(), assistant.ReplyContext{}, "hi"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestGenerateReplyFallsBackOnEmptyChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	responder, _ := NewResponder(Config{BaseURL: server.URL, APIKey: "sk-test"}, server.Client())
	reply, err := responder.GenerateReply(context.Background(), assistant.ReplyContext{}, "hi")
	if err != nil || reply != fallbackReply {
		t.Fatalf("expected fallback reply, got %q (%v)", reply, err)
	}
}
