package assistant

import (
	"context"
	"errors"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrResponderUnavailable is returned when no conversational backend is configured.
var ErrResponderUnavailable = errors.New("assistant: responder not configured")

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplyContext is the structured fleet context handed to a responder.
type ReplyContext struct {
	VehicleSummary      string    `json:"vehicle_summary,omitempty"`
	PredictionSummary   string    `json:"prediction_summary,omitempty"`
	ConversationHistory []Message `json:"conversation_history,omitempty"`
}

// Responder generates a reply for the user message given the fleet context.
type Responder interface {
	GenerateReply(ctx context.Context, reply ReplyContext, userMessage string) (string, error)
}
