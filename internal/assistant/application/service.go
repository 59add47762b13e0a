package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	assistant "fleet-risk-engine/internal/assistant/domain"
	fleet "fleet-risk-engine/internal/fleet/domain"
	risk "fleet-risk-engine/internal/risk/domain"
)

const defaultHistoryLimit = 20

// Store is the part of the signal store the assistant reads.
type Store interface {
	fleet.VehicleRepository
	fleet.PredictionRepository
}

// ContextBuilder summarizes a vehicle and its ranked predictions for a responder.
type ContextBuilder struct {
	store Store
}

// NewContextBuilder constructs a context builder.
func NewContextBuilder(store Store) (*ContextBuilder, error) {
	if store == nil {
		return nil, errors.New("assistant: nil store")
	}
	return &ContextBuilder{store: store}, nil
}

// Build returns the vehicle and prediction summaries. An empty vehicleID yields an empty context.
func (b *ContextBuilder) Build(ctx context.Context, vehicleID string) (assistant.ReplyContext, error) {
	var reply assistant.ReplyContext
	if vehicleID == "" {
		return reply, nil
	}
	vehicle, err := b.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return reply, err
	}
	reply.VehicleSummary = fmt.Sprintf("Vehicle: %d %s %s\nMileage: %d km\nHealth Score: %s%%",
		vehicle.Year, vehicle.Make, vehicle.Model, vehicle.Mileage, formatScore(vehicle.HealthScore))

	predictions, err := b.store.ListActivePredictions(ctx, vehicleID)
	if err != nil {
		return reply, err
	}
	ranked, err := risk.RankFailures(predictions)
	if err != nil {
		return reply, err
	}
	if len(ranked) > 0 {
		lines := make([]string, 0, len(ranked)+1)
		lines = append(lines, "Predicted Issues:")
		for _, p := range ranked {
			line := fmt.Sprintf("- %s: %s risk (%d%%)", p.Component, p.RiskLevel, int(math.Round(p.Probability*100)))
			if p.EstimatedDaysToFailure != nil {
				line += fmt.Sprintf(", about %d days to failure", *p.EstimatedDaysToFailure)
			}
			lines = append(lines, line)
		}
		reply.PredictionSummary = strings.Join(lines, "\n")
	}
	return reply, nil
}

// Service runs chat sessions against a responder and keeps their history in memory.
type Service struct {
	builder   *ContextBuilder
	responder assistant.Responder
	logger    *zap.Logger
	clock     fleet.Clock
	limit     int

	mu       sync.Mutex
	sessions map[string][]assistant.Message
}

// ServiceOption customizes the assistant service.
type ServiceOption func(*Service)

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock fleet.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithHistoryLimit bounds the messages kept per session.
func WithHistoryLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// NewService constructs an assistant service. A nil responder makes Chat return ErrResponderUnavailable.
func NewService(builder *ContextBuilder, responder assistant.Responder, opts ...ServiceOption) (*Service, error) {
	if builder == nil {
		return nil, errors.New("assistant: nil context builder")
	}
	service := &Service{
		builder:   builder,
		responder: responder,
		logger:    zap.NewNop(),
		clock:     fleet.SystemClock{},
		limit:     defaultHistoryLimit,
		sessions:  make(map[string][]assistant.Message),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Chat answers message within sessionID, optionally grounded on one vehicle.
func (s *Service) Chat(ctx context.Context, sessionID, vehicleID, message string) (string, error) {
	if s.responder == nil {
		return "", assistant.ErrResponderUnavailable
	}
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" {
		return "", fleet.Invalid("session_id", "required")
	}
	if message == "" {
		return "", fleet.Invalid("message", "required")
	}

	replyContext, err := s.builder.Build(ctx, vehicleID)
	if err != nil {
		return "", err
	}
	replyContext.ConversationHistory = s.History(sessionID)

	reply, err := s.responder.GenerateReply(ctx, replyContext, message)
	if err != nil {
		s.logger.Warn("assistant reply failed", zap.String("session_id", sessionID), zap.Error(err))
		return "", err
	}

	now := s.clock.Now().UTC()
	s.mu.Lock()
	history := append(s.sessions[sessionID],
		assistant.Message{Role: assistant.RoleUser, Content: message, VehicleID: vehicleID, Timestamp: now},
		assistant.Message{Role: assistant.RoleAssistant, Content: reply, VehicleID: vehicleID, Timestamp: now},
	)
	if len(history) > s.limit {
		history = history[len(history)-s.limit:]
	}
	s.sessions[sessionID] = history
	s.mu.Unlock()
	return reply, nil
}

// History returns a copy of the session's messages, oldest first.
func (s *Service) History(sessionID string) []assistant.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]assistant.Message(nil), s.sessions[sessionID]...)
}

func formatScore(score float64) string {
	if score == math.Trunc(score) {
		return fmt.Sprintf("%.0f", score)
	}
	return fmt.Sprintf("%.2f", score)
}
