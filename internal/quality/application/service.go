package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fleet-risk-engine/internal/eventing"
	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/observability/metrics"
	quality "fleet-risk-engine/internal/quality/domain"
)

// Store is the part of the signal store the quality service reads and writes.
type Store interface {
	fleet.PredictionRepository
	fleet.RcaCapaRepository
}

// Report is an insight summary plus the records it was derived from.
type Report struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Insights    []quality.Insight     `json:"insights"`
	Records     []fleet.RcaCapaRecord `json:"records"`
}

// Service summarizes quality data and moves RCA/CAPA records through their workflow.
type Service struct {
	store     Store
	publisher eventing.Publisher
	logger    *zap.Logger
	clock     fleet.Clock
}

// ServiceOption customizes the quality service.
type ServiceOption func(*Service)

// WithPublisher assigns an event publisher.
func WithPublisher(publisher eventing.Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = publisher
	}
}

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

// NewService constructs a quality service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("quality: nil store")
	}
	service := &Service{
		store:  store,
		logger: zap.NewNop(),
		clock:  fleet.SystemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Insights derives the current insight summary. Nothing is cached.
func (s *Service) Insights(ctx context.Context) ([]quality.Insight, error) {
	report, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}
	return report.Insights, nil
}

// Report derives insights together with the full record list.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	records, err := s.store.ListRcaCapaRecords(ctx)
	if err != nil {
		return nil, err
	}
	predictions, err := s.store.ListActivePredictions(ctx, "")
	if err != nil {
		return nil, err
	}
	insights, err := quality.SummarizeQuality(records, predictions)
	if err != nil {
		return nil, err
	}
	for _, insight := range insights {
		metrics.IncInsight(insight.Category)
	}
	return &Report{GeneratedAt: s.clock.Now().UTC(), Insights: insights, Records: records}, nil
}

// TransitionRecord moves a record forward. Closing stamps ResolvedAt; closed records never move.
func (s *Service) TransitionRecord(ctx context.Context, id string, status fleet.RcaStatus) (*fleet.RcaCapaRecord, error) {
	current, err := s.store.GetRcaCapaRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := current.Transition(status, s.clock.Now())
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateRcaCapaStatus(ctx, id, current.Status, next.Status, next.ResolvedAt)
	if err != nil {
		return nil, err
	}

	s.logger.Info("rca record transitioned",
		zap.String("record_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(updated.Status)),
	)
	if s.publisher != nil {
		event := eventing.RcaCapaTransitioned{
			RecordID:   updated.ID,
			Component:  updated.Component,
			From:       string(current.Status),
			To:         string(updated.Status),
			ResolvedAt: updated.ResolvedAt,
			OccurredAt: s.clock.Now().UTC(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("quality event publish failed", zap.Error(err))
		}
	}
	return updated, nil
}
