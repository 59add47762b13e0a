package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleet-risk-engine/internal/eventing"
	fleet "fleet-risk-engine/internal/fleet/domain"
	health "fleet-risk-engine/internal/health/domain"
	"fleet-risk-engine/internal/observability/metrics"
)

// Store is the part of the signal store the health service reads and writes.
type Store interface {
	fleet.VehicleRepository
	fleet.TelematicsRepository
	fleet.PredictionRepository
}

// Result is the outcome of one vehicle recompute.
type Result struct {
	VehicleID string           `json:"vehicle_id"`
	Previous  float64          `json:"previous"`
	Score     float64          `json:"score"`
	Changed   bool             `json:"changed"`
	Breakdown health.Breakdown `json:"breakdown"`
}

// Failure records a vehicle whose signals could not be scored.
type Failure struct {
	VehicleID string `json:"vehicle_id"`
	Reason    string `json:"reason"`
}

// FleetReport is the outcome of a fleet recompute.
type FleetReport struct {
	Results  []Result  `json:"results"`
	Failures []Failure `json:"failures,omitempty"`
}

// Service recomputes and persists health scores.
type Service struct {
	store       Store
	scorer      *health.Scorer
	publisher   eventing.Publisher
	logger      *zap.Logger
	clock       fleet.Clock
	concurrency int
}

// ServiceOption customizes the health service.
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

// WithConcurrency bounds parallel scoring in RecomputeFleet.
func WithConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService constructs a health service.
func NewService(store Store, scorer *health.Scorer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("health: nil store")
	}
	if scorer == nil {
		return nil, errors.New("health: nil scorer")
	}
	service := &Service{
		store:       store,
		scorer:      scorer,
		logger:      zap.NewNop(),
		clock:       fleet.SystemClock{},
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Inspect scores a vehicle from current signals without persisting anything.
func (s *Service) Inspect(ctx context.Context, vehicleID string) (health.Breakdown, error) {
	vehicle, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return health.Breakdown{}, err
	}
	predictions, err := s.store.ListActivePredictions(ctx, vehicleID)
	if err != nil {
		return health.Breakdown{}, err
	}
	latest, err := s.store.GetLatestTelematics(ctx, vehicleID)
	if err != nil {
		return health.Breakdown{}, err
	}
	return s.scorer.Breakdown(*vehicle, latest, predictions)
}

// RecomputeVehicle scores one vehicle and persists the new score.
func (s *Service) RecomputeVehicle(ctx context.Context, vehicleID string) (*Result, error) {
	start := time.Now()
	defer func() { metrics.ObserveRecompute("vehicle", time.Since(start)) }()

	vehicle, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	predictions, err := s.store.ListActivePredictions(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return s.recompute(ctx, *vehicle, predictions)
}

// RecomputeFleet rescores every vehicle in parallel. Vehicles with invalid signals are
// reported as failures; any other error aborts the run.
func (s *Service) RecomputeFleet(ctx context.Context) (*FleetReport, error) {
	start := time.Now()
	defer func() { metrics.ObserveRecompute("fleet", time.Since(start)) }()

	vehicles, err := s.store.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	predictions, err := s.store.ListActivePredictions(ctx, "")
	if err != nil {
		return nil, err
	}
	byVehicle := make(map[string][]fleet.PredictedFailure)
	for _, p := range predictions {
		byVehicle[p.VehicleID] = append(byVehicle[p.VehicleID], p)
	}

	var (
		mu     sync.Mutex
		report FleetReport
	)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, vehicle := range vehicles {
		vehicle := vehicle
		group.Go(func() error {
			result, err := s.recompute(gctx, vehicle, byVehicle[vehicle.ID])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fleet.IsValidation(err) {
					report.Failures = append(report.Failures, Failure{VehicleID: vehicle.ID, Reason: err.Error()})
					return nil
				}
				return err
			}
			report.Results = append(report.Results, *result)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Results, func(i, j int) bool { return report.Results[i].VehicleID < report.Results[j].VehicleID })
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].VehicleID < report.Failures[j].VehicleID })
	s.logger.Info("fleet health recomputed",
		zap.Int("vehicles", len(vehicles)),
		zap.Int("scored", len(report.Results)),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &report, nil
}

func (s *Service) recompute(ctx context.Context, vehicle fleet.Vehicle, predictions []fleet.PredictedFailure) (*Result, error) {
	latest, err := s.store.GetLatestTelematics(ctx, vehicle.ID)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.scorer.Breakdown(vehicle, latest, predictions)
	if err != nil {
		metrics.ObserveScoring(metrics.ResultError)
		return nil, err
	}
	metrics.ObserveScoring(metrics.ResultSuccess)

	result := &Result{
		VehicleID: vehicle.ID,
		Previous:  vehicle.HealthScore,
		Score:     breakdown.Score,
		Changed:   breakdown.Score != vehicle.HealthScore,
		Breakdown: breakdown,
	}
	if !result.Changed {
		return result, nil
	}

	score := breakdown.Score
	if _, err := s.store.UpdateVehicle(ctx, vehicle.ID, fleet.VehiclePatch{HealthScore: &score}); err != nil {
		return nil, err
	}
	s.publish(ctx, eventing.HealthScoreUpdated{
		VehicleID:  vehicle.ID,
		Previous:   vehicle.HealthScore,
		Score:      score,
		Band:       breakdown.Band,
		OccurredAt: s.clock.Now(),
	})
	return result, nil
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("health event publish failed", zap.Error(err))
	}
}
