package application

import (
	"context"
	"errors"

	fleet "fleet-risk-engine/internal/fleet/domain"
	risk "fleet-risk-engine/internal/risk/domain"
)

// Store is the part of the signal store the ranker reads.
type Store interface {
	fleet.VehicleRepository
	fleet.PredictionRepository
}

// Service ranks vehicles and failures from the current signal store contents.
type Service struct {
	store Store
}

// NewService constructs a ranking service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("risk service: nil store")
	}
	return &Service{store: store}, nil
}

// RankFleet orders every vehicle by its most urgent active prediction.
func (s *Service) RankFleet(ctx context.Context) ([]risk.VehicleRank, error) {
	vehicles, err := s.store.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	predictions, err := s.store.ListActivePredictions(ctx, "")
	if err != nil {
		return nil, err
	}
	return risk.RankVehicles(vehicles, risk.GroupByVehicle(predictions))
}

// VehicleFailures returns one vehicle's active predictions, most urgent first.
func (s *Service) VehicleFailures(ctx context.Context, vehicleID string) ([]fleet.PredictedFailure, error) {
	if vehicleID == "" {
		return nil, fleet.Invalid("vehicle_id", "required")
	}
	if _, err := s.store.GetVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}
	predictions, err := s.store.ListActivePredictions(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return risk.RankFailures(predictions)
}
