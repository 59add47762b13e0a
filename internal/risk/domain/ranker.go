package risk

import (
	"sort"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

// VehicleRank is a vehicle with its most urgent active prediction.
type VehicleRank struct {
	Vehicle     fleet.Vehicle           `json:"vehicle"`
	Top         *fleet.PredictedFailure `json:"top_prediction,omitempty"`
	ActiveCount int                     `json:"active_predictions"`
}

// RankFailures returns a copy of predictions ordered most urgent first:
// risk level desc, probability desc, days to failure asc (unknown last), detection time asc, id asc.
func RankFailures(predictions []fleet.PredictedFailure) ([]fleet.PredictedFailure, error) {
	if err := fleet.ValidatePredictions(predictions); err != nil {
		return nil, err
	}
	ranked := make([]fleet.PredictedFailure, len(predictions))
	copy(ranked, predictions)
	sort.SliceStable(ranked, func(i, j int) bool {
		return moreUrgent(ranked[i], ranked[j])
	})
	return ranked, nil
}

// RankVehicles orders vehicles by their top active prediction. Vehicles without active
// predictions follow, lowest health score first, then by id.
func RankVehicles(vehicles []fleet.Vehicle, predictionsByVehicle map[string][]fleet.PredictedFailure) ([]VehicleRank, error) {
	ranks := make([]VehicleRank, 0, len(vehicles))
	for _, vehicle := range vehicles {
		rank := VehicleRank{Vehicle: vehicle}
		for _, p := range predictionsByVehicle[vehicle.ID] {
			if err := p.Validate(); err != nil {
				return nil, err
			}
			if p.VehicleID != vehicle.ID {
				return nil, fleet.Invalid("prediction.vehicle_id", "belongs to "+p.VehicleID+", not "+vehicle.ID)
			}
			if !p.IsActive() {
				continue
			}
			rank.ActiveCount++
			if rank.Top == nil || moreUrgent(p, *rank.Top) {
				top := p
				rank.Top = &top
			}
		}
		ranks = append(ranks, rank)
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		switch {
		case a.Top != nil && b.Top == nil:
			return true
		case a.Top == nil && b.Top != nil:
			return false
		case a.Top != nil && b.Top != nil:
			if moreUrgent(*a.Top, *b.Top) {
				return true
			}
			if moreUrgent(*b.Top, *a.Top) {
				return false
			}
		default:
			if a.Vehicle.HealthScore != b.Vehicle.HealthScore {
				return a.Vehicle.HealthScore < b.Vehicle.HealthScore
			}
		}
		return a.Vehicle.ID < b.Vehicle.ID
	})
	return ranks, nil
}

// GroupByVehicle indexes predictions by vehicle id.
func GroupByVehicle(predictions []fleet.PredictedFailure) map[string][]fleet.PredictedFailure {
	grouped := make(map[string][]fleet.PredictedFailure)
	for _, p := range predictions {
		grouped[p.VehicleID] = append(grouped[p.VehicleID], p)
	}
	return grouped
}

func moreUrgent(a, b fleet.PredictedFailure) bool {
	ra, _ := a.RiskLevel.Rank()
	rb, _ := b.RiskLevel.Rank()
	if ra != rb {
		return ra > rb
	}
	if a.Probability != b.Probability {
		return a.Probability > b.Probability
	}
	switch {
	case a.EstimatedDaysToFailure != nil && b.EstimatedDaysToFailure == nil:
		return true
	case a.EstimatedDaysToFailure == nil && b.EstimatedDaysToFailure != nil:
		return false
	case a.EstimatedDaysToFailure != nil && b.EstimatedDaysToFailure != nil:
		if *a.EstimatedDaysToFailure != *b.EstimatedDaysToFailure {
			return *a.EstimatedDaysToFailure < *b.EstimatedDaysToFailure
		}
	}
	if !a.DetectedAt.Equal(b.DetectedAt) {
		return a.DetectedAt.Before(b.DetectedAt)
	}
	return a.ID < b.ID
}
