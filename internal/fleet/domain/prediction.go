package fleet

import (
	"math"
	"time"
)

// RiskLevel is the ordinal severity of a predicted failure.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank returns the ordinal of the level (low=1 .. critical=4) and false for unknown levels.
func (r RiskLevel) Rank() (int, bool) {
	switch r {
	case RiskLow:
		return 1, true
	case RiskMedium:
		return 2, true
	case RiskHigh:
		return 3, true
	case RiskCritical:
		return 4, true
	default:
		return 0, false
	}
}

// IsValid reports whether r is one of the fixed levels.
func (r RiskLevel) IsValid() bool {
	_, ok := r.Rank()
	return ok
}

// ParseRiskLevel validates a raw risk level.
func ParseRiskLevel(raw string) (RiskLevel, error) {
	level := RiskLevel(raw)
	if !level.IsValid() {
		return "", Invalid("risk_level", "unknown value "+quote(raw))
	}
	return level, nil
}

const (
	PredictionActive    = "active"
	PredictionAddressed = "addressed"
	PredictionDismissed = "dismissed"
)

// PredictedFailure is an externally produced failure prediction for one vehicle component.
type PredictedFailure struct {
	ID                     string    `json:"id" yaml:"id"`
	VehicleID              string    `json:"vehicle_id" yaml:"vehicle_id"`
	Component              string    `json:"component" yaml:"component"`
	RiskLevel              RiskLevel `json:"risk_level" yaml:"risk_level"`
	Probability            float64   `json:"probability" yaml:"probability"`
	EstimatedDaysToFailure *int      `json:"estimated_days_to_failure,omitempty" yaml:"estimated_days_to_failure"`
	RecommendedAction      string    `json:"recommended_action" yaml:"recommended_action"`
	DetectedAt             time.Time `json:"detected_at" yaml:"detected_at"`
	Status                 string    `json:"status" yaml:"status"`
}

// IsActive reports whether the prediction is still unaddressed.
func (p PredictedFailure) IsActive() bool {
	return p.Status == PredictionActive
}

// IsUrgent reports whether the prediction is high or critical.
func (p PredictedFailure) IsUrgent() bool {
	return p.RiskLevel == RiskHigh || p.RiskLevel == RiskCritical
}

// Validate enforces enumeration and range invariants.
func (p PredictedFailure) Validate() error {
	if p.ID == "" {
		return Invalid("prediction.id", "required")
	}
	if p.VehicleID == "" {
		return Invalid("prediction.vehicle_id", "required")
	}
	if !p.RiskLevel.IsValid() {
		return Invalid("prediction.risk_level", "unknown value "+quote(string(p.RiskLevel)))
	}
	if math.IsNaN(p.Probability) || p.Probability < 0 || p.Probability > 1 {
		return Invalid("prediction.probability", "must be within [0,1]")
	}
	if p.EstimatedDaysToFailure != nil && *p.EstimatedDaysToFailure < 0 {
		return Invalid("prediction.estimated_days_to_failure", "must not be negative")
	}
	switch p.Status {
	case PredictionActive, PredictionAddressed, PredictionDismissed:
	default:
		return Invalid("prediction.status", "unknown value "+quote(p.Status))
	}
	return nil
}

// ValidatePredictions validates every prediction in order and returns the first failure.
func ValidatePredictions(predictions []PredictedFailure) error {
	for _, p := range predictions {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Days is a convenience for building EstimatedDaysToFailure values.
func Days(n int) *int {
	return &n
}
