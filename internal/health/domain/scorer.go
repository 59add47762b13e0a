package health

import (
	"math"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

const baseline = 100.0

const (
	BandHealthy  = "healthy"
	BandWarning  = "warning"
	BandCritical = "critical"
)

// Breakdown lists the penalty contributed by each factor.
type Breakdown struct {
	Baseline     float64 `json:"baseline"`
	EngineTemp   float64 `json:"engine_temp"`
	OilPressure  float64 `json:"oil_pressure"`
	BrakeWear    float64 `json:"brake_wear"`
	Battery      float64 `json:"battery"`
	Diagnostics  float64 `json:"diagnostics"`
	TirePressure float64 `json:"tire_pressure"`
	Predictions  float64 `json:"predictions"`
	Score        float64 `json:"score"`
	Band         string  `json:"band"`
}

// Scorer computes deterministic health scores.
type Scorer struct {
	thresholds Thresholds
}

// NewScorer validates thresholds and builds a scorer.
func NewScorer(thresholds Thresholds) (*Scorer, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, fleet.Invalid("thresholds", err.Error())
	}
	return &Scorer{thresholds: thresholds}, nil
}

// ComputeHealthScore scores a vehicle with the default thresholds.
func ComputeHealthScore(vehicle fleet.Vehicle, latest *fleet.TelematicsSnapshot, predictions []fleet.PredictedFailure) (float64, error) {
	scorer := Scorer{thresholds: DefaultThresholds()}
	return scorer.ComputeHealthScore(vehicle, latest, predictions)
}

// ComputeHealthScore returns a score in [0,100]. A nil snapshot contributes no telematics penalty.
// Only active predictions are counted.
func (s *Scorer) ComputeHealthScore(vehicle fleet.Vehicle, latest *fleet.TelematicsSnapshot, predictions []fleet.PredictedFailure) (float64, error) {
	breakdown, err := s.Breakdown(vehicle, latest, predictions)
	if err != nil {
		return 0, err
	}
	return breakdown.Score, nil
}

// Breakdown returns the per-factor penalties and the resulting score.
func (s *Scorer) Breakdown(vehicle fleet.Vehicle, latest *fleet.TelematicsSnapshot, predictions []fleet.PredictedFailure) (Breakdown, error) {
	if vehicle.ID == "" {
		return Breakdown{}, fleet.Invalid("vehicle.id", "required")
	}
	if err := fleet.ValidatePredictions(predictions); err != nil {
		return Breakdown{}, err
	}
	for _, p := range predictions {
		if p.VehicleID != vehicle.ID {
			return Breakdown{}, fleet.Invalid("prediction.vehicle_id", "belongs to "+p.VehicleID+", not "+vehicle.ID)
		}
	}

	t := s.thresholds
	b := Breakdown{Baseline: baseline}
	if latest != nil {
		if latest.VehicleID != "" && latest.VehicleID != vehicle.ID {
			return Breakdown{}, fleet.Invalid("telematics.vehicle_id", "belongs to "+latest.VehicleID+", not "+vehicle.ID)
		}
		if err := latest.ValidateReadings(); err != nil {
			return Breakdown{}, err
		}
		b.EngineTemp = linear(latest.EngineTemp-t.EngineTempMax, t.EngineTempPerDegree, t.EngineTempCap)
		b.OilPressure = linear(t.OilPressureMin-latest.OilPressure, t.OilPressurePerPSI, t.OilPressureCap)
		b.BrakeWear = linear(latest.BrakeWear-t.BrakeWearStart, t.BrakeWearPerPoint, t.BrakeWearCap)
		b.Battery = linear(t.BatteryMin-latest.BatteryVoltage, t.BatteryPerVolt, t.BatteryCap)
		b.Diagnostics = linear(float64(len(latest.DiagnosticCodes)), t.DiagnosticPerCode, t.DiagnosticCap)

		deviation := 0.0
		for _, psi := range latest.TirePressure.Values() {
			if psi < t.TirePressureMin {
				deviation += t.TirePressureMin - psi
			} else if psi > t.TirePressureMax {
				deviation += psi - t.TirePressureMax
			}
		}
		b.TirePressure = linear(deviation, t.TirePressurePerPSI, t.TirePressureCap)
	}

	for _, p := range predictions {
		if !p.IsActive() {
			continue
		}
		b.Predictions += p.Probability * t.weight(p.RiskLevel)
	}

	score := baseline - b.EngineTemp - b.OilPressure - b.BrakeWear - b.Battery -
		b.Diagnostics - b.TirePressure - b.Predictions
	b.Score = round2(clamp(score, 0, baseline))
	b.Band = Band(b.Score)
	return b, nil
}

// Band classifies a score for dashboards.
func Band(score float64) string {
	switch {
	case score >= 80:
		return BandHealthy
	case score >= 60:
		return BandWarning
	default:
		return BandCritical
	}
}

func linear(excess, rate, limit float64) float64 {
	if excess <= 0 || math.IsNaN(excess) {
		return 0
	}
	return math.Min(excess*rate, limit)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
