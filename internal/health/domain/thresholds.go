package health

import (
	"errors"
	"fmt"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

// Thresholds configures every penalty factor of the health score.
// Each factor is linear past its band edge and capped.
type Thresholds struct {
	EngineTempMax       float64            `yaml:"engine_temp_max"`
	EngineTempPerDegree float64            `yaml:"engine_temp_per_degree"`
	EngineTempCap       float64            `yaml:"engine_temp_cap"`
	OilPressureMin      float64            `yaml:"oil_pressure_min"`
	OilPressurePerPSI   float64            `yaml:"oil_pressure_per_psi"`
	OilPressureCap      float64            `yaml:"oil_pressure_cap"`
	BrakeWearStart      float64            `yaml:"brake_wear_start"`
	BrakeWearPerPoint   float64            `yaml:"brake_wear_per_point"`
	BrakeWearCap        float64            `yaml:"brake_wear_cap"`
	BatteryMin          float64            `yaml:"battery_min"`
	BatteryPerVolt      float64            `yaml:"battery_per_volt"`
	BatteryCap          float64            `yaml:"battery_cap"`
	DiagnosticPerCode   float64            `yaml:"diagnostic_per_code"`
	DiagnosticCap       float64            `yaml:"diagnostic_cap"`
	TirePressureMin     float64            `yaml:"tire_pressure_min"`
	TirePressureMax     float64            `yaml:"tire_pressure_max"`
	TirePressurePerPSI  float64            `yaml:"tire_pressure_per_psi"`
	TirePressureCap     float64            `yaml:"tire_pressure_cap"`
	RiskWeights         map[string]float64 `yaml:"risk_weights"`
}

// DefaultThresholds returns the built-in scoring bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EngineTempMax:       105,
		EngineTempPerDegree: 1,
		EngineTempCap:       25,
		OilPressureMin:      25,
		OilPressurePerPSI:   2,
		OilPressureCap:      20,
		BrakeWearStart:      50,
		BrakeWearPerPoint:   0.8,
		BrakeWearCap:        25,
		BatteryMin:          12.0,
		BatteryPerVolt:      10,
		BatteryCap:          15,
		DiagnosticPerCode:   3,
		DiagnosticCap:       12,
		TirePressureMin:     28,
		TirePressureMax:     36,
		TirePressurePerPSI:  2,
		TirePressureCap:     10,
		RiskWeights: map[string]float64{
			string(fleet.RiskLow):      5,
			string(fleet.RiskMedium):   15,
			string(fleet.RiskHigh):     25,
			string(fleet.RiskCritical): 40,
		},
	}
}

// Validate enforces non-negative factors, caps below 100 and strictly increasing risk weights.
func (t Thresholds) Validate() error {
	factors := []struct {
		name string
		rate float64
		cap  float64
	}{
		{"engine_temp", t.EngineTempPerDegree, t.EngineTempCap},
		{"oil_pressure", t.OilPressurePerPSI, t.OilPressureCap},
		{"brake_wear", t.BrakeWearPerPoint, t.BrakeWearCap},
		{"battery", t.BatteryPerVolt, t.BatteryCap},
		{"diagnostic", t.DiagnosticPerCode, t.DiagnosticCap},
		{"tire_pressure", t.TirePressurePerPSI, t.TirePressureCap},
	}
	for _, f := range factors {
		if f.rate < 0 || f.cap < 0 {
			return fmt.Errorf("%s penalty must not be negative", f.name)
		}
		if f.cap >= 100 {
			return fmt.Errorf("%s cap must stay below 100", f.name)
		}
	}
	if t.TirePressureMin > t.TirePressureMax {
		return errors.New("tire pressure band is inverted")
	}
	prev := 0.0
	for _, level := range []fleet.RiskLevel{fleet.RiskLow, fleet.RiskMedium, fleet.RiskHigh, fleet.RiskCritical} {
		weight, ok := t.RiskWeights[string(level)]
		if !ok {
			return fmt.Errorf("risk weight for %s missing", level)
		}
		if weight <= prev {
			return errors.New("risk weights must be strictly increasing")
		}
		prev = weight
	}
	return nil
}

func (t Thresholds) weight(level fleet.RiskLevel) float64 {
	return t.RiskWeights[string(level)]
}
