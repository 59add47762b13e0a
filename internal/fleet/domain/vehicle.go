package fleet

import (
	"math"
	"time"
)

// DateLayout is the calendar date format used for service and appointment dates.
const DateLayout = "2006-01-02"

const (
	VehicleStatusActive    = "active"
	VehicleStatusInactive  = "inactive"
	VehicleStatusInService = "in_service"
)

// Vehicle is a fleet vehicle and its owner contact.
type Vehicle struct {
	ID              string  `json:"id" yaml:"id"`
	VIN             string  `json:"vin" yaml:"vin"`
	Make            string  `json:"make" yaml:"make"`
	Model           string  `json:"model" yaml:"model"`
	Year            int     `json:"year" yaml:"year"`
	OwnerName       string  `json:"owner_name" yaml:"owner_name"`
	OwnerPhone      string  `json:"owner_phone" yaml:"owner_phone"`
	OwnerEmail      string  `json:"owner_email,omitempty" yaml:"owner_email"`
	City            string  `json:"city" yaml:"city"`
	HealthScore     float64 `json:"health_score" yaml:"health_score"`
	Mileage         int     `json:"mileage" yaml:"mileage"`
	LastServiceDate string  `json:"last_service_date,omitempty" yaml:"last_service_date"`
	NextServiceDue  string  `json:"next_service_due,omitempty" yaml:"next_service_due"`
	Status          string  `json:"status" yaml:"status"`
}

// Validate checks identity and range invariants.
func (v Vehicle) Validate() error {
	if v.ID == "" {
		return Invalid("vehicle.id", "required")
	}
	if err := ValidateHealthScore(v.HealthScore); err != nil {
		return err
	}
	if v.Mileage < 0 {
		return Invalid("vehicle.mileage", "must not be negative")
	}
	switch v.Status {
	case VehicleStatusActive, VehicleStatusInactive, VehicleStatusInService:
	default:
		return Invalid("vehicle.status", "unknown value "+quote(v.Status))
	}
	return nil
}

// ValidateHealthScore rejects scores outside [0,100].
func ValidateHealthScore(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 100 {
		return Invalid("health_score", "must be within [0,100]")
	}
	return nil
}

// VehiclePatch carries the mutable vehicle fields. Nil fields are left unchanged.
type VehiclePatch struct {
	HealthScore     *float64
	LastServiceDate *string
	NextServiceDue  *string
	Status          *string
}

// Apply returns a copy of v with the patch applied.
func (p VehiclePatch) Apply(v Vehicle) (Vehicle, error) {
	if p.HealthScore != nil {
		if err := ValidateHealthScore(*p.HealthScore); err != nil {
			return v, err
		}
		v.HealthScore = *p.HealthScore
	}
	if p.LastServiceDate != nil {
		v.LastServiceDate = *p.LastServiceDate
	}
	if p.NextServiceDue != nil {
		v.NextServiceDue = *p.NextServiceDue
	}
	if p.Status != nil {
		v.Status = *p.Status
	}
	return v, v.Validate()
}

// TirePressure holds per-wheel pressure in psi. A nil wheel has no sensor; zero is a flat tire.
type TirePressure struct {
	FL *float64 `json:"fl,omitempty" yaml:"fl"`
	FR *float64 `json:"fr,omitempty" yaml:"fr"`
	RL *float64 `json:"rl,omitempty" yaml:"rl"`
	RR *float64 `json:"rr,omitempty" yaml:"rr"`
}

// PSI returns a pointer to a tire reading.
func PSI(v float64) *float64 {
	return &v
}

// AllWheels builds a reading with every wheel reported.
func AllWheels(fl, fr, rl, rr float64) TirePressure {
	return TirePressure{FL: PSI(fl), FR: PSI(fr), RL: PSI(rl), RR: PSI(rr)}
}

// Values returns the reported readings in FL, FR, RL, RR order.
func (t TirePressure) Values() []float64 {
	values := make([]float64, 0, 4)
	for _, wheel := range []*float64{t.FL, t.FR, t.RL, t.RR} {
		if wheel != nil {
			values = append(values, *wheel)
		}
	}
	return values
}

// Clone returns a copy that shares no pointers with t.
func (t TirePressure) Clone() TirePressure {
	out := TirePressure{}
	if t.FL != nil {
		out.FL = PSI(*t.FL)
	}
	if t.FR != nil {
		out.FR = PSI(*t.FR)
	}
	if t.RL != nil {
		out.RL = PSI(*t.RL)
	}
	if t.RR != nil {
		out.RR = PSI(*t.RR)
	}
	return out
}

// TelematicsSnapshot is a point-in-time sensor reading for one vehicle.
type TelematicsSnapshot struct {
	ID              string       `json:"id" yaml:"id"`
	VehicleID       string       `json:"vehicle_id" yaml:"vehicle_id"`
	Timestamp       time.Time    `json:"timestamp" yaml:"timestamp"`
	EngineTemp      float64      `json:"engine_temp" yaml:"engine_temp"`
	OilPressure     float64      `json:"oil_pressure" yaml:"oil_pressure"`
	BrakeWear       float64      `json:"brake_wear" yaml:"brake_wear"`
	BatteryVoltage  float64      `json:"battery_voltage" yaml:"battery_voltage"`
	TirePressure    TirePressure `json:"tire_pressure" yaml:"tire_pressure"`
	FuelLevel       float64      `json:"fuel_level" yaml:"fuel_level"`
	RPM             int          `json:"rpm" yaml:"rpm"`
	Speed           int          `json:"speed" yaml:"speed"`
	DiagnosticCodes []string     `json:"diagnostic_codes,omitempty" yaml:"diagnostic_codes"`
}

// Validate checks that the snapshot is attributable and its percentages are in range.
func (t TelematicsSnapshot) Validate() error {
	if t.VehicleID == "" {
		return Invalid("telematics.vehicle_id", "required")
	}
	if t.Timestamp.IsZero() {
		return Invalid("telematics.timestamp", "required")
	}
	return t.ValidateReadings()
}

// ValidateReadings checks sensor values only.
func (t TelematicsSnapshot) ValidateReadings() error {
	if t.BrakeWear < 0 || t.BrakeWear > 100 {
		return Invalid("telematics.brake_wear", "must be within [0,100]")
	}
	if t.FuelLevel < 0 || t.FuelLevel > 100 {
		return Invalid("telematics.fuel_level", "must be within [0,100]")
	}
	if t.BatteryVoltage < 0 || t.OilPressure < 0 {
		return Invalid("telematics", "negative sensor reading")
	}
	for _, psi := range t.TirePressure.Values() {
		if psi < 0 || math.IsNaN(psi) {
			return Invalid("telematics.tire_pressure", "must not be negative")
		}
	}
	return nil
}

func quote(s string) string {
	return "\"" + s + "\""
}
