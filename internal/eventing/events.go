package eventing

import "time"

// Subjecter is implemented by events that name their own subject suffix.
type Subjecter interface {
	Subject() string
}

// HealthScoreUpdated is emitted after a recompute persisted a new score.
type HealthScoreUpdated struct {
	VehicleID  string    `json:"vehicle_id"`
	Previous   float64   `json:"previous"`
	Score      float64   `json:"score"`
	Band       string    `json:"band"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (HealthScoreUpdated) Subject() string { return "health.updated" }

// AppointmentScheduled is emitted when a slot was reserved and the appointment created.
type AppointmentScheduled struct {
	AppointmentID   string    `json:"appointment_id"`
	VehicleID       string    `json:"vehicle_id"`
	ServiceCenterID string    `json:"service_center_id"`
	ScheduledDate   string    `json:"scheduled_date"`
	ScheduledTime   string    `json:"scheduled_time"`
	ServiceType     string    `json:"service_type"`
	Status          string    `json:"status"`
	Priority        string    `json:"priority"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (AppointmentScheduled) Subject() string { return "appointment.scheduled" }

// AppointmentTransitioned is emitted on every lifecycle change after creation.
type AppointmentTransitioned struct {
	AppointmentID   string    `json:"appointment_id"`
	VehicleID       string    `json:"vehicle_id"`
	ServiceCenterID string    `json:"service_center_id"`
	Event           string    `json:"event"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	SlotReleased    bool      `json:"slot_released"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (AppointmentTransitioned) Subject() string { return "appointment.transitioned" }

// RcaCapaTransitioned is emitted when a quality record moves forward.
type RcaCapaTransitioned struct {
	RecordID   string     `json:"record_id"`
	Component  string     `json:"component"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func (RcaCapaTransitioned) Subject() string { return "quality.rca_transitioned" }

// DefaultRegistry returns a registry with every fleet event registered.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	for _, event := range []Subjecter{
		HealthScoreUpdated{},
		AppointmentScheduled{},
		AppointmentTransitioned{},
		RcaCapaTransitioned{},
	} {
		// Subjects below are distinct, so Register cannot fail.
		_ = registry.Register(event)
	}
	return registry
}
