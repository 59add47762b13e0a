package fleet

import "time"

// AppointmentStatus is a state of the appointment lifecycle.
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentDeclined   AppointmentStatus = "declined"
)

// ParseAppointmentStatus validates a raw status.
func ParseAppointmentStatus(raw string) (AppointmentStatus, error) {
	status := AppointmentStatus(raw)
	switch status {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentInProgress,
		AppointmentCompleted, AppointmentCancelled, AppointmentDeclined:
		return status, nil
	}
	return "", Invalid("appointment.status", "unknown value "+quote(raw))
}

// IsTerminal reports whether no further transitions are possible.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled || s == AppointmentDeclined
}

// Priority is the service urgency requested for an appointment.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority validates a raw priority.
func ParsePriority(raw string) (Priority, error) {
	priority := Priority(raw)
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return priority, nil
	}
	return "", Invalid("priority", "unknown value "+quote(raw))
}

// PriorityForRisk maps a prediction risk level to the appointment priority used by auto scheduling.
func PriorityForRisk(level RiskLevel) Priority {
	switch level {
	case RiskCritical:
		return PriorityUrgent
	case RiskHigh:
		return PriorityHigh
	case RiskMedium:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Appointment links a vehicle to a service center slot.
type Appointment struct {
	ID                string            `json:"id" yaml:"id"`
	VehicleID         string            `json:"vehicle_id" yaml:"vehicle_id"`
	ServiceCenterID   string            `json:"service_center_id" yaml:"service_center_id"`
	ScheduledDate     string            `json:"scheduled_date" yaml:"scheduled_date"`
	ScheduledTime     string            `json:"scheduled_time" yaml:"scheduled_time"`
	ServiceType       string            `json:"service_type" yaml:"service_type"`
	Status            AppointmentStatus `json:"status" yaml:"status"`
	Priority          Priority          `json:"priority" yaml:"priority"`
	EstimatedDuration int               `json:"estimated_duration" yaml:"estimated_duration"`
	Notes             string            `json:"notes,omitempty" yaml:"notes"`
	// SlotHeld is true while the appointment occupies one unit of its center's load.
	SlotHeld  bool      `json:"slot_held" yaml:"slot_held"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// HoldsSlot reports whether releasing this appointment must return a slot to its center.
func (a Appointment) HoldsSlot() bool {
	if a.Status.IsTerminal() {
		return false
	}
	return a.SlotHeld || a.Status == AppointmentConfirmed || a.Status == AppointmentInProgress
}

// Validate enforces references, enumerations and ranges.
func (a Appointment) Validate() error {
	if a.VehicleID == "" {
		return Invalid("appointment.vehicle_id", "required")
	}
	if a.ServiceCenterID == "" {
		return Invalid("appointment.service_center_id", "required")
	}
	if _, err := time.Parse(DateLayout, a.ScheduledDate); err != nil {
		return Invalid("appointment.scheduled_date", "must be YYYY-MM-DD")
	}
	if _, err := ParseAppointmentStatus(string(a.Status)); err != nil {
		return err
	}
	if _, err := ParsePriority(string(a.Priority)); err != nil {
		return err
	}
	if a.EstimatedDuration < 0 {
		return Invalid("appointment.estimated_duration", "must not be negative")
	}
	return nil
}

// AppointmentPatch updates an appointment. ExpectedStatus, when set, makes the update conditional.
type AppointmentPatch struct {
	ExpectedStatus *AppointmentStatus
	Status         *AppointmentStatus
	SlotHeld       *bool
	ScheduledDate  *string
	ScheduledTime  *string
	Notes          *string
	UpdatedAt      time.Time
}

// Apply returns a copy of a with the patch applied, or ErrInvalidTransition if the guard fails.
func (p AppointmentPatch) Apply(a Appointment) (Appointment, error) {
	if p.ExpectedStatus != nil && a.Status != *p.ExpectedStatus {
		return a, ErrInvalidTransition
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.SlotHeld != nil {
		a.SlotHeld = *p.SlotHeld
	}
	if p.ScheduledDate != nil {
		a.ScheduledDate = *p.ScheduledDate
	}
	if p.ScheduledTime != nil {
		a.ScheduledTime = *p.ScheduledTime
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if !p.UpdatedAt.IsZero() {
		a.UpdatedAt = p.UpdatedAt
	}
	return a, a.Validate()
}

// AppointmentFilter narrows ListAppointments. Zero values match everything.
type AppointmentFilter struct {
	VehicleID       string
	ServiceCenterID string
	Statuses        []AppointmentStatus
	FromDate        string
	ToDate          string
}

// Matches reports whether a satisfies the filter.
func (f AppointmentFilter) Matches(a Appointment) bool {
	if f.VehicleID != "" && a.VehicleID != f.VehicleID {
		return false
	}
	if f.ServiceCenterID != "" && a.ServiceCenterID != f.ServiceCenterID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if a.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.FromDate != "" && a.ScheduledDate < f.FromDate {
		return false
	}
	if f.ToDate != "" && a.ScheduledDate > f.ToDate {
		return false
	}
	return true
}

// PendingStatuses are the non-terminal appointment states.
func PendingStatuses() []AppointmentStatus {
	return []AppointmentStatus{AppointmentScheduled, AppointmentConfirmed, AppointmentInProgress}
}
