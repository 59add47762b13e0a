package fleet

import "time"

// RcaStatus is the quality workflow state of an RCA/CAPA record.
type RcaStatus string

const (
	RcaOpen       RcaStatus = "open"
	RcaInProgress RcaStatus = "in_progress"
	RcaClosed     RcaStatus = "closed"
)

func (s RcaStatus) order() (int, bool) {
	switch s {
	case RcaOpen:
		return 0, true
	case RcaInProgress:
		return 1, true
	case RcaClosed:
		return 2, true
	}
	return 0, false
}

// ParseRcaStatus validates a raw status.
func ParseRcaStatus(raw string) (RcaStatus, error) {
	status := RcaStatus(raw)
	if _, ok := status.order(); !ok {
		return "", Invalid("rca.status", "unknown value "+quote(raw))
	}
	return status, nil
}

// RcaPriority uses the same four-step scale as risk levels.
type RcaPriority string

const (
	RcaPriorityLow      RcaPriority = "low"
	RcaPriorityMedium   RcaPriority = "medium"
	RcaPriorityHigh     RcaPriority = "high"
	RcaPriorityCritical RcaPriority = "critical"
)

// Rank returns the ordinal of the priority (low=1 .. critical=4).
func (p RcaPriority) Rank() (int, bool) {
	return RiskLevel(p).Rank()
}

// ParseRcaPriority validates a raw priority.
func ParseRcaPriority(raw string) (RcaPriority, error) {
	priority := RcaPriority(raw)
	if _, ok := priority.Rank(); !ok {
		return "", Invalid("rca.priority", "unknown value "+quote(raw))
	}
	return priority, nil
}

// RcaCapaRecord is a root cause analysis / corrective and preventive action record.
type RcaCapaRecord struct {
	ID               string      `json:"id" yaml:"id"`
	FailureType      string      `json:"failure_type" yaml:"failure_type"`
	Component        string      `json:"component" yaml:"component"`
	RootCause        string      `json:"root_cause" yaml:"root_cause"`
	OccurrenceCount  int         `json:"occurrence_count" yaml:"occurrence_count"`
	AffectedModels   []string    `json:"affected_models,omitempty" yaml:"affected_models"`
	CorrectiveAction string      `json:"corrective_action" yaml:"corrective_action"`
	PreventiveAction string      `json:"preventive_action" yaml:"preventive_action"`
	Status           RcaStatus   `json:"status" yaml:"status"`
	Priority         RcaPriority `json:"priority" yaml:"priority"`
	CreatedAt        time.Time   `json:"created_at" yaml:"created_at"`
	ResolvedAt       *time.Time  `json:"resolved_at,omitempty" yaml:"resolved_at"`
}

// IsUnresolved reports whether the record is open or in progress.
func (r RcaCapaRecord) IsUnresolved() bool {
	return r.Status == RcaOpen || r.Status == RcaInProgress
}

// Validate enforces enumerations and the resolvedAt iff closed invariant.
func (r RcaCapaRecord) Validate() error {
	if r.ID == "" {
		return Invalid("rca.id", "required")
	}
	if _, err := ParseRcaStatus(string(r.Status)); err != nil {
		return err
	}
	if _, err := ParseRcaPriority(string(r.Priority)); err != nil {
		return err
	}
	if r.OccurrenceCount < 0 {
		return Invalid("rca.occurrence_count", "must not be negative")
	}
	if (r.Status == RcaClosed) != (r.ResolvedAt != nil) {
		return Invalid("rca.resolved_at", "must be set exactly when closed")
	}
	return nil
}

// Transition moves the record forward. Closing stamps ResolvedAt with now.
// Moving backwards, staying in place or leaving closed returns ErrInvalidTransition.
func (r RcaCapaRecord) Transition(next RcaStatus, now time.Time) (RcaCapaRecord, error) {
	to, ok := next.order()
	if !ok {
		return r, Invalid("rca.status", "unknown value "+quote(string(next)))
	}
	from, _ := r.Status.order()
	if to <= from {
		return r, ErrInvalidTransition
	}
	r.Status = next
	if next == RcaClosed {
		resolved := now.UTC()
		r.ResolvedAt = &resolved
	}
	return r, nil
}
