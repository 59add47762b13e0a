package fleet

import (
	"context"
	"time"
)

// VehicleRepository reads and patches vehicles.
type VehicleRepository interface {
	GetVehicle(ctx context.Context, id string) (*Vehicle, error)
	ListVehicles(ctx context.Context) ([]Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, patch VehiclePatch) (*Vehicle, error)
}

// TelematicsRepository stores append-only sensor snapshots.
type TelematicsRepository interface {
	// GetLatestTelematics returns nil, nil when the vehicle has no snapshot yet.
	GetLatestTelematics(ctx context.Context, vehicleID string) (*TelematicsSnapshot, error)
	AppendTelematics(ctx context.Context, snapshot TelematicsSnapshot) error
}

// PredictionRepository exposes predictions produced by the external prediction source.
type PredictionRepository interface {
	// ListActivePredictions returns active predictions for one vehicle, or for the fleet when vehicleID is empty.
	ListActivePredictions(ctx context.Context, vehicleID string) ([]PredictedFailure, error)
}

// CenterRepository reads service centers and changes their load atomically.
type CenterRepository interface {
	ListServiceCenters(ctx context.Context) ([]ServiceCenter, error)
	GetServiceCenter(ctx context.Context, id string) (*ServiceCenter, error)
	// CompareAndSwapCenterLoad sets CurrentLoad to newLoad only if the stored Version equals
	// expectedVersion, returning the updated center. A lost race yields ErrVersionMismatch.
	CompareAndSwapCenterLoad(ctx context.Context, id string, expectedVersion int64, newLoad int) (*ServiceCenter, error)
}

// AppointmentRepository stores appointments.
type AppointmentRepository interface {
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error)
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	CreateAppointment(ctx context.Context, appointment Appointment) (*Appointment, error)
	// UpdateAppointment applies patch atomically; a failed ExpectedStatus guard yields ErrInvalidTransition.
	UpdateAppointment(ctx context.Context, id string, patch AppointmentPatch) (*Appointment, error)
}

// RcaCapaRepository stores quality records.
type RcaCapaRepository interface {
	ListRcaCapaRecords(ctx context.Context) ([]RcaCapaRecord, error)
	GetRcaCapaRecord(ctx context.Context, id string) (*RcaCapaRecord, error)
	// UpdateRcaCapaStatus moves a record from expected to status atomically. A record that is no
	// longer in expected, or is already closed, yields ErrInvalidTransition.
	UpdateRcaCapaStatus(ctx context.Context, id string, expected, status RcaStatus, resolvedAt *time.Time) (*RcaCapaRecord, error)
}

// SignalStore is the full data access contract consumed by the engine.
type SignalStore interface {
	VehicleRepository
	TelematicsRepository
	PredictionRepository
	CenterRepository
	AppointmentRepository
	RcaCapaRepository
	Close() error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in UTC.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
