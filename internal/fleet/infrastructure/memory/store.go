package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

var errClosed = errors.New("memory signal store: closed")

// Store is an in-memory SignalStore for demos and tests.
// Every read returns copies, so callers never share state with the store.
type Store struct {
	mu           sync.RWMutex
	closed       bool
	vehicles     map[string]fleet.Vehicle
	telematics   map[string][]fleet.TelematicsSnapshot
	predictions  map[string]fleet.PredictedFailure
	centers      map[string]fleet.ServiceCenter
	appointments map[string]fleet.Appointment
	records      map[string]fleet.RcaCapaRecord
}

var _ fleet.SignalStore = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		vehicles:     make(map[string]fleet.Vehicle),
		telematics:   make(map[string][]fleet.TelematicsSnapshot),
		predictions:  make(map[string]fleet.PredictedFailure),
		centers:      make(map[string]fleet.ServiceCenter),
		appointments: make(map[string]fleet.Appointment),
		records:      make(map[string]fleet.RcaCapaRecord),
	}
}

// Close releases the store. Further calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.vehicles = nil
	s.telematics = nil
	s.predictions = nil
	s.centers = nil
	s.appointments = nil
	s.records = nil
	return nil
}

// PutVehicle inserts or replaces a vehicle.
func (s *Store) PutVehicle(v fleet.Vehicle) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.vehicles[v.ID] = v
	return nil
}

// PutPrediction inserts or replaces a prediction.
func (s *Store) PutPrediction(p fleet.PredictedFailure) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.predictions[p.ID] = clonePrediction(p)
	return nil
}

// PutServiceCenter inserts or replaces a service center.
func (s *Store) PutServiceCenter(c fleet.ServiceCenter) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	c.Specializations = append([]string(nil), c.Specializations...)
	s.centers[c.ID] = c
	return nil
}

// PutRcaCapaRecord inserts or replaces a quality record.
func (s *Store) PutRcaCapaRecord(r fleet.RcaCapaRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.records[r.ID] = cloneRecord(r)
	return nil
}

// GetVehicle loads a vehicle by id.
func (s *Store) GetVehicle(ctx context.Context, id string) (*fleet.Vehicle, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	v, ok := s.vehicles[id]
	if !ok {
		return nil, fleet.NotFound("vehicle", id)
	}
	return &v, nil
}

// ListVehicles returns all vehicles ordered by id.
func (s *Store) ListVehicles(ctx context.Context) ([]fleet.Vehicle, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	result := make([]fleet.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateVehicle applies a patch.
func (s *Store) UpdateVehicle(ctx context.Context, id string, patch fleet.VehiclePatch) (*fleet.Vehicle, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	current, ok := s.vehicles[id]
	if !ok {
		return nil, fleet.NotFound("vehicle", id)
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return nil, err
	}
	s.vehicles[id] = updated
	return &updated, nil
}

// GetLatestTelematics returns the newest snapshot for a vehicle or nil.
func (s *Store) GetLatestTelematics(ctx context.Context, vehicleID string) (*fleet.TelematicsSnapshot, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	if _, ok := s.vehicles[vehicleID]; !ok {
		return nil, fleet.NotFound("vehicle", vehicleID)
	}
	snapshots := s.telematics[vehicleID]
	if len(snapshots) == 0 {
		return nil, nil
	}
	latest := cloneSnapshot(snapshots[len(snapshots)-1])
	return &latest, nil
}

// AppendTelematics appends a snapshot, keeping the per-vehicle series ordered by timestamp.
func (s *Store) AppendTelematics(ctx context.Context, snapshot fleet.TelematicsSnapshot) error {
	_ = ctx
	if err := snapshot.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, ok := s.vehicles[snapshot.VehicleID]; !ok {
		return fleet.NotFound("vehicle", snapshot.VehicleID)
	}
	series := append(s.telematics[snapshot.VehicleID], cloneSnapshot(snapshot))
	sort.SliceStable(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	s.telematics[snapshot.VehicleID] = series
	return nil
}

// ListActivePredictions returns active predictions ordered by id.
func (s *Store) ListActivePredictions(ctx context.Context, vehicleID string) ([]fleet.PredictedFailure, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	result := make([]fleet.PredictedFailure, 0)
	for _, p := range s.predictions {
		if !p.IsActive() {
			continue
		}
		if vehicleID != "" && p.VehicleID != vehicleID {
			continue
		}
		result = append(result, clonePrediction(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListServiceCenters returns all centers ordered by id.
func (s *Store) ListServiceCenters(ctx context.Context) ([]fleet.ServiceCenter, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	result := make([]fleet.ServiceCenter, 0, len(s.centers))
	for _, c := range s.centers {
		c.Specializations = append([]string(nil), c.Specializations...)
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetServiceCenter loads a center by id.
func (s *Store) GetServiceCenter(ctx context.Context, id string) (*fleet.ServiceCenter, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	c, ok := s.centers[id]
	if !ok {
		return nil, fleet.NotFound("service center", id)
	}
	c.Specializations = append([]string(nil), c.Specializations...)
	return &c, nil
}

// CompareAndSwapCenterLoad updates the load if the version still matches.
func (s *Store) CompareAndSwapCenterLoad(ctx context.Context, id string, expectedVersion int64, newLoad int) (*fleet.ServiceCenter, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	c, ok := s.centers[id]
	if !ok {
		return nil, fleet.NotFound("service center", id)
	}
	if c.Version != expectedVersion {
		return nil, fleet.ErrVersionMismatch
	}
	if newLoad < 0 || newLoad > c.Capacity {
		return nil, fleet.Invalid("center.current_load", "out of [0,capacity]")
	}
	c.CurrentLoad = newLoad
	c.Version++
	s.centers[id] = c
	c.Specializations = append([]string(nil), c.Specializations...)
	return &c, nil
}

// ListAppointments returns matching appointments ordered by date, time and id.
func (s *Store) ListAppointments(ctx context.Context, filter fleet.AppointmentFilter) ([]fleet.Appointment, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	result := make([]fleet.Appointment, 0)
	for _, a := range s.appointments {
		if filter.Matches(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScheduledDate != result[j].ScheduledDate {
			return result[i].ScheduledDate < result[j].ScheduledDate
		}
		if result[i].ScheduledTime != result[j].ScheduledTime {
			return result[i].ScheduledTime < result[j].ScheduledTime
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetAppointment loads an appointment by id.
func (s *Store) GetAppointment(ctx context.Context, id string) (*fleet.Appointment, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	a, ok := s.appointments[id]
	if !ok {
		return nil, fleet.NotFound("appointment", id)
	}
	return &a, nil
}

// CreateAppointment inserts an appointment after checking its references.
func (s *Store) CreateAppointment(ctx context.Context, appointment fleet.Appointment) (*fleet.Appointment, error) {
	_ = ctx
	if appointment.ID == "" {
		return nil, fleet.Invalid("appointment.id", "required")
	}
	if err := appointment.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	if _, ok := s.vehicles[appointment.VehicleID]; !ok {
		return nil, fleet.NotFound("vehicle", appointment.VehicleID)
	}
	if _, ok := s.centers[appointment.ServiceCenterID]; !ok {
		return nil, fleet.NotFound("service center", appointment.ServiceCenterID)
	}
	if _, exists := s.appointments[appointment.ID]; exists {
		return nil, fleet.Invalid("appointment.id", "already exists")
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now().UTC()
	}
	if appointment.UpdatedAt.IsZero() {
		appointment.UpdatedAt = appointment.CreatedAt
	}
	s.appointments[appointment.ID] = appointment
	return &appointment, nil
}

// UpdateAppointment applies a guarded patch atomically.
func (s *Store) UpdateAppointment(ctx context.Context, id string, patch fleet.AppointmentPatch) (*fleet.Appointment, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	current, ok := s.appointments[id]
	if !ok {
		return nil, fleet.NotFound("appointment", id)
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return nil, err
	}
	s.appointments[id] = updated
	return &updated, nil
}

// ListRcaCapaRecords returns all records ordered by creation time and id.
func (s *Store) ListRcaCapaRecords(ctx context.Context) ([]fleet.RcaCapaRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	result := make([]fleet.RcaCapaRecord, 0, len(s.records))
	for _, r := range s.records {
		result = append(result, cloneRecord(r))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetRcaCapaRecord loads a record by id.
func (s *Store) GetRcaCapaRecord(ctx context.Context, id string) (*fleet.RcaCapaRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	r, ok := s.records[id]
	if !ok {
		return nil, fleet.NotFound("rca/capa record", id)
	}
	clone := cloneRecord(r)
	return &clone, nil
}

// UpdateRcaCapaStatus persists a status change computed by the caller against the expected status.
func (s *Store) UpdateRcaCapaStatus(ctx context.Context, id string, expected, status fleet.RcaStatus, resolvedAt *time.Time) (*fleet.RcaCapaRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	r, ok := s.records[id]
	if !ok {
		return nil, fleet.NotFound("rca/capa record", id)
	}
	if r.Status != expected || r.Status == fleet.RcaClosed {
		return nil, fmt.Errorf("%w: rca/capa record %s is %s", fleet.ErrInvalidTransition, id, r.Status)
	}
	r.Status = status
	r.ResolvedAt = nil
	if resolvedAt != nil {
		at := resolvedAt.UTC()
		r.ResolvedAt = &at
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s.records[id] = r
	clone := cloneRecord(r)
	return &clone, nil
}

func cloneSnapshot(t fleet.TelematicsSnapshot) fleet.TelematicsSnapshot {
	t.DiagnosticCodes = append([]string(nil), t.DiagnosticCodes...)
	t.TirePressure = t.TirePressure.Clone()
	return t
}

func clonePrediction(p fleet.PredictedFailure) fleet.PredictedFailure {
	if p.EstimatedDaysToFailure != nil {
		p.EstimatedDaysToFailure = fleet.Days(*p.EstimatedDaysToFailure)
	}
	return p
}

func cloneRecord(r fleet.RcaCapaRecord) fleet.RcaCapaRecord {
	r.AffectedModels = append([]string(nil), r.AffectedModels...)
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		r.ResolvedAt = &at
	}
	return r
}
