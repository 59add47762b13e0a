package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fleet-risk-engine/internal/eventing"
	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/observability/metrics"
	scheduling "fleet-risk-engine/internal/scheduling/domain"
)

const (
	defaultMaxAttempts  = 5
	defaultUrgentWindow = 48 * time.Hour
	defaultSweepWindow  = 7 * 24 * time.Hour
	defaultTime         = "09:00"
)

var errCenterFull = errors.New("scheduling: center full")

// Store is the part of the signal store the scheduler reads and writes.
type Store interface {
	fleet.VehicleRepository
	fleet.PredictionRepository
	fleet.CenterRepository
	fleet.AppointmentRepository
}

// Request describes an appointment to book inside a date window.
type Request struct {
	VehicleID   string         `json:"vehicle_id"`
	From        time.Time      `json:"from"`
	To          time.Time      `json:"to"`
	ServiceType string         `json:"service_type"`
	Priority    fleet.Priority `json:"priority"`
	// Specialization overrides the one derived from ServiceType.
	Specialization          string `json:"specialization,omitempty"`
	SpecializationMandatory bool   `json:"specialization_mandatory,omitempty"`
	Notes                   string `json:"notes,omitempty"`
	EstimatedDuration       int    `json:"estimated_duration,omitempty"`
}

// Service books, transitions and sweeps appointments against center capacity.
type Service struct {
	store        Store
	publisher    eventing.Publisher
	logger       *zap.Logger
	clock        fleet.Clock
	location     *time.Location
	maxAttempts  int
	urgentWindow time.Duration
	sweepWindow  time.Duration
	defaultTime  string
	seq          atomic.Uint64
}

// ServiceOption customizes the scheduling service.
type ServiceOption func(*Service)

// WithPublisher assigns an event publisher.
func WithPublisher(publisher eventing.Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock fleet.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocation sets the zone appointment dates and times are expressed in.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithMaxAttempts bounds compare-and-swap retries per center.
func WithMaxAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithUrgentWindow sets how close an urgent slot must be to be confirmed on booking.
func WithUrgentWindow(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.urgentWindow = d
		}
	}
}

// WithSweepWindow sets the booking window used by AutoScheduleSweep.
func WithSweepWindow(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.sweepWindow = d
		}
	}
}

// WithDefaultTime sets the slot time used when center hours cannot be parsed.
func WithDefaultTime(clock string) ServiceOption {
	return func(s *Service) {
		if _, err := time.Parse("15:04", clock); err == nil {
			s.defaultTime = clock
		}
	}
}

// NewService constructs a scheduling service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("scheduling: nil store")
	}
	service := &Service{
		store:        store,
		logger:       zap.NewNop(),
		clock:        fleet.SystemClock{},
		location:     time.UTC,
		maxAttempts:  defaultMaxAttempts,
		urgentWindow: defaultUrgentWindow,
		sweepWindow:  defaultSweepWindow,
		defaultTime:  defaultTime,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ScheduleAppointment reserves a slot at the best eligible center and books the appointment.
func (s *Service) ScheduleAppointment(ctx context.Context, req Request) (*fleet.Appointment, error) {
	start := time.Now()
	appointment, err := s.schedule(ctx, req)
	metrics.ObserveSchedule(scheduleOutcome(err), time.Since(start))
	return appointment, err
}

func (s *Service) schedule(ctx context.Context, req Request) (*fleet.Appointment, error) {
	now := s.clock.Now().In(s.location)
	date, err := s.validate(req, now)
	if err != nil {
		return nil, err
	}
	vehicle, err := s.store.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	centers, err := s.store.ListServiceCenters(ctx)
	if err != nil {
		return nil, err
	}

	specialization := strings.TrimSpace(req.Specialization)
	if specialization == "" {
		specialization = scheduling.SpecializationFor(req.ServiceType)
	}
	candidates := scheduling.RankCenters(centers, vehicle.City, specialization, req.SpecializationMandatory)
	center, err := s.reserve(ctx, candidates)
	if err != nil {
		if errors.Is(err, errCenterFull) {
			return nil, &fleet.NoCapacityError{VehicleID: req.VehicleID, ServiceType: req.ServiceType, From: req.From, To: req.To}
		}
		return nil, err
	}

	dateText := date.Format(fleet.DateLayout)
	slotTime := scheduling.OpeningTime(center.OperatingHours, s.defaultTime)
	slot, err := scheduling.SlotStart(dateText, slotTime, s.location)
	if err != nil {
		slot = date
	}
	appointment := fleet.Appointment{
		ID:                s.newAppointmentID(vehicle.ID, center.ID, now),
		VehicleID:         vehicle.ID,
		ServiceCenterID:   center.ID,
		ScheduledDate:     dateText,
		ScheduledTime:     slotTime,
		ServiceType:       strings.TrimSpace(req.ServiceType),
		Status:            scheduling.InitialStatus(req.Priority, slot, now, s.urgentWindow),
		Priority:          req.Priority,
		EstimatedDuration: req.EstimatedDuration,
		Notes:             req.Notes,
		SlotHeld:          true,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}
	created, err := s.store.CreateAppointment(ctx, appointment)
	if err != nil {
		if releaseErr := s.release(ctx, center.ID); releaseErr != nil {
			s.logger.Error("slot compensation failed",
				zap.String("center_id", center.ID),
				zap.Error(releaseErr),
			)
			return nil, errors.Join(err, releaseErr)
		}
		return nil, fmt.Errorf("scheduling: create appointment: %w", err)
	}

	s.logger.Info("appointment scheduled",
		zap.String("appointment_id", created.ID),
		zap.String("vehicle_id", created.VehicleID),
		zap.String("center_id", created.ServiceCenterID),
		zap.String("status", string(created.Status)),
		zap.Int("center_load", center.CurrentLoad),
	)
	s.publish(ctx, eventing.AppointmentScheduled{
		AppointmentID:   created.ID,
		VehicleID:       created.VehicleID,
		ServiceCenterID: created.ServiceCenterID,
		ScheduledDate:   created.ScheduledDate,
		ScheduledTime:   created.ScheduledTime,
		ServiceType:     created.ServiceType,
		Status:          string(created.Status),
		Priority:        string(created.Priority),
		OccurredAt:      now.UTC(),
	})
	return created, nil
}

// validate checks the request before anything is read or reserved and returns the booking date.
func (s *Service) validate(req Request, now time.Time) (time.Time, error) {
	if strings.TrimSpace(req.VehicleID) == "" {
		return time.Time{}, fleet.Invalid("vehicle_id", "required")
	}
	if strings.TrimSpace(req.ServiceType) == "" {
		return time.Time{}, fleet.Invalid("service_type", "required")
	}
	if _, err := fleet.ParsePriority(string(req.Priority)); err != nil {
		return time.Time{}, err
	}
	if req.EstimatedDuration < 0 {
		return time.Time{}, fleet.Invalid("estimated_duration", "must not be negative")
	}
	if req.From.IsZero() || req.To.IsZero() {
		return time.Time{}, fleet.Invalid("window", "from and to are required")
	}
	from := startOfDay(req.From.In(s.location))
	to := startOfDay(req.To.In(s.location))
	if to.Before(from) {
		return time.Time{}, fleet.Invalid("window", "to is before from")
	}
	date := from
	if today := startOfDay(now); today.After(date) {
		date = today
	}
	if date.After(to) {
		return time.Time{}, fleet.Invalid("window", "window has already ended")
	}
	return date, nil
}

// reserve takes one slot from the first candidate that still has room.
func (s *Service) reserve(ctx context.Context, candidates []fleet.ServiceCenter) (*fleet.ServiceCenter, error) {
	for _, candidate := range candidates {
		center, err := s.reserveCenter(ctx, candidate.ID)
		if errors.Is(err, errCenterFull) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return center, nil
	}
	return nil, errCenterFull
}

func (s *Service) reserveCenter(ctx context.Context, centerID string) (*fleet.ServiceCenter, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		center, err := s.store.GetServiceCenter(ctx, centerID)
		if err != nil {
			return nil, err
		}
		if !center.HasSpareCapacity() {
			return nil, errCenterFull
		}
		updated, err := s.store.CompareAndSwapCenterLoad(ctx, centerID, center.Version, center.CurrentLoad+1)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, fleet.ErrVersionMismatch) {
			return nil, err
		}
		metrics.IncCASConflict(centerID)
		s.logger.Debug("center load conflict", zap.String("center_id", centerID), zap.Int("attempt", attempt))
	}
	return nil, &fleet.ConcurrentUpdateError{CenterID: centerID, Attempts: s.maxAttempts}
}

// release gives one slot back to a center. Load never drops below zero.
func (s *Service) release(ctx context.Context, centerID string) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		center, err := s.store.GetServiceCenter(ctx, centerID)
		if err != nil {
			return err
		}
		if center.CurrentLoad <= 0 {
			s.logger.Warn("slot release on empty center", zap.String("center_id", centerID))
			return nil
		}
		_, err = s.store.CompareAndSwapCenterLoad(ctx, centerID, center.Version, center.CurrentLoad-1)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fleet.ErrVersionMismatch) {
			return err
		}
		metrics.IncCASConflict(centerID)
	}
	return &fleet.ConcurrentUpdateError{CenterID: centerID, Attempts: s.maxAttempts}
}

// Transition fires a lifecycle event on an appointment. Cancel, decline and complete give
// the held slot back; complete also stamps the vehicle's last service date.
func (s *Service) Transition(ctx context.Context, appointmentID, event string) (*fleet.Appointment, error) {
	current, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	next, err := scheduling.NextStatus(ctx, current.Status, event)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expected := current.Status
	patch := fleet.AppointmentPatch{
		ExpectedStatus: &expected,
		Status:         &next,
		UpdatedAt:      now.UTC(),
	}
	release := scheduling.ReleasesSlot(event) && current.HoldsSlot()
	if release {
		held := false
		patch.SlotHeld = &held
	}
	updated, err := s.store.UpdateAppointment(ctx, appointmentID, patch)
	if err != nil {
		return nil, err
	}
	if release {
		if err := s.release(ctx, updated.ServiceCenterID); err != nil {
			s.logger.Error("slot release failed",
				zap.String("appointment_id", updated.ID),
				zap.String("center_id", updated.ServiceCenterID),
				zap.Error(err),
			)
			if revertErr := s.restoreHold(ctx, updated.ID, next, expected); revertErr != nil {
				s.logger.Error("appointment restore failed",
					zap.String("appointment_id", updated.ID),
					zap.Error(revertErr),
				)
				return nil, errors.Join(fmt.Errorf("scheduling: release slot: %w", err), revertErr)
			}
			return nil, fmt.Errorf("scheduling: release slot: %w", err)
		}
	}
	if next == fleet.AppointmentCompleted {
		serviced := now.In(s.location).Format(fleet.DateLayout)
		if _, err := s.store.UpdateVehicle(ctx, updated.VehicleID, fleet.VehiclePatch{LastServiceDate: &serviced}); err != nil {
			return nil, fmt.Errorf("scheduling: stamp service date: %w", err)
		}
	}

	metrics.IncAppointmentTransition(event)
	s.logger.Info("appointment transitioned",
		zap.String("appointment_id", updated.ID),
		zap.String("event", event),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next)),
		zap.Bool("slot_released", release),
	)
	s.publish(ctx, eventing.AppointmentTransitioned{
		AppointmentID:   updated.ID,
		VehicleID:       updated.VehicleID,
		ServiceCenterID: updated.ServiceCenterID,
		Event:           event,
		From:            string(current.Status),
		To:              string(next),
		SlotReleased:    release,
		OccurredAt:      now.UTC(),
	})
	return updated, nil
}

// restoreHold puts an appointment back into its previous slot-holding status after the
// slot could not be released, so the transition can be retried.
func (s *Service) restoreHold(ctx context.Context, id string, from, to fleet.AppointmentStatus) error {
	held := true
	_, err := s.store.UpdateAppointment(ctx, id, fleet.AppointmentPatch{
		ExpectedStatus: &from,
		Status:         &to,
		SlotHeld:       &held,
		UpdatedAt:      s.clock.Now().UTC(),
	})
	return err
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id string) (*fleet.Appointment, error) {
	return s.Transition(ctx, id, scheduling.EventConfirm)
}

// Start moves a confirmed appointment to in_progress.
func (s *Service) Start(ctx context.Context, id string) (*fleet.Appointment, error) {
	return s.Transition(ctx, id, scheduling.EventStart)
}

// Complete finishes an in-progress appointment.
func (s *Service) Complete(ctx context.Context, id string) (*fleet.Appointment, error) {
	return s.Transition(ctx, id, scheduling.EventComplete)
}

// Cancel cancels any non-terminal appointment.
func (s *Service) Cancel(ctx context.Context, id string) (*fleet.Appointment, error) {
	return s.Transition(ctx, id, scheduling.EventCancel)
}

// Decline declines a scheduled appointment.
func (s *Service) Decline(ctx context.Context, id string) (*fleet.Appointment, error) {
	return s.Transition(ctx, id, scheduling.EventDecline)
}

// ServiceDemand forecasts daily appointment demand starting at from.
func (s *Service) ServiceDemand(ctx context.Context, from time.Time, days int) ([]scheduling.DemandDay, error) {
	if days <= 0 || days > scheduling.MaxDemandDays {
		return nil, fleet.Invalid("days", "must be within [1,90]")
	}
	start := startOfDay(from.In(s.location))
	appointments, err := s.store.ListAppointments(ctx, fleet.AppointmentFilter{
		FromDate: start.Format(fleet.DateLayout),
		ToDate:   start.AddDate(0, 0, days-1).Format(fleet.DateLayout),
	})
	if err != nil {
		return nil, err
	}
	predictions, err := s.store.ListActivePredictions(ctx, "")
	if err != nil {
		return nil, err
	}
	return scheduling.ForecastDemand(start, days, appointments, predictions)
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("scheduling event publish failed", zap.Error(err))
	}
}

func (s *Service) newAppointmentID(vehicleID, centerID string, now time.Time) string {
	seq := s.seq.Add(1)
	sum := sha1.Sum([]byte(vehicleID + "|" + centerID + "|" + strconv.FormatInt(now.UnixNano(), 10) + "|" + strconv.FormatUint(seq, 10)))
	return "appt-" + hex.EncodeToString(sum[:])[:12]
}

func scheduleOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.ScheduleResultScheduled
	case fleet.IsNoCapacity(err):
		return metrics.ScheduleResultNoCapacity
	case fleet.IsConcurrentUpdate(err):
		return metrics.ScheduleResultConflict
	case fleet.IsValidation(err), fleet.IsNotFound(err):
		return metrics.ScheduleResultInvalid
	default:
		return metrics.ResultError
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
