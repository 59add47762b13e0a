package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleet-risk-engine/internal/eventing"
	fleet "fleet-risk-engine/internal/fleet/domain"
	health "fleet-risk-engine/internal/health/domain"
)

const (
	EventScheduled      = "scheduled"
	EventConfirmed      = "confirmed"
	EventCancelled      = "cancelled"
	EventDeclined       = "declined"
	EventCriticalHealth = "critical_health"
)

var eventLabels = map[string]string{
	EventScheduled:      "Service Scheduled",
	EventConfirmed:      "Service Confirmed",
	EventCancelled:      "Service Cancelled",
	EventDeclined:       "Service Declined",
	EventCriticalHealth: "Critical Health",
}

// Directory resolves the entities a notification mentions.
type Directory interface {
	GetVehicle(ctx context.Context, id string) (*fleet.Vehicle, error)
	GetServiceCenter(ctx context.Context, id string) (*fleet.ServiceCenter, error)
	GetAppointment(ctx context.Context, id string) (*fleet.Appointment, error)
}

// Clock provides time for cooldown bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier turns scheduling and health events into owner notifications.
// It implements eventing.Publisher so it can sit next to the NATS publisher.
type Notifier struct {
	directory      Directory
	channel        Channel
	template       *Template
	clock          Clock
	logger         *zap.Logger
	mu             sync.Mutex
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger sets the logger used for lookup failures.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithRequestTimeout bounds a single channel delivery.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same subject and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs a fleet notifier.
func NewNotifier(directory Directory, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if directory == nil {
		return nil, errors.New("fleet notifier: nil directory")
	}
	if channel == nil {
		return nil, errors.New("fleet notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		directory:      directory,
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		logger:         zap.NewNop(),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Publish notifies the vehicle owner about events they care about and ignores the rest.
func (n *Notifier) Publish(ctx context.Context, event any) error {
	if n == nil {
		return nil
	}
	var (
		data TemplateData
		key  string
		ok   bool
		err  error
	)
	switch e := event.(type) {
	case eventing.AppointmentScheduled:
		data, key, ok, err = n.fromScheduled(ctx, e)
	case *eventing.AppointmentScheduled:
		data, key, ok, err = n.fromScheduled(ctx, *e)
	case eventing.AppointmentTransitioned:
		data, key, ok, err = n.fromTransition(ctx, e)
	case *eventing.AppointmentTransitioned:
		data, key, ok, err = n.fromTransition(ctx, *e)
	case eventing.HealthScoreUpdated:
		data, key, ok, err = n.fromHealth(ctx, e)
	case *eventing.HealthScoreUpdated:
		data, key, ok, err = n.fromHealth(ctx, *e)
	}
	if err != nil || !ok {
		return err
	}
	return n.dispatch(ctx, key, data)
}

func (n *Notifier) fromScheduled(ctx context.Context, e eventing.AppointmentScheduled) (TemplateData, string, bool, error) {
	data, err := n.base(ctx, EventScheduled, e.VehicleID, e.ServiceCenterID)
	if err != nil {
		return data, "", false, err
	}
	data.Date = e.ScheduledDate
	data.Time = e.ScheduledTime
	data.ServiceType = e.ServiceType
	data.Priority = e.Priority
	data.Status = e.Status
	return data, e.AppointmentID, true, nil
}

func (n *Notifier) fromTransition(ctx context.Context, e eventing.AppointmentTransitioned) (TemplateData, string, bool, error) {
	kind := ""
	switch fleet.AppointmentStatus(e.To) {
	case fleet.AppointmentConfirmed:
		kind = EventConfirmed
	case fleet.AppointmentCancelled:
		kind = EventCancelled
	case fleet.AppointmentDeclined:
		kind = EventDeclined
	default:
		return TemplateData{}, "", false, nil
	}
	data, err := n.base(ctx, kind, e.VehicleID, e.ServiceCenterID)
	if err != nil {
		return data, "", false, err
	}
	data.Status = e.To
	appointment, err := n.directory.GetAppointment(ctx, e.AppointmentID)
	if err != nil {
		n.logger.Warn("notification appointment lookup failed", zap.String("appointment_id", e.AppointmentID), zap.Error(err))
	} else {
		data.Date = appointment.ScheduledDate
		data.Time = appointment.ScheduledTime
		data.ServiceType = appointment.ServiceType
		data.Priority = string(appointment.Priority)
	}
	return data, e.AppointmentID, true, nil
}

// fromHealth only fires when a vehicle crosses into the critical band.
func (n *Notifier) fromHealth(ctx context.Context, e eventing.HealthScoreUpdated) (TemplateData, string, bool, error) {
	if e.Band != health.BandCritical || health.Band(e.Previous) == health.BandCritical {
		return TemplateData{}, "", false, nil
	}
	data, err := n.base(ctx, EventCriticalHealth, e.VehicleID, "")
	if err != nil {
		return data, "", false, err
	}
	data.Score = formatScore(e.Score)
	data.Previous = formatScore(e.Previous)
	data.Band = e.Band
	return data, e.VehicleID, true, nil
}

func (n *Notifier) base(ctx context.Context, kind, vehicleID, centerID string) (TemplateData, error) {
	data := TemplateData{
		Event:      kind,
		EventLabel: eventLabels[kind],
		VehicleID:  vehicleID,
		CenterID:   centerID,
	}
	vehicle, err := n.directory.GetVehicle(ctx, vehicleID)
	if err != nil {
		return data, fmt.Errorf("fleet notifier: vehicle %s: %w", vehicleID, err)
	}
	data.Vehicle = fmt.Sprintf("%d %s %s", vehicle.Year, vehicle.Make, vehicle.Model)
	data.Owner = vehicle.OwnerName
	data.OwnerEmail = vehicle.OwnerEmail
	data.OwnerPhone = vehicle.OwnerPhone
	if centerID != "" {
		center, err := n.directory.GetServiceCenter(ctx, centerID)
		if err != nil {
			n.logger.Warn("notification center lookup failed", zap.String("service_center_id", centerID), zap.Error(err))
			data.Center = centerID
		} else {
			data.Center = center.Name
		}
	}
	return data, nil
}

func (n *Notifier) dispatch(ctx context.Context, subject string, data TemplateData) error {
	content, err := n.template.Render(data)
	if err != nil {
		return fmt.Errorf("fleet notifier: render: %w", err)
	}
	if !n.shouldSend(subject, data.Event, content) {
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, n.requestTimeout)
	defer cancel()
	msg := Message{
		Event:     data.Event,
		VehicleID: data.VehicleID,
		Recipient: data.OwnerEmail,
		Content:   content,
	}
	if err := n.channel.Send(sendCtx, msg); err != nil {
		return fmt.Errorf("fleet notifier: send %s: %w", data.Event, err)
	}
	n.markSent(subject, data.Event, content)
	return nil
}

func (n *Notifier) shouldSend(subject, event, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(subject, event)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(subject, event, content string) {
	key := notificationKey(subject, event)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(subject, event string) string {
	return subject + "|" + event
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
