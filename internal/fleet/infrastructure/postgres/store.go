package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

//go:embed schema.sql
var schemaSQL string

// Store is a Postgres-backed SignalStore.
type Store struct {
	db *sql.DB
}

var _ fleet.SignalStore = (*Store)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres signal store: nil db")
	}
	return &Store{db: db}, nil
}

// Open connects through the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres signal store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres signal store: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the handle so sibling repositories can share the pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres signal store: migrate: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const vehicleColumns = `id, vin, make, model, year, owner_name, owner_phone, owner_email, city,
	health_score, mileage, last_service_date, next_service_due, status`

func scanVehicle(row rowScanner) (*fleet.Vehicle, error) {
	var (
		v                 fleet.Vehicle
		lastService, next sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.VIN, &v.Make, &v.Model, &v.Year, &v.OwnerName, &v.OwnerPhone, &v.OwnerEmail,
		&v.City, &v.HealthScore, &v.Mileage, &lastService, &next, &v.Status); err != nil {
		return nil, err
	}
	v.LastServiceDate = formatDate(lastService)
	v.NextServiceDue = formatDate(next)
	return &v, nil
}

// GetVehicle loads a vehicle by id.
func (s *Store) GetVehicle(ctx context.Context, id string) (*fleet.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fleet.NotFound("vehicle", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return v, nil
}

// ListVehicles returns all vehicles ordered by id.
func (s *Store) ListVehicles(ctx context.Context) ([]fleet.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	result := make([]fleet.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("list vehicles: %w", err)
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

// UpdateVehicle applies a patch inside a row-locking transaction.
func (s *Store) UpdateVehicle(ctx context.Context, id string, patch fleet.VehiclePatch) (*fleet.Vehicle, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanVehicle(tx.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fleet.NotFound("vehicle", id)
	}
	if err != nil {
		return nil, fmt.Errorf("update vehicle: %w", err)
	}
	updated, err := patch.Apply(*current)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE vehicles
SET health_score = $2, last_service_date = $3::date, next_service_due = $4::date, status = $5
WHERE id = $1`, id, updated.HealthScore, nullDate(updated.LastServiceDate), nullDate(updated.NextServiceDue), updated.Status)
	if err != nil {
		return nil, fmt.Errorf("update vehicle: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpsertVehicle inserts or replaces a vehicle.
func (s *Store) UpsertVehicle(ctx context.Context, v fleet.Vehicle) error {
	if err := v.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO vehicles (`+vehicleColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::date,$13::date,$14)
ON CONFLICT (id) DO UPDATE SET
	vin = EXCLUDED.vin, make = EXCLUDED.make, model = EXCLUDED.model, year = EXCLUDED.year,
	owner_name = EXCLUDED.owner_name, owner_phone = EXCLUDED.owner_phone, owner_email = EXCLUDED.owner_email,
	city = EXCLUDED.city, health_score = EXCLUDED.health_score, mileage = EXCLUDED.mileage,
	last_service_date = EXCLUDED.last_service_date, next_service_due = EXCLUDED.next_service_due,
	status = EXCLUDED.status`,
		v.ID, v.VIN, v.Make, v.Model, v.Year, v.OwnerName, v.OwnerPhone, v.OwnerEmail, v.City,
		v.HealthScore, v.Mileage, nullDate(v.LastServiceDate), nullDate(v.NextServiceDue), v.Status)
	if err != nil {
		return fmt.Errorf("upsert vehicle: %w", err)
	}
	return nil
}

// GetLatestTelematics returns the newest snapshot for a vehicle or nil.
func (s *Store) GetLatestTelematics(ctx context.Context, vehicleID string) (*fleet.TelematicsSnapshot, error) {
	if err := s.requireVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}
	var (
		t     fleet.TelematicsSnapshot
		codes string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, vehicle_id, ts, engine_temp, oil_pressure, brake_wear, battery_voltage,
	tire_fl, tire_fr, tire_rl, tire_rr, fuel_level, rpm, speed, diagnostic_codes
FROM telematics_snapshots
WHERE vehicle_id = $1
ORDER BY ts DESC, id DESC
LIMIT 1`, vehicleID).Scan(&t.ID, &t.VehicleID, &t.Timestamp, &t.EngineTemp, &t.OilPressure, &t.BrakeWear,
		&t.BatteryVoltage, &t.TirePressure.FL, &t.TirePressure.FR, &t.TirePressure.RL, &t.TirePressure.RR,
		&t.FuelLevel, &t.RPM, &t.Speed, &codes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest telematics: %w", err)
	}
	t.Timestamp = t.Timestamp.UTC()
	if err := decodeList(codes, &t.DiagnosticCodes); err != nil {
		return nil, fmt.Errorf("latest telematics: %w", err)
	}
	return &t, nil
}

// AppendTelematics stores a snapshot.
func (s *Store) AppendTelematics(ctx context.Context, t fleet.TelematicsSnapshot) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.requireVehicle(ctx, t.VehicleID); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = fmt.Sprintf("tel-%s-%d", t.VehicleID, t.Timestamp.UnixNano())
	}
	codes, err := encodeList(t.DiagnosticCodes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO telematics_snapshots (
	id, vehicle_id, ts, engine_temp, oil_pressure, brake_wear, battery_voltage,
	tire_fl, tire_fr, tire_rl, tire_rr, fuel_level, rpm, speed, diagnostic_codes
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO NOTHING`,
		t.ID, t.VehicleID, t.Timestamp.UTC(), t.EngineTemp, t.OilPressure, t.BrakeWear, t.BatteryVoltage,
		t.TirePressure.FL, t.TirePressure.FR, t.TirePressure.RL, t.TirePressure.RR, t.FuelLevel, t.RPM, t.Speed, codes)
	if err != nil {
		return fmt.Errorf("append telematics: %w", err)
	}
	return nil
}

// ListActivePredictions returns active predictions ordered by id.
func (s *Store) ListActivePredictions(ctx context.Context, vehicleID string) ([]fleet.PredictedFailure, error) {
	query := `
SELECT id, vehicle_id, component, risk_level, probability, estimated_days_to_failure,
	recommended_action, detected_at, status
FROM predicted_failures
WHERE status = $1`
	args := []any{fleet.PredictionActive}
	if vehicleID != "" {
		query += ` AND vehicle_id = $2`
		args = append(args, vehicleID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	result := make([]fleet.PredictedFailure, 0)
	for rows.Next() {
		var (
			p    fleet.PredictedFailure
			days sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.VehicleID, &p.Component, &p.RiskLevel, &p.Probability, &days,
			&p.RecommendedAction, &p.DetectedAt, &p.Status); err != nil {
			return nil, fmt.Errorf("list predictions: %w", err)
		}
		if days.Valid {
			p.EstimatedDaysToFailure = fleet.Days(int(days.Int64))
		}
		p.DetectedAt = p.DetectedAt.UTC()
		result = append(result, p)
	}
	return result, rows.Err()
}

// UpsertPrediction inserts or replaces a prediction.
func (s *Store) UpsertPrediction(ctx context.Context, p fleet.PredictedFailure) error {
	if err := p.Validate(); err != nil {
		return err
	}
	var days any
	if p.EstimatedDaysToFailure != nil {
		days = *p.EstimatedDaysToFailure
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO predicted_failures (
	id, vehicle_id, component, risk_level, probability, estimated_days_to_failure,
	recommended_action, detected_at, status
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	risk_level = EXCLUDED.risk_level, probability = EXCLUDED.probability,
	estimated_days_to_failure = EXCLUDED.estimated_days_to_failure,
	recommended_action = EXCLUDED.recommended_action, status = EXCLUDED.status`,
		p.ID, p.VehicleID, p.Component, string(p.RiskLevel), p.Probability, days, p.RecommendedAction, p.DetectedAt.UTC(), p.Status)
	if err != nil {
		return fmt.Errorf("upsert prediction: %w", err)
	}
	return nil
}

const centerColumns = `id, name, city, address, capacity, current_load, operating_hours, specializations, version`

func scanCenter(row rowScanner) (*fleet.ServiceCenter, error) {
	var (
		c     fleet.ServiceCenter
		specs string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.City, &c.Address, &c.Capacity, &c.CurrentLoad, &c.OperatingHours, &specs, &c.Version); err != nil {
		return nil, err
	}
	if err := decodeList(specs, &c.Specializations); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListServiceCenters returns all centers ordered by id.
func (s *Store) ListServiceCenters(ctx context.Context) ([]fleet.ServiceCenter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+centerColumns+` FROM service_centers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list centers: %w", err)
	}
	defer rows.Close()

	result := make([]fleet.ServiceCenter, 0)
	for rows.Next() {
		c, err := scanCenter(rows)
		if err != nil {
			return nil, fmt.Errorf("list centers: %w", err)
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// GetServiceCenter loads a center by id.
func (s *Store) GetServiceCenter(ctx context.Context, id string) (*fleet.ServiceCenter, error) {
	c, err := scanCenter(s.db.QueryRowContext(ctx, `SELECT `+centerColumns+` FROM service_centers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fleet.NotFound("service center", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get center: %w", err)
	}
	return c, nil
}

// CompareAndSwapCenterLoad updates the load in one statement guarded by version and capacity.
func (s *Store) CompareAndSwapCenterLoad(ctx context.Context, id string, expectedVersion int64, newLoad int) (*fleet.ServiceCenter, error) {
	c, err := scanCenter(s.db.QueryRowContext(ctx, `
UPDATE service_centers
SET current_load = $3, version = version + 1
WHERE id = $1 AND version = $2 AND $3 >= 0 AND $3 <= capacity
RETURNING `+centerColumns, id, expectedVersion, newLoad))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("swap center load: %w", err)
	}

	current, err := s.GetServiceCenter(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, fleet.ErrVersionMismatch
	}
	return nil, fleet.Invalid("center.current_load", "out of [0,capacity]")
}

// UpsertServiceCenter inserts or replaces a center, resetting its version.
func (s *Store) UpsertServiceCenter(ctx context.Context, c fleet.ServiceCenter) error {
	if err := c.Validate(); err != nil {
		return err
	}
	specs, err := encodeList(c.Specializations)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO service_centers (`+centerColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, city = EXCLUDED.city, address = EXCLUDED.address, capacity = EXCLUDED.capacity,
	current_load = EXCLUDED.current_load, operating_hours = EXCLUDED.operating_hours,
	specializations = EXCLUDED.specializations, version = service_centers.version + 1`,
		c.ID, c.Name, c.City, c.Address, c.Capacity, c.CurrentLoad, c.OperatingHours, specs)
	if err != nil {
		return fmt.Errorf("upsert center: %w", err)
	}
	return nil
}

const appointmentColumns = `id, vehicle_id, service_center_id, scheduled_date, scheduled_time, service_type,
	status, priority, estimated_duration, notes, slot_held, created_at, updated_at`

func scanAppointment(row rowScanner) (*fleet.Appointment, error) {
	var (
		a    fleet.Appointment
		date time.Time
	)
	if err := row.Scan(&a.ID, &a.VehicleID, &a.ServiceCenterID, &date, &a.ScheduledTime, &a.ServiceType,
		&a.Status, &a.Priority, &a.EstimatedDuration, &a.Notes, &a.SlotHeld, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ScheduledDate = date.Format(fleet.DateLayout)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

// ListAppointments returns matching appointments ordered by date, time and id.
func (s *Store) ListAppointments(ctx context.Context, filter fleet.AppointmentFilter) ([]fleet.Appointment, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.VehicleID != "" {
		add("vehicle_id = $%d", filter.VehicleID)
	}
	if filter.ServiceCenterID != "" {
		add("service_center_id = $%d", filter.ServiceCenterID)
	}
	if filter.FromDate != "" {
		add("scheduled_date >= $%d::date", filter.FromDate)
	}
	if filter.ToDate != "" {
		add("scheduled_date <= $%d::date", filter.ToDate)
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY scheduled_date, scheduled_time, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	result := make([]fleet.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("list appointments: %w", err)
		}
		if filter.Matches(*a) {
			result = append(result, *a)
		}
	}
	return result, rows.Err()
}

// GetAppointment loads an appointment by id.
func (s *Store) GetAppointment(ctx context.Context, id string) (*fleet.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fleet.NotFound("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// CreateAppointment inserts an appointment after checking its references.
func (s *Store) CreateAppointment(ctx context.Context, a fleet.Appointment) (*fleet.Appointment, error) {
	if a.ID == "" {
		return nil, fleet.Invalid("appointment.id", "required")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireVehicle(ctx, a.VehicleID); err != nil {
		return nil, err
	}
	if _, err := s.GetServiceCenter(ctx, a.ServiceCenterID); err != nil {
		return nil, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO appointments (`+appointmentColumns+`)
VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING`,
		a.ID, a.VehicleID, a.ServiceCenterID, a.ScheduledDate, a.ScheduledTime, a.ServiceType,
		string(a.Status), string(a.Priority), a.EstimatedDuration, a.Notes, a.SlotHeld, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fleet.Invalid("appointment.id", "already exists")
	}
	return &a, nil
}

// UpdateAppointment applies a guarded patch inside a row-locking transaction.
func (s *Store) UpdateAppointment(ctx context.Context, id string, patch fleet.AppointmentPatch) (*fleet.Appointment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanAppointment(tx.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fleet.NotFound("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	updated, err := patch.Apply(*current)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE appointments
SET status = $2, slot_held = $3, scheduled_date = $4::date, scheduled_time = $5, notes = $6, updated_at = $7
WHERE id = $1`, id, string(updated.Status), updated.SlotHeld, updated.ScheduledDate, updated.ScheduledTime, updated.Notes, updated.UpdatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

const recordColumns = `id, failure_type, component, root_cause, occurrence_count, affected_models,
	corrective_action, preventive_action, status, priority, created_at, resolved_at`

func scanRecord(row rowScanner) (*fleet.RcaCapaRecord, error) {
	var (
		r        fleet.RcaCapaRecord
		models   string
		resolved sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.FailureType, &r.Component, &r.RootCause, &r.OccurrenceCount, &models,
		&r.CorrectiveAction, &r.PreventiveAction, &r.Status, &r.Priority, &r.CreatedAt, &resolved); err != nil {
		return nil, err
	}
	if err := decodeList(models, &r.AffectedModels); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if resolved.Valid {
		at := resolved.Time.UTC()
		r.ResolvedAt = &at
	}
	return &r, nil
}

// ListRcaCapaRecords returns all records ordered by creation time and id.
func (s *Store) ListRcaCapaRecords(ctx context.Context) ([]fleet.RcaCapaRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM rca_capa_records ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list rca records: %w", err)
	}
	defer rows.Close()

	result := make([]fleet.RcaCapaRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list rca records: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// GetRcaCapaRecord loads a record by id.
func (s *Store) GetRcaCapaRecord(ctx context.Context, id string) (*fleet.RcaCapaRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM rca_capa_records WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fleet.NotFound("rca/capa record", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get rca record: %w", err)
	}
	return r, nil
}

// UpdateRcaCapaStatus persists a status change computed by the caller. The UPDATE only matches
// while the row still holds expected, so a stale caller cannot reopen a closed record.
func (s *Store) UpdateRcaCapaStatus(ctx context.Context, id string, expected, status fleet.RcaStatus, resolvedAt *time.Time) (*fleet.RcaCapaRecord, error) {
	current, err := s.GetRcaCapaRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	current.Status = status
	current.ResolvedAt = nil
	if resolvedAt != nil {
		at := resolvedAt.UTC()
		current.ResolvedAt = &at
	}
	if err := current.Validate(); err != nil {
		return nil, err
	}
	var resolved any
	if current.ResolvedAt != nil {
		resolved = *current.ResolvedAt
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE rca_capa_records SET status = $3, resolved_at = $4
WHERE id = $1 AND status = $2 AND status <> 'closed'`, id, string(expected), string(status), resolved)
	if err != nil {
		return nil, fmt.Errorf("update rca record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update rca record: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: rca/capa record %s is no longer %s", fleet.ErrInvalidTransition, id, expected)
	}
	return current, nil
}

// UpsertRcaCapaRecord inserts or replaces a record.
func (s *Store) UpsertRcaCapaRecord(ctx context.Context, r fleet.RcaCapaRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	models, err := encodeList(r.AffectedModels)
	if err != nil {
		return err
	}
	var resolved any
	if r.ResolvedAt != nil {
		resolved = r.ResolvedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO rca_capa_records (`+recordColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
	failure_type = EXCLUDED.failure_type, component = EXCLUDED.component, root_cause = EXCLUDED.root_cause,
	occurrence_count = EXCLUDED.occurrence_count, affected_models = EXCLUDED.affected_models,
	corrective_action = EXCLUDED.corrective_action, preventive_action = EXCLUDED.preventive_action,
	status = EXCLUDED.status, priority = EXCLUDED.priority, resolved_at = EXCLUDED.resolved_at`,
		r.ID, r.FailureType, r.Component, r.RootCause, r.OccurrenceCount, models, r.CorrectiveAction,
		r.PreventiveAction, string(r.Status), string(r.Priority), r.CreatedAt.UTC(), resolved)
	if err != nil {
		return fmt.Errorf("upsert rca record: %w", err)
	}
	return nil
}

func (s *Store) requireVehicle(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("lookup vehicle: %w", err)
	}
	if !exists {
		return fleet.NotFound("vehicle", id)
	}
	return nil
}

func formatDate(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(fleet.DateLayout)
}

func nullDate(date string) any {
	if date == "" {
		return nil
	}
	return date
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeList(raw string, dest *[]string) error {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return err
	}
	if len(values) > 0 {
		*dest = values
	}
	return nil
}
