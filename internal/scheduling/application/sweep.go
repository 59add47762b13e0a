package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/observability/metrics"
	risk "fleet-risk-engine/internal/risk/domain"
	scheduling "fleet-risk-engine/internal/scheduling/domain"
)

// Sweep entry outcomes.
const (
	OutcomeScheduled  = "scheduled"
	OutcomePending    = "skipped_pending"
	OutcomeNoCapacity = "no_capacity"
	OutcomeConflict   = "conflict"
	OutcomeInvalid    = "invalid"
)

// SweepEntry records what the sweep did for one at-risk vehicle.
type SweepEntry struct {
	VehicleID     string `json:"vehicle_id"`
	PredictionID  string `json:"prediction_id"`
	Component     string `json:"component"`
	Outcome       string `json:"outcome"`
	AppointmentID string `json:"appointment_id,omitempty"`
	CenterID      string `json:"service_center_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// SweepReport summarizes an auto-scheduling sweep in rank order.
type SweepReport struct {
	Entries   []SweepEntry `json:"entries"`
	Scheduled int          `json:"scheduled"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
}

// AutoScheduleSweep books appointments for every vehicle whose top active prediction is high
// or critical and that has no pending appointment, most urgent vehicle first. Per-vehicle
// capacity, conflict and validation failures are recorded and the sweep continues.
func (s *Service) AutoScheduleSweep(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	vehicles, err := s.store.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	predictions, err := s.store.ListActivePredictions(ctx, "")
	if err != nil {
		return nil, err
	}
	ranks, err := risk.RankVehicles(vehicles, risk.GroupByVehicle(predictions))
	if err != nil {
		return nil, err
	}
	pending, err := s.store.ListAppointments(ctx, fleet.AppointmentFilter{Statuses: fleet.PendingStatuses()})
	if err != nil {
		return nil, err
	}
	booked := make(map[string]bool, len(pending))
	for _, a := range pending {
		booked[a.VehicleID] = true
	}

	now := s.clock.Now()
	report := &SweepReport{}
	for _, rank := range ranks {
		if rank.Top == nil || !rank.Top.IsUrgent() {
			continue
		}
		top := rank.Top
		entry := SweepEntry{VehicleID: rank.Vehicle.ID, PredictionID: top.ID, Component: top.Component}
		if booked[rank.Vehicle.ID] {
			entry.Outcome = OutcomePending
			report.Skipped++
			report.Entries = append(report.Entries, entry)
			continue
		}

		appointment, err := s.ScheduleAppointment(ctx, Request{
			VehicleID:      rank.Vehicle.ID,
			From:           now,
			To:             now.Add(s.sweepWindow),
			ServiceType:    scheduling.ServiceTypeForComponent(top.Component),
			Priority:       fleet.PriorityForRisk(top.RiskLevel),
			Specialization: scheduling.SpecializationFor(top.Component),
			Notes:          top.RecommendedAction,
		})
		switch {
		case err == nil:
			entry.Outcome = OutcomeScheduled
			entry.AppointmentID = appointment.ID
			entry.CenterID = appointment.ServiceCenterID
			booked[rank.Vehicle.ID] = true
			report.Scheduled++
		case fleet.IsNoCapacity(err):
			entry.Outcome = OutcomeNoCapacity
			entry.Reason = err.Error()
			report.Failed++
		case fleet.IsConcurrentUpdate(err):
			entry.Outcome = OutcomeConflict
			entry.Reason = err.Error()
			report.Failed++
		case fleet.IsValidation(err), fleet.IsNotFound(err):
			entry.Outcome = OutcomeInvalid
			entry.Reason = err.Error()
			report.Failed++
		default:
			return nil, err
		}
		report.Entries = append(report.Entries, entry)
	}

	elapsed := time.Since(start)
	metrics.ObserveSweep(report.Scheduled, report.Skipped, report.Failed, elapsed)
	s.logger.Info("auto schedule sweep finished",
		zap.Int("scheduled", report.Scheduled),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", elapsed),
	)
	return report, nil
}
