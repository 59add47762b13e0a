package fleet

import (
	"errors"
	"testing"
	"time"
)

func TestParseRiskLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseRiskLevel("severe"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	level, err := ParseRiskLevel("critical")
	if err != nil || level != RiskCritical {
		t.Fatalf("expected critical, got %v %v", level, err)
	}
}

func TestRiskLevelRankIsStrictlyIncreasing(t *testing.T) {
	levels := []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
	prev := 0
	for _, level := range levels {
		rank, ok := level.Rank()
		if !ok || rank <= prev {
			t.Fatalf("rank for %s not increasing: %d after %d", level, rank, prev)
		}
		prev = rank
	}
}

func TestPredictionValidateProbabilityRange(t *testing.T) {
	p := PredictedFailure{ID: "p1", VehicleID: "v1", RiskLevel: RiskHigh, Probability: 1.2, Status: PredictionActive}
	if err := p.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	p.Probability = 0.4
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServiceCenterValidate(t *testing.T) {
	if err := (ServiceCenter{ID: "c1", Capacity: -1}).Validate(); !IsValidation(err) {
		t.Fatalf("expected negative capacity to be rejected, got %v", err)
	}
	if err := (ServiceCenter{ID: "c1", Capacity: 2, CurrentLoad: 3}).Validate(); !IsValidation(err) {
		t.Fatalf("expected overload to be rejected, got %v", err)
	}
	center := ServiceCenter{ID: "c1", Capacity: 4, CurrentLoad: 1}
	if center.Utilization() != 0.25 || center.Available() != 3 {
		t.Fatalf("unexpected utilization %v available %d", center.Utilization(), center.Available())
	}
	if !(ServiceCenter{Specializations: []string{" Engine "}}).Specializes("engine") {
		t.Fatal("expected case-insensitive specialization match")
	}
}

func TestRcaTransitionForwardOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	record := RcaCapaRecord{ID: "r1", Status: RcaOpen, Priority: RcaPriorityHigh}

	progressed, err := record.Transition(RcaInProgress, now)
	if err != nil {
		t.Fatalf("open -> in_progress: %v", err)
	}
	if progressed.ResolvedAt != nil {
		t.Fatal("resolved_at must stay nil until closed")
	}

	closed, err := progressed.Transition(RcaClosed, now)
	if err != nil {
		t.Fatalf("in_progress -> closed: %v", err)
	}
	if closed.ResolvedAt == nil || !closed.ResolvedAt.Equal(now) {
		t.Fatalf("expected resolved_at %v, got %v", now, closed.ResolvedAt)
	}
	if err := closed.Validate(); err != nil {
		t.Fatalf("closed record invalid: %v", err)
	}

	for _, next := range []RcaStatus{RcaOpen, RcaInProgress, RcaClosed} {
		if _, err := closed.Transition(next, now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("closed -> %s should be rejected, got %v", next, err)
		}
	}
}

func TestAppointmentPatchGuard(t *testing.T) {
	appt := Appointment{
		VehicleID:       "v1",
		ServiceCenterID: "c1",
		ScheduledDate:   "2026-03-02",
		Status:          AppointmentScheduled,
		Priority:        PriorityNormal,
	}
	expected := AppointmentConfirmed
	next := AppointmentCancelled
	if _, err := (AppointmentPatch{ExpectedStatus: &expected, Status: &next}).Apply(appt); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected guard failure, got %v", err)
	}
	expected = AppointmentScheduled
	updated, err := (AppointmentPatch{ExpectedStatus: &expected, Status: &next}).Apply(appt)
	if err != nil || updated.Status != AppointmentCancelled {
		t.Fatalf("expected cancelled, got %v %v", updated.Status, err)
	}
}

func TestAppointmentHoldsSlot(t *testing.T) {
	cases := []struct {
		appt Appointment
		want bool
	}{
		{Appointment{Status: AppointmentScheduled}, false},
		{Appointment{Status: AppointmentScheduled, SlotHeld: true}, true},
		{Appointment{Status: AppointmentConfirmed}, true},
		{Appointment{Status: AppointmentInProgress}, true},
		{Appointment{Status: AppointmentCancelled, SlotHeld: true}, false},
	}
	for _, tc := range cases {
		if got := tc.appt.HoldsSlot(); got != tc.want {
			t.Fatalf("%+v: expected %v, got %v", tc.appt, tc.want, got)
		}
	}
}

func TestAppointmentFilterMatches(t *testing.T) {
	appt := Appointment{VehicleID: "v1", ServiceCenterID: "c1", ScheduledDate: "2026-03-05", Status: AppointmentConfirmed}
	if !(AppointmentFilter{Statuses: PendingStatuses()}).Matches(appt) {
		t.Fatal("confirmed should be pending")
	}
	if (AppointmentFilter{FromDate: "2026-03-06"}).Matches(appt) {
		t.Fatal("date filter should exclude earlier appointment")
	}
	if (AppointmentFilter{VehicleID: "v2"}).Matches(appt) {
		t.Fatal("vehicle filter should exclude other vehicle")
	}
}
