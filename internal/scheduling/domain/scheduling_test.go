package scheduling

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

func TestNextStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		from  fleet.AppointmentStatus
		event string
		want  fleet.AppointmentStatus
	}{
		{fleet.AppointmentScheduled, EventConfirm, fleet.AppointmentConfirmed},
		{fleet.AppointmentConfirmed, EventStart, fleet.AppointmentInProgress},
		{fleet.AppointmentInProgress, EventComplete, fleet.AppointmentCompleted},
		{fleet.AppointmentScheduled, EventDecline, fleet.AppointmentDeclined},
		{fleet.AppointmentScheduled, EventCancel, fleet.AppointmentCancelled},
		{fleet.AppointmentConfirmed, EventCancel, fleet.AppointmentCancelled},
		{fleet.AppointmentInProgress, EventCancel, fleet.AppointmentCancelled},
	}
	for _, tc := range cases {
		got, err := NextStatus(ctx, tc.from, tc.event)
		if err != nil || got != tc.want {
			t.Fatalf("%s --%s--> expected %s, got %s (%v)", tc.from, tc.event, tc.want, got, err)
		}
	}
}

func TestNextStatusRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	invalid := []struct {
		from  fleet.AppointmentStatus
		event string
	}{
		{fleet.AppointmentCompleted, EventCancel},
		{fleet.AppointmentCancelled, EventCancel},
		{fleet.AppointmentDeclined, EventConfirm},
		{fleet.AppointmentConfirmed, EventDecline},
		{fleet.AppointmentScheduled, EventComplete},
		{fleet.AppointmentScheduled, "teleport"},
	}
	for _, tc := range invalid {
		if _, err := NextStatus(ctx, tc.from, tc.event); !errors.Is(err, fleet.ErrInvalidTransition) {
			t.Fatalf("%s --%s--> expected invalid transition, got %v", tc.from, tc.event, err)
		}
	}
}

func TestAvailableEvents(t *testing.T) {
	got := AvailableEvents(fleet.AppointmentScheduled)
	want := []string{EventCancel, EventConfirm, EventDecline}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(AvailableEvents(fleet.AppointmentCompleted)) != 0 {
		t.Fatal("terminal status must have no events")
	}
}

func TestSpecializationFor(t *testing.T) {
	cases := map[string]string{
		"EV Battery Check":        "EV Service",
		"Battery Replacement":     "Electrical",
		"Transmission Service":    "Transmission",
		"Gearbox Service":         "Transmission",
		"Engine Oil Service":      "Engine",
		"Tire rotation":           "Tire Center",
		"Emergency Brake Service": "",
	}
	for input, want := range cases {
		if got := SpecializationFor(input); got != want {
			t.Fatalf("SpecializationFor(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRankCenters(t *testing.T) {
	centers := []fleet.ServiceCenter{
		{ID: "c-full", City: "Pune", Capacity: 2, CurrentLoad: 2, Specializations: []string{"Engine"}},
		{ID: "c-busy", City: "Pune", Capacity: 10, CurrentLoad: 8, Specializations: []string{"Engine"}},
		{ID: "c-quiet-far", City: "Delhi", Capacity: 10, CurrentLoad: 2},
		{ID: "c-quiet-near", City: "pune", Capacity: 10, CurrentLoad: 2},
		{ID: "c-b", City: "Delhi", Capacity: 10, CurrentLoad: 5},
		{ID: "c-a", City: "Delhi", Capacity: 10, CurrentLoad: 5},
	}
	ids := func(cs []fleet.ServiceCenter) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}

	got := ids(RankCenters(centers, "Pune", "", false))
	want := []string{"c-quiet-near", "c-quiet-far", "c-a", "c-b", "c-busy"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("open order\n got: %v\nwant: %v", got, want)
	}
	if got := ids(RankCenters(centers, "Pune", "engine", false)); !reflect.DeepEqual(got, []string{"c-busy"}) {
		t.Fatalf("specialization should win, got %v", got)
	}
	if got := RankCenters(centers, "Pune", "Detailing", true); len(got) != 0 {
		t.Fatalf("mandatory specialization must not fall back, got %v", ids(got))
	}
	if got := RankCenters(centers, "Pune", "Detailing", false); len(got) != 5 {
		t.Fatalf("soft specialization should fall back, got %v", ids(got))
	}
}

func TestOpeningTime(t *testing.T) {
	cases := map[string]string{
		"8:00 AM - 8:00 PM": "08:00",
		"7:30 AM - 8:30 PM": "07:30",
		"09:15-17:00":       "09:15",
		"by appointment":    "09:00",
	}
	for hours, want := range cases {
		if got := OpeningTime(hours, "09:00"); got != want {
			t.Fatalf("OpeningTime(%q) = %q, want %q", hours, got, want)
		}
	}
}

func TestInitialStatus(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	if got := InitialStatus(fleet.PriorityUrgent, now.Add(24*time.Hour), now, 48*time.Hour); got != fleet.AppointmentConfirmed {
		t.Fatalf("urgent within window should confirm, got %s", got)
	}
	if got := InitialStatus(fleet.PriorityUrgent, now.Add(72*time.Hour), now, 48*time.Hour); got != fleet.AppointmentScheduled {
		t.Fatalf("urgent outside window should stay scheduled, got %s", got)
	}
	if got := InitialStatus(fleet.PriorityHigh, now, now, 48*time.Hour); got != fleet.AppointmentScheduled {
		t.Fatalf("non-urgent should stay scheduled, got %s", got)
	}
}

func TestForecastDemand(t *testing.T) {
	from := time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC)
	appointments := []fleet.Appointment{
		{ScheduledDate: "2026-10-15", Status: fleet.AppointmentConfirmed},
		{ScheduledDate: "2026-10-15", Status: fleet.AppointmentCancelled},
		{ScheduledDate: "2026-10-17", Status: fleet.AppointmentScheduled},
		{ScheduledDate: "2026-11-30", Status: fleet.AppointmentScheduled},
	}
	predictions := []fleet.PredictedFailure{
		{ID: "p1", DetectedAt: time.Date(2026, 10, 10, 22, 0, 0, 0, time.UTC), EstimatedDaysToFailure: fleet.Days(7), Status: fleet.PredictionActive},
		{ID: "p2", DetectedAt: time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC), EstimatedDaysToFailure: fleet.Days(7), Status: fleet.PredictionAddressed},
		{ID: "p3", DetectedAt: time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC), Status: fleet.PredictionActive},
	}
	got, err := ForecastDemand(from, 3, appointments, predictions)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	want := []DemandDay{
		{Date: "2026-10-15", Actual: 1, Predicted: 1},
		{Date: "2026-10-16", Actual: 0, Predicted: 0},
		{Date: "2026-10-17", Actual: 1, Predicted: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("forecast mismatch\n got: %+v\nwant: %+v", got, want)
	}
	if _, err := ForecastDemand(from, 0, nil, nil); !fleet.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
