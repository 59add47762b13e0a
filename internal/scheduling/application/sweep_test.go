package application

import (
	"context"
	"testing"
)

func TestAutoScheduleSweep(t *testing.T) {
	store := seededStore(t)
	service, publisher := newService(t, store)
	ctx := context.Background()

	report, err := service.AutoScheduleSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Scheduled != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("unexpected counts %+v", report)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", report.Entries)
	}
	first, second := report.Entries[0], report.Entries[1]
	if first.VehicleID != "veh-004" || first.Outcome != OutcomePending || first.PredictionID != "pred-001" {
		t.Fatalf("critical vehicle with pending appointment should be skipped first, got %+v", first)
	}
	if second.VehicleID != "veh-009" || second.Outcome != OutcomeScheduled || second.CenterID != "sc-mumbai" {
		t.Fatalf("veh-009 should be booked at the electrical center, got %+v", second)
	}
	appointment, err := store.GetAppointment(ctx, second.AppointmentID)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	if appointment.ServiceType != "Battery Service" || appointment.Priority != "high" {
		t.Fatalf("unexpected appointment %+v", appointment)
	}
	if publisher.count() != 1 {
		t.Fatalf("expected 1 event, got %d", publisher.count())
	}

	again, err := service.AutoScheduleSweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.Scheduled != 0 || again.Skipped != 2 {
		t.Fatalf("second sweep should book nothing, got %+v", again)
	}
}

func TestAutoScheduleSweepContinuesPastNoCapacity(t *testing.T) {
	store := seededStore(t)
	fillAllCenters(t, store)
	service, _ := newService(t, store)

	report, err := service.AutoScheduleSweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Failed != 1 || report.Skipped != 1 || report.Scheduled != 0 {
		t.Fatalf("unexpected counts %+v", report)
	}
	if report.Entries[1].Outcome != OutcomeNoCapacity || report.Entries[1].Reason == "" {
		t.Fatalf("expected recorded no capacity, got %+v", report.Entries[1])
	}
}
