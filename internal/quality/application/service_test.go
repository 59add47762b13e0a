package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleet-risk-engine/internal/eventing"
	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/fleet/infrastructure/memory"
	quality "fleet-risk-engine/internal/quality/domain"
)

var testNow = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type capturePublisher struct {
	events []any
}

func (p *capturePublisher) Publish(_ context.Context, event any) error {
	p.events = append(p.events, event)
	return nil
}

func newService(t *testing.T) (*Service, *memory.Store, *capturePublisher) {
	t.Helper()
	fixture, err := memory.DefaultFixture()
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	store, err := memory.NewSeededStore(fixture)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	publisher := &capturePublisher{}
	service, err := NewService(store, WithPublisher(publisher), WithClock(fixedClock{now: testNow}))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return service, store, publisher
}

func TestInsightsFromFixture(t *testing.T) {
	service, _, _ := newService(t)

	insights, err := service.Insights(context.Background())
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	want := []string{
		quality.CategoryUrgentRca,
		quality.CategoryUrgentRca,
		quality.CategoryQualityImprovement,
		quality.CategoryCriticalPredictions,
		quality.CategoryFleetTrend,
	}
	if len(insights) != len(want) {
		t.Fatalf("expected %d insights, got %+v", len(want), insights)
	}
	for i, category := range want {
		if insights[i].Category != category {
			t.Fatalf("insight %d: expected %s, got %s", i, category, insights[i].Category)
		}
	}
	if insights[0].RecordID != "rca-001" || insights[1].RecordID != "rca-002" {
		t.Fatalf("critical record should lead, got %s then %s", insights[0].RecordID, insights[1].RecordID)
	}
}

func TestInsightsReflectLatestRecords(t *testing.T) {
	service, _, _ := newService(t)
	ctx := context.Background()

	if _, err := service.TransitionRecord(ctx, "rca-002", fleet.RcaClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	insights, err := service.Insights(ctx)
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	urgent := 0
	for _, in := range insights {
		if in.Category == quality.CategoryUrgentRca {
			urgent++
		}
		if in.Category == quality.CategoryQualityImprovement && in.Metric != "3 resolved" {
			t.Fatalf("expected 3 resolved, got %q", in.Metric)
		}
	}
	if urgent != 1 {
		t.Fatalf("closed record must drop out of urgent insights, got %d", urgent)
	}
}

func TestTransitionRecord(t *testing.T) {
	service, store, publisher := newService(t)
	ctx := context.Background()

	closed, err := service.TransitionRecord(ctx, "rca-001", fleet.RcaClosed)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.ResolvedAt == nil || !closed.ResolvedAt.Equal(testNow) {
		t.Fatalf("expected resolvedAt stamped, got %v", closed.ResolvedAt)
	}
	stored, err := store.GetRcaCapaRecord(ctx, "rca-001")
	if err != nil || stored.Status != fleet.RcaClosed {
		t.Fatalf("expected persisted close, got %+v (%v)", stored, err)
	}
	for _, status := range []fleet.RcaStatus{fleet.RcaOpen, fleet.RcaInProgress, fleet.RcaClosed} {
		if _, err := service.TransitionRecord(ctx, "rca-001", status); !errors.Is(err, fleet.ErrInvalidTransition) {
			t.Fatalf("closed record moved to %s: %v", status, err)
		}
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.events))
	}
	event, ok := publisher.events[0].(eventing.RcaCapaTransitioned)
	if !ok || event.From != "in_progress" || event.To != "closed" {
		t.Fatalf("unexpected event %#v", publisher.events[0])
	}
}

func TestTransitionRecordRejectsUnknown(t *testing.T) {
	service, _, _ := newService(t)
	ctx := context.Background()

	if _, err := service.TransitionRecord(ctx, "rca-404", fleet.RcaClosed); !fleet.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.TransitionRecord(ctx, "rca-002", fleet.RcaStatus("archived")); !fleet.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := service.TransitionRecord(ctx, "rca-002", fleet.RcaInProgress); err != nil {
		t.Fatalf("open to in_progress: %v", err)
	}
}

// staleReadStore serves a record snapshot taken before a concurrent writer changed it.
type staleReadStore struct {
	*memory.Store
	snapshot fleet.RcaCapaRecord
}

func (s staleReadStore) GetRcaCapaRecord(_ context.Context, _ string) (*fleet.RcaCapaRecord, error) {
	record := s.snapshot
	return &record, nil
}

func TestTransitionRecordStaleReadCannotReopen(t *testing.T) {
	service, store, _ := newService(t)
	ctx := context.Background()

	before, err := store.GetRcaCapaRecord(ctx, "rca-002")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := service.TransitionRecord(ctx, "rca-002", fleet.RcaClosed); err != nil {
		t.Fatalf("close: %v", err)
	}

	racer, err := NewService(staleReadStore{Store: store, snapshot: *before}, WithClock(fixedClock{now: testNow}))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if _, err := racer.TransitionRecord(ctx, "rca-002", fleet.RcaInProgress); !errors.Is(err, fleet.ErrInvalidTransition) {
		t.Fatalf("expected stale transition to be rejected, got %v", err)
	}
	final, _ := store.GetRcaCapaRecord(ctx, "rca-002")
	if final.Status != fleet.RcaClosed || final.ResolvedAt == nil {
		t.Fatalf("closed record was reopened: %+v", final)
	}
}
