package risk

import (
	"reflect"
	"testing"
	"time"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

var detected = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func pf(id, vehicleID string, level fleet.RiskLevel, probability float64, days *int, offset time.Duration) fleet.PredictedFailure {
	return fleet.PredictedFailure{
		ID:                     id,
		VehicleID:              vehicleID,
		Component:              "Brake Pads",
		RiskLevel:              level,
		Probability:            probability,
		EstimatedDaysToFailure: days,
		DetectedAt:             detected.Add(offset),
		Status:                 fleet.PredictionActive,
	}
}

func ids(predictions []fleet.PredictedFailure) []string {
	out := make([]string, len(predictions))
	for i, p := range predictions {
		out[i] = p.ID
	}
	return out
}

func TestRankFailuresOrder(t *testing.T) {
	input := []fleet.PredictedFailure{
		pf("low", "v1", fleet.RiskLow, 0.99, fleet.Days(1), 0),
		pf("high-nil-days", "v1", fleet.RiskHigh, 0.8, nil, 0),
		pf("high-7", "v1", fleet.RiskHigh, 0.8, fleet.Days(7), 0),
		pf("critical", "v1", fleet.RiskCritical, 0.4, nil, 0),
		pf("high-7-later", "v1", fleet.RiskHigh, 0.8, fleet.Days(7), time.Hour),
		pf("high-higher-prob", "v1", fleet.RiskHigh, 0.9, fleet.Days(30), 0),
	}
	ranked, err := RankFailures(input)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	want := []string{"critical", "high-higher-prob", "high-7", "high-7-later", "high-nil-days", "low"}
	if got := ids(ranked); !reflect.DeepEqual(got, want) {
		t.Fatalf("order mismatch\n got: %v\nwant: %v", got, want)
	}
	if input[0].ID != "low" {
		t.Fatal("input slice must not be mutated")
	}
}

func permutations(items []fleet.PredictedFailure) [][]fleet.PredictedFailure {
	if len(items) <= 1 {
		return [][]fleet.PredictedFailure{append([]fleet.PredictedFailure(nil), items...)}
	}
	var out [][]fleet.PredictedFailure
	for i := range items {
		rest := make([]fleet.PredictedFailure, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, tail := range permutations(rest) {
			out = append(out, append([]fleet.PredictedFailure{items[i]}, tail...))
		}
	}
	return out
}

func TestRankFailuresIgnoresInputOrder(t *testing.T) {
	input := []fleet.PredictedFailure{
		pf("crit-50", "v1", fleet.RiskCritical, 0.5, nil, 0),
		pf("crit-90", "v1", fleet.RiskCritical, 0.9, nil, 0),
		pf("high-99", "v1", fleet.RiskHigh, 0.99, nil, 0),
	}
	want := []string{"crit-90", "crit-50", "high-99"}
	orders := permutations(input)
	if len(orders) != 6 {
		t.Fatalf("expected 6 orderings, got %d", len(orders))
	}
	for _, order := range orders {
		ranked, err := RankFailures(order)
		if err != nil {
			t.Fatalf("rank: %v", err)
		}
		if got := ids(ranked); !reflect.DeepEqual(got, want) {
			t.Fatalf("input %v ranked as %v, want %v", ids(order), got, want)
		}
	}
}

func TestRankFailuresIsIdempotentAndTotal(t *testing.T) {
	input := []fleet.PredictedFailure{
		pf("b", "v1", fleet.RiskMedium, 0.5, fleet.Days(10), 0),
		pf("a", "v1", fleet.RiskMedium, 0.5, fleet.Days(10), 0),
		pf("c", "v1", fleet.RiskMedium, 0.5, fleet.Days(10), 0),
	}
	first, err := RankFailures(input)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	second, _ := RankFailures(first)
	if !reflect.DeepEqual(ids(first), []string{"a", "b", "c"}) || !reflect.DeepEqual(ids(first), ids(second)) {
		t.Fatalf("unexpected order %v then %v", ids(first), ids(second))
	}
}

func TestRankFailuresRejectsUnknownLevel(t *testing.T) {
	input := []fleet.PredictedFailure{pf("x", "v1", fleet.RiskLevel("severe"), 0.5, nil, 0)}
	if _, err := RankFailures(input); !fleet.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRankVehicles(t *testing.T) {
	vehicles := []fleet.Vehicle{
		{ID: "v-healthy", HealthScore: 95, Status: fleet.VehicleStatusActive},
		{ID: "v-weak", HealthScore: 40, Status: fleet.VehicleStatusActive},
		{ID: "v-high", HealthScore: 80, Status: fleet.VehicleStatusActive},
		{ID: "v-critical", HealthScore: 70, Status: fleet.VehicleStatusActive},
		{ID: "v-dismissed", HealthScore: 60, Status: fleet.VehicleStatusActive},
	}
	dismissed := pf("d1", "v-dismissed", fleet.RiskCritical, 0.99, nil, 0)
	dismissed.Status = fleet.PredictionDismissed
	byVehicle := GroupByVehicle([]fleet.PredictedFailure{
		pf("h1", "v-high", fleet.RiskHigh, 0.7, fleet.Days(20), 0),
		pf("c1", "v-critical", fleet.RiskCritical, 0.6, fleet.Days(3), 0),
		pf("c2", "v-critical", fleet.RiskMedium, 0.9, fleet.Days(3), 0),
		dismissed,
	})

	ranks, err := RankVehicles(vehicles, byVehicle)
	if err != nil {
		t.Fatalf("rank vehicles: %v", err)
	}
	var got []string
	for _, r := range ranks {
		got = append(got, r.Vehicle.ID)
	}
	want := []string{"v-critical", "v-high", "v-weak", "v-dismissed", "v-healthy"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order mismatch\n got: %v\nwant: %v", got, want)
	}
	if ranks[0].Top == nil || ranks[0].Top.ID != "c1" || ranks[0].ActiveCount != 2 {
		t.Fatalf("unexpected top for v-critical: %+v", ranks[0])
	}
	if ranks[3].Top != nil {
		t.Fatal("dismissed predictions must not rank a vehicle")
	}
}
