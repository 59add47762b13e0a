package quality

import (
	"reflect"
	"testing"
	"time"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

var base = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func record(id string, status fleet.RcaStatus, priority fleet.RcaPriority, ageDays int) fleet.RcaCapaRecord {
	r := fleet.RcaCapaRecord{
		ID:          id,
		FailureType: "Wear",
		Component:   "Brake Pads",
		Status:      status,
		Priority:    priority,
		CreatedAt:   base.AddDate(0, 0, ageDays),
	}
	if status == fleet.RcaClosed {
		resolved := base.AddDate(0, 1, 0)
		r.ResolvedAt = &resolved
	}
	return r
}

func prediction(id, vehicleID, component string, level fleet.RiskLevel) fleet.PredictedFailure {
	return fleet.PredictedFailure{
		ID:          id,
		VehicleID:   vehicleID,
		Component:   component,
		RiskLevel:   level,
		Probability: 0.5,
		DetectedAt:  base,
		Status:      fleet.PredictionActive,
	}
}

func categories(insights []Insight) []string {
	out := make([]string, len(insights))
	for i, in := range insights {
		out[i] = in.Category + ":" + in.Component + in.RecordID
	}
	return out
}

func TestSummarizeQualityOrder(t *testing.T) {
	records := []fleet.RcaCapaRecord{
		record("r-high-old", fleet.RcaOpen, fleet.RcaPriorityHigh, 0),
		record("r-crit-new", fleet.RcaInProgress, fleet.RcaPriorityCritical, 10),
		record("r-crit-old", fleet.RcaOpen, fleet.RcaPriorityCritical, 5),
		record("r-low", fleet.RcaOpen, fleet.RcaPriorityLow, 0),
		record("r-closed", fleet.RcaClosed, fleet.RcaPriorityHigh, 0),
	}
	predictions := []fleet.PredictedFailure{
		prediction("p1", "v1", "Battery", fleet.RiskHigh),
		prediction("p2", "v2", "Battery", fleet.RiskHigh),
		prediction("p3", "v1", "Battery", fleet.RiskLow),
		prediction("p4", "v3", "Clutch", fleet.RiskMedium),
		prediction("p5", "v4", "Clutch", fleet.RiskCritical),
		prediction("p6", "v5", "Clutch", fleet.RiskMedium),
	}
	insights, err := SummarizeQuality(records, predictions)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	want := []string{
		"recurring_issue:Clutch",
		"recurring_issue:Battery",
		"urgent_rca:Brake Padsr-crit-old",
		"urgent_rca:Brake Padsr-crit-new",
		"urgent_rca:Brake Padsr-high-old",
	}
	if got := categories(insights); !reflect.DeepEqual(got, want) {
		t.Fatalf("order mismatch\n got: %v\nwant: %v", got, want)
	}
	if insights[1].Metric != "2 vehicles affected" {
		t.Fatalf("battery counts distinct vehicles, got %q", insights[1].Metric)
	}
}

func TestSummarizeQualityTailInsights(t *testing.T) {
	records := []fleet.RcaCapaRecord{
		record("r1", fleet.RcaClosed, fleet.RcaPriorityMedium, 0),
		record("r2", fleet.RcaClosed, fleet.RcaPriorityLow, 1),
	}
	addressed := prediction("p-old", "v9", "Brake Disc", fleet.RiskCritical)
	addressed.Status = fleet.PredictionAddressed
	predictions := []fleet.PredictedFailure{
		prediction("p1", "v1", "Brake Pads", fleet.RiskCritical),
		prediction("p2", "v2", "Brake Disc", fleet.RiskLow),
		addressed,
	}
	insights, err := SummarizeQuality(records, predictions)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	want := []string{"quality_improvement:", "critical_predictions:", "fleet_trend:"}
	if got := categories(insights); !reflect.DeepEqual(got, want) {
		t.Fatalf("order mismatch\n got: %v\nwant: %v", got, want)
	}
	if insights[0].Metric != "2 resolved" || insights[1].Metric != "1 critical" || insights[2].Metric != "1 healthy" {
		t.Fatalf("unexpected metrics %+v", insights)
	}
}

func TestSummarizeQualityEmptyAndInvalid(t *testing.T) {
	insights, err := SummarizeQuality(nil, nil)
	if err != nil || len(insights) != 0 {
		t.Fatalf("expected no insights, got %v (%v)", insights, err)
	}
	bad := record("r1", fleet.RcaClosed, fleet.RcaPriorityLow, 0)
	bad.ResolvedAt = nil
	if _, err := SummarizeQuality([]fleet.RcaCapaRecord{bad}, nil); !fleet.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := SummarizeQuality(nil, []fleet.PredictedFailure{prediction("p", "v", "X", "severe")}); !fleet.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
