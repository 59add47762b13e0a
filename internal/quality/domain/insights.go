package quality

import (
	"fmt"
	"sort"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

// MaxInsights caps a summary.
const MaxInsights = 5

// Insight tones.
const (
	TypeWarning     = "warning"
	TypeImprovement = "improvement"
	TypeSuccess     = "success"
)

// Insight categories.
const (
	CategoryRecurringIssue      = "recurring_issue"
	CategoryUrgentRca           = "urgent_rca"
	CategoryQualityImprovement  = "quality_improvement"
	CategoryCriticalPredictions = "critical_predictions"
	CategoryFleetTrend          = "fleet_trend"
)

// Insight is one line of the manufacturing quality summary.
type Insight struct {
	Type        string `json:"type"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Metric      string `json:"metric,omitempty"`
	Component   string `json:"component,omitempty"`
	RecordID    string `json:"record_id,omitempty"`
}

type componentCount struct {
	component string
	vehicles  int
}

// SummarizeQuality derives insights from quality records and active predictions, in order:
// recurring component issues, urgent unresolved records, closed-record improvements, critical
// predictions and the low-risk fleet trend. At most MaxInsights are returned.
func SummarizeQuality(records []fleet.RcaCapaRecord, predictions []fleet.PredictedFailure) ([]Insight, error) {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	if err := fleet.ValidatePredictions(predictions); err != nil {
		return nil, err
	}

	var active []fleet.PredictedFailure
	for _, p := range predictions {
		if p.IsActive() {
			active = append(active, p)
		}
	}

	var insights []Insight
	insights = append(insights, recurringIssues(active)...)
	insights = append(insights, urgentRecords(records)...)

	closed := 0
	for _, r := range records {
		if r.Status == fleet.RcaClosed {
			closed++
		}
	}
	if closed > 0 {
		insights = append(insights, Insight{
			Type:        TypeSuccess,
			Category:    CategoryQualityImprovement,
			Title:       "Quality Improvements Implemented",
			Description: fmt.Sprintf("%d corrective actions have been closed and verified.", closed),
			Metric:      fmt.Sprintf("%d resolved", closed),
		})
	}

	critical := distinctVehicles(active, fleet.RiskCritical)
	if critical > 0 {
		insights = append(insights, Insight{
			Type:        TypeWarning,
			Category:    CategoryCriticalPredictions,
			Title:       "Immediate Attention Required",
			Description: fmt.Sprintf("%d vehicles have critical failure predictions requiring urgent service scheduling.", critical),
			Metric:      fmt.Sprintf("%d critical", critical),
		})
	}

	low := distinctVehicles(active, fleet.RiskLow)
	if low > 0 {
		insights = append(insights, Insight{
			Type:        TypeImprovement,
			Category:    CategoryFleetTrend,
			Title:       "Fleet Health Trend",
			Description: fmt.Sprintf("%d vehicles show only minor maintenance needs.", low),
			Metric:      fmt.Sprintf("%d healthy", low),
		})
	}

	if len(insights) > MaxInsights {
		insights = insights[:MaxInsights]
	}
	return insights, nil
}

// recurringIssues flags components predicted to fail on at least two distinct vehicles.
func recurringIssues(active []fleet.PredictedFailure) []Insight {
	vehicles := make(map[string]map[string]struct{})
	for _, p := range active {
		if vehicles[p.Component] == nil {
			vehicles[p.Component] = make(map[string]struct{})
		}
		vehicles[p.Component][p.VehicleID] = struct{}{}
	}
	var counts []componentCount
	for component, set := range vehicles {
		if len(set) >= 2 {
			counts = append(counts, componentCount{component: component, vehicles: len(set)})
		}
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].vehicles != counts[j].vehicles {
			return counts[i].vehicles > counts[j].vehicles
		}
		return counts[i].component < counts[j].component
	})

	insights := make([]Insight, 0, len(counts))
	for _, c := range counts {
		insights = append(insights, Insight{
			Type:        TypeWarning,
			Category:    CategoryRecurringIssue,
			Title:       "Recurring Component Issue",
			Description: fmt.Sprintf("%s shows predicted failures on %d vehicles across the fleet. Consider a design review.", c.component, c.vehicles),
			Metric:      fmt.Sprintf("%d vehicles affected", c.vehicles),
			Component:   c.component,
		})
	}
	return insights
}

// urgentRecords surfaces unresolved high and critical records, critical first then oldest first.
func urgentRecords(records []fleet.RcaCapaRecord) []Insight {
	var urgent []fleet.RcaCapaRecord
	for _, r := range records {
		if r.IsUnresolved() && (r.Priority == fleet.RcaPriorityHigh || r.Priority == fleet.RcaPriorityCritical) {
			urgent = append(urgent, r)
		}
	}
	sort.SliceStable(urgent, func(i, j int) bool {
		ri, _ := urgent[i].Priority.Rank()
		rj, _ := urgent[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		if !urgent[i].CreatedAt.Equal(urgent[j].CreatedAt) {
			return urgent[i].CreatedAt.Before(urgent[j].CreatedAt)
		}
		return urgent[i].ID < urgent[j].ID
	})

	insights := make([]Insight, 0, len(urgent))
	for _, r := range urgent {
		insights = append(insights, Insight{
			Type:        TypeWarning,
			Category:    CategoryUrgentRca,
			Title:       "Critical Quality Issue Pending",
			Description: fmt.Sprintf("%s on %s (%s) needs attention from the manufacturing team: %s", r.FailureType, r.Component, r.Status, r.CorrectiveAction),
			Metric:      fmt.Sprintf("%s priority, %d occurrences", r.Priority, r.OccurrenceCount),
			Component:   r.Component,
			RecordID:    r.ID,
		})
	}
	return insights
}

func distinctVehicles(active []fleet.PredictedFailure, level fleet.RiskLevel) int {
	seen := make(map[string]struct{})
	for _, p := range active {
		if p.RiskLevel == level {
			seen[p.VehicleID] = struct{}{}
		}
	}
	return len(seen)
}
