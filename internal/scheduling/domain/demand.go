package scheduling

import (
	"time"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

// MaxDemandDays bounds a forecast horizon.
const MaxDemandDays = 90

// DemandDay is the service demand for one calendar day.
type DemandDay struct {
	Date      string `json:"date"`
	Actual    int    `json:"actual"`
	Predicted int    `json:"predicted"`
}

// ForecastDemand counts, per day starting at from, the booked appointments (actual) and
// actual plus active predictions expected to fail that day (predicted). Cancelled and
// declined appointments are not demand.
func ForecastDemand(from time.Time, days int, appointments []fleet.Appointment, predictions []fleet.PredictedFailure) ([]DemandDay, error) {
	if days <= 0 || days > MaxDemandDays {
		return nil, fleet.Invalid("days", "must be within [1,90]")
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	index := make(map[string]int, days)
	forecast := make([]DemandDay, days)
	for i := range forecast {
		date := start.AddDate(0, 0, i).Format(fleet.DateLayout)
		forecast[i].Date = date
		index[date] = i
	}

	for _, a := range appointments {
		if a.Status == fleet.AppointmentCancelled || a.Status == fleet.AppointmentDeclined {
			continue
		}
		if i, ok := index[a.ScheduledDate]; ok {
			forecast[i].Actual++
		}
	}
	for i := range forecast {
		forecast[i].Predicted = forecast[i].Actual
	}
	for _, p := range predictions {
		if !p.IsActive() || p.EstimatedDaysToFailure == nil {
			continue
		}
		detected := p.DetectedAt.UTC()
		failure := time.Date(detected.Year(), detected.Month(), detected.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, *p.EstimatedDaysToFailure).Format(fleet.DateLayout)
		if i, ok := index[failure]; ok {
			forecast[i].Predicted++
		}
	}
	return forecast, nil
}
