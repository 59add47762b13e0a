package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

const (
	metricPrefix = "fleet_"

	resultSuccess = "success"
	resultError   = "error"

	scheduleResultScheduled  = "scheduled"
	scheduleResultNoCapacity = "no_capacity"
	scheduleResultConflict   = "conflict"
	scheduleResultInvalid    = "invalid"

	sweepResultScheduled = "scheduled"
	sweepResultSkipped   = "skipped"
	sweepResultFailed    = "failed"
)

var (
	registerOnce sync.Once

	scoringTotal   *prometheus.CounterVec
	scoringLatency *prometheus.HistogramVec

	scheduleTotal   *prometheus.CounterVec
	scheduleLatency *prometheus.HistogramVec
	casConflicts    *prometheus.CounterVec

	appointmentTransitions *prometheus.CounterVec

	sweepVehicles *prometheus.CounterVec
	sweepLatency  prometheus.Histogram

	insightTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers engine metrics. When centers is non-nil a utilization gauge is
// collected from it on every scrape.
func Init(centers fleet.CenterRepository, logger *zap.Logger) {
	registerOnce.Do(func() {
		scoringTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "health_scoring_total",
				Help: "Total health score computations by result",
			},
			[]string{"result"},
		)
		scoringLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "health_scoring_latency_seconds",
				Help:    "Health recompute latency in seconds by scope",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		)

		scheduleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_requests_total",
				Help: "Total scheduling requests by outcome",
			},
			[]string{"outcome"},
		)
		scheduleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "schedule_latency_seconds",
				Help:    "Scheduling latency in seconds by outcome",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)
		casConflicts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "center_load_conflicts_total",
				Help: "Total lost compare-and-swap attempts on center load",
			},
			[]string{"center_id"},
		)

		appointmentTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "appointment_transitions_total",
				Help: "Total appointment lifecycle transitions by event",
			},
			[]string{"event"},
		)

		sweepVehicles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_vehicles_total",
				Help: "Vehicles handled by auto-schedule sweeps by result",
			},
			[]string{"result"},
		)
		sweepLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sweep_latency_seconds",
				Help:    "Auto-schedule sweep latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		insightTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "quality_insights_total",
				Help: "Total quality insights produced by type",
			},
			[]string{"type"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "quality_export_total",
				Help: "Total quality report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "quality_export_latency_seconds",
				Help:    "Quality report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			scoringTotal,
			scoringLatency,
			scheduleTotal,
			scheduleLatency,
			casConflicts,
			appointmentTransitions,
			sweepVehicles,
			sweepLatency,
			insightTotal,
			exportTotal,
			exportLatency,
		)

		if centers != nil {
			prometheus.MustRegister(newCenterCollector(centers, logger))
		}
	})
}

// ObserveScoring records one health score computation.
func ObserveScoring(result string) {
	if result == "" {
		result = resultSuccess
	}
	if scoringTotal != nil {
		scoringTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRecompute records the latency of a vehicle or fleet recompute.
func ObserveRecompute(scope string, duration time.Duration) {
	if scope == "" {
		scope = "unknown"
	}
	if scoringLatency != nil {
		scoringLatency.WithLabelValues(scope).Observe(duration.Seconds())
	}
}

// ObserveSchedule records a scheduling request outcome and latency.
func ObserveSchedule(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if scheduleTotal != nil {
		scheduleTotal.WithLabelValues(outcome).Inc()
	}
	if scheduleLatency != nil {
		scheduleLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// IncCASConflict counts a lost center load compare-and-swap.
func IncCASConflict(centerID string) {
	if centerID == "" {
		centerID = "unknown"
	}
	if casConflicts != nil {
		casConflicts.WithLabelValues(centerID).Inc()
	}
}

// IncAppointmentTransition counts an appointment lifecycle event.
func IncAppointmentTransition(event string) {
	if event == "" {
		event = "unknown"
	}
	if appointmentTransitions != nil {
		appointmentTransitions.WithLabelValues(event).Inc()
	}
}

// ObserveSweep records a finished auto-schedule sweep.
func ObserveSweep(scheduled, skipped, failed int, duration time.Duration) {
	if sweepVehicles != nil {
		sweepVehicles.WithLabelValues(sweepResultScheduled).Add(float64(scheduled))
		sweepVehicles.WithLabelValues(sweepResultSkipped).Add(float64(skipped))
		sweepVehicles.WithLabelValues(sweepResultFailed).Add(float64(failed))
	}
	if sweepLatency != nil {
		sweepLatency.Observe(duration.Seconds())
	}
}

// IncInsight counts a generated quality insight.
func IncInsight(insightType string) {
	if insightType == "" {
		insightType = "unknown"
	}
	if insightTotal != nil {
		insightTotal.WithLabelValues(insightType).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

type centerCollector struct {
	centers     fleet.CenterRepository
	logger      *zap.Logger
	utilization *prometheus.Desc
	load        *prometheus.Desc
}

func newCenterCollector(centers fleet.CenterRepository, logger *zap.Logger) *centerCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &centerCollector{
		centers: centers,
		logger:  logger,
		utilization: prometheus.NewDesc(
			metricPrefix+"center_utilization_ratio",
			"Service center load divided by capacity",
			[]string{"center_id", "city"}, nil,
		),
		load: prometheus.NewDesc(
			metricPrefix+"center_load",
			"Service center occupied slots",
			[]string{"center_id", "city"}, nil,
		),
	}
}

func (c *centerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.utilization
	ch <- c.load
}

func (c *centerCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	centers, err := c.centers.ListServiceCenters(ctx)
	if err != nil {
		c.logger.Warn("metrics: list service centers failed", zap.Error(err))
		return
	}
	for _, center := range centers {
		ch <- prometheus.MustNewConstMetric(c.utilization, prometheus.GaugeValue, center.Utilization(), center.ID, center.City)
		ch <- prometheus.MustNewConstMetric(c.load, prometheus.GaugeValue, float64(center.CurrentLoad), center.ID, center.City)
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	ScheduleResultScheduled  = scheduleResultScheduled
	ScheduleResultNoCapacity = scheduleResultNoCapacity
	ScheduleResultConflict   = scheduleResultConflict
	ScheduleResultInvalid    = scheduleResultInvalid
)
