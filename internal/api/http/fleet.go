package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fleet-risk-engine/internal/audit"
	fleet "fleet-risk-engine/internal/fleet/domain"
	healthapp "fleet-risk-engine/internal/health/application"
	"fleet-risk-engine/internal/platform/logging"
	riskapp "fleet-risk-engine/internal/risk/application"
)

// FleetStore is the part of the signal store the fleet endpoints read and write.
type FleetStore interface {
	fleet.VehicleRepository
	fleet.TelematicsRepository
	fleet.CenterRepository
}

// FleetHandler serves vehicles, telematics ingest, health scores, rankings and centers.
type FleetHandler struct {
	store  FleetStore
	health *healthapp.Service
	risk   *riskapp.Service
	logger *zap.Logger
	audit  auditor
}

// NewFleetHandler constructs a FleetHandler.
func NewFleetHandler(store FleetStore, health *healthapp.Service, risk *riskapp.Service, auditLogger audit.Logger, logger *zap.Logger) (*FleetHandler, error) {
	if store == nil {
		return nil, errors.New("fleet handler: nil store")
	}
	if health == nil {
		return nil, errors.New("fleet handler: nil health service")
	}
	if risk == nil {
		return nil, errors.New("fleet handler: nil risk service")
	}
	logger = logging.OrNop(logger)
	return &FleetHandler{
		store:  store,
		health: health,
		risk:   risk,
		logger: logger,
		audit:  auditor{logger: auditLogger, errs: logger},
	}, nil
}

// Register mounts the fleet routes on mux.
func (h *FleetHandler) Register(mux *http.ServeMux) {
	mux.Handle("/api/v1/vehicles", h)
	mux.Handle("/api/v1/vehicles/", h)
	mux.Handle("/api/v1/rankings", h)
	mux.Handle("/api/v1/centers", h)
	mux.Handle("/api/v1/health/recompute", h)
}

// ServeHTTP routes fleet requests.
func (h *FleetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/vehicles":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleListVehicles(w, r)
		return
	case "/api/v1/rankings":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleRankings(w, r)
		return
	case "/api/v1/centers":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleCenters(w, r)
		return
	case "/api/v1/health/recompute":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleRecomputeFleet(w, r)
		return
	}

	parts := splitPath(r.URL.Path, "/api/v1/vehicles/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleVehicle(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "health" && r.Method == http.MethodGet:
		h.handleInspect(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "health" && parts[2] == "recompute" && r.Method == http.MethodPost:
		h.handleRecomputeVehicle(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "telematics" && r.Method == http.MethodPost:
		h.handleTelematics(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "predictions" && r.Method == http.MethodGet:
		h.handlePredictions(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *FleetHandler) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.store.ListVehicles(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, vehicles)
}

type vehicleView struct {
	Vehicle     *fleet.Vehicle            `json:"vehicle"`
	Latest      *fleet.TelematicsSnapshot `json:"latest_telematics,omitempty"`
	Predictions []fleet.PredictedFailure  `json:"predictions"`
}

func (h *FleetHandler) handleVehicle(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	vehicle, err := h.store.GetVehicle(ctx, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	latest, err := h.store.GetLatestTelematics(ctx, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	predictions, err := h.risk.VehicleFailures(ctx, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, vehicleView{Vehicle: vehicle, Latest: latest, Predictions: predictions})
}

func (h *FleetHandler) handlePredictions(w http.ResponseWriter, r *http.Request, id string) {
	predictions, err := h.risk.VehicleFailures(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, predictions)
}

func (h *FleetHandler) handleInspect(w http.ResponseWriter, r *http.Request, id string) {
	breakdown, err := h.health.Inspect(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, breakdown)
}

func (h *FleetHandler) handleRecomputeVehicle(w http.ResponseWriter, r *http.Request, id string) {
	result, err := h.health.RecomputeVehicle(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.audit.record(r, "health.recompute", "vehicle", id, map[string]any{"score": result.Score, "changed": result.Changed})
	respondJSON(w, http.StatusOK, result)
}

func (h *FleetHandler) handleRecomputeFleet(w http.ResponseWriter, r *http.Request) {
	report, err := h.health.RecomputeFleet(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.audit.record(r, "health.recompute_fleet", "fleet", "all", map[string]any{
		"results":  len(report.Results),
		"failures": len(report.Failures),
	})
	respondJSON(w, http.StatusOK, report)
}

func (h *FleetHandler) handleTelematics(w http.ResponseWriter, r *http.Request, id string) {
	var snapshot fleet.TelematicsSnapshot
	if err := decodeJSON(r, &snapshot); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if snapshot.VehicleID == "" {
		snapshot.VehicleID = id
	}
	if snapshot.VehicleID != id {
		respondError(w, h.logger, fleet.Invalid("vehicle_id", "does not match path"))
		return
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}
	if err := h.store.AppendTelematics(r.Context(), snapshot); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *FleetHandler) handleRankings(w http.ResponseWriter, r *http.Request) {
	ranks, err := h.risk.RankFleet(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	limit, err := parseIntQuery(r, "limit", 0)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if limit > 0 && limit < len(ranks) {
		ranks = ranks[:limit]
	}
	respondJSON(w, http.StatusOK, ranks)
}

type centerView struct {
	fleet.ServiceCenter
	Available   int     `json:"available"`
	Utilization float64 `json:"utilization"`
}

func (h *FleetHandler) handleCenters(w http.ResponseWriter, r *http.Request) {
	centers, err := listCenters(r.Context(), h.store)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, centers)
}

func listCenters(ctx context.Context, store fleet.CenterRepository) ([]centerView, error) {
	centers, err := store.ListServiceCenters(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]centerView, 0, len(centers))
	for _, c := range centers {
		views = append(views, centerView{ServiceCenter: c, Available: c.Available(), Utilization: c.Utilization()})
	}
	return views, nil
}
