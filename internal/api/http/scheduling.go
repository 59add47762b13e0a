package apihttp

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fleet-risk-engine/internal/audit"
	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/platform/logging"
	schedulingapp "fleet-risk-engine/internal/scheduling/application"
	scheduling "fleet-risk-engine/internal/scheduling/domain"
)

// SchedulingHandler serves appointment booking, lifecycle, sweep and demand endpoints.
type SchedulingHandler struct {
	service      *schedulingapp.Service
	appointments fleet.AppointmentRepository
	logger       *zap.Logger
	audit        auditor
}

// NewSchedulingHandler constructs a SchedulingHandler.
func NewSchedulingHandler(service *schedulingapp.Service, appointments fleet.AppointmentRepository, auditLogger audit.Logger, logger *zap.Logger) (*SchedulingHandler, error) {
	if service == nil {
		return nil, errors.New("scheduling handler: nil service")
	}
	if appointments == nil {
		return nil, errors.New("scheduling handler: nil appointment repository")
	}
	logger = logging.OrNop(logger)
	return &SchedulingHandler{
		service:      service,
		appointments: appointments,
		logger:       logger,
		audit:        auditor{logger: auditLogger, errs: logger},
	}, nil
}

// Register mounts the scheduling routes on mux.
func (h *SchedulingHandler) Register(mux *http.ServeMux) {
	mux.Handle("/api/v1/appointments", h)
	mux.Handle("/api/v1/appointments/", h)
	mux.Handle("/api/v1/scheduling/sweep", h)
	mux.Handle("/api/v1/scheduling/demand", h)
}

// ServeHTTP routes scheduling requests.
func (h *SchedulingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/appointments":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleSchedule(w, r)
		default:
			methodNotAllowed(w)
		}
		return
	case "/api/v1/scheduling/sweep":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleSweep(w, r)
		return
	case "/api/v1/scheduling/demand":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleDemand(w, r)
		return
	}

	parts := splitPath(r.URL.Path, "/api/v1/appointments/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && r.Method == http.MethodGet && parts[1] == "events":
		h.handleEvents(w, r, parts[0])
	case len(parts) == 2 && r.Method == http.MethodPost:
		h.handleTransition(w, r, parts[0], parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type scheduleRequest struct {
	VehicleID               string         `json:"vehicle_id"`
	From                    string         `json:"from"`
	To                      string         `json:"to"`
	ServiceType             string         `json:"service_type"`
	Priority                fleet.Priority `json:"priority"`
	Specialization          string         `json:"specialization,omitempty"`
	SpecializationMandatory bool           `json:"specialization_mandatory,omitempty"`
	Notes                   string         `json:"notes,omitempty"`
	EstimatedDuration       int            `json:"estimated_duration,omitempty"`
}

func (req scheduleRequest) toRequest() (schedulingapp.Request, error) {
	from, err := time.Parse(dateLayout, req.From)
	if err != nil {
		return schedulingapp.Request{}, fleet.Invalid("from", "must be YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, req.To)
	if err != nil {
		return schedulingapp.Request{}, fleet.Invalid("to", "must be YYYY-MM-DD")
	}
	return schedulingapp.Request{
		VehicleID:               req.VehicleID,
		From:                    from,
		To:                      to,
		ServiceType:             req.ServiceType,
		Priority:                req.Priority,
		Specialization:          req.Specialization,
		SpecializationMandatory: req.SpecializationMandatory,
		Notes:                   req.Notes,
		EstimatedDuration:       req.EstimatedDuration,
	}, nil
}

func (h *SchedulingHandler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, h.logger, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	appointment, err := h.service.ScheduleAppointment(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.audit.record(r, "appointment.schedule", "appointment", appointment.ID, map[string]any{
		"vehicle_id":        appointment.VehicleID,
		"service_center_id": appointment.ServiceCenterID,
		"scheduled_date":    appointment.ScheduledDate,
		"priority":          appointment.Priority,
	})
	respondJSON(w, http.StatusCreated, appointment)
}

func (h *SchedulingHandler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := fleet.AppointmentFilter{
		VehicleID:       query.Get("vehicle_id"),
		ServiceCenterID: query.Get("center_id"),
	}
	if raw := query.Get("status"); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, fleet.AppointmentStatus(strings.TrimSpace(status)))
		}
	}
	for key, dest := range map[string]*string{"from": &filter.FromDate, "to": &filter.ToDate} {
		date, ok, err := parseDateQuery(r, key)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		if ok {
			*dest = date.Format(dateLayout)
		}
	}
	appointments, err := h.appointments.ListAppointments(r.Context(), filter)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, appointments)
}

func (h *SchedulingHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	appointment, err := h.appointments.GetAppointment(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, appointment)
}

func (h *SchedulingHandler) handleEvents(w http.ResponseWriter, r *http.Request, id string) {
	appointment, err := h.appointments.GetAppointment(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": appointment.Status,
		"events": scheduling.AvailableEvents(appointment.Status),
	})
}

func (h *SchedulingHandler) handleTransition(w http.ResponseWriter, r *http.Request, id, event string) {
	appointment, err := h.service.Transition(r.Context(), id, event)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.audit.record(r, "appointment."+event, "appointment", id, map[string]any{"status": appointment.Status})
	respondJSON(w, http.StatusOK, appointment)
}

func (h *SchedulingHandler) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.AutoScheduleSweep(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.audit.record(r, "scheduling.sweep", "fleet", "all", map[string]any{
		"scheduled": report.Scheduled,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
	})
	respondJSON(w, http.StatusOK, report)
}

func (h *SchedulingHandler) handleDemand(w http.ResponseWriter, r *http.Request) {
	from, ok, err := parseDateQuery(r, "from")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if !ok {
		from = time.Now().UTC()
	}
	days, err := parseIntQuery(r, "days", 7)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	demand, err := h.service.ServiceDemand(r.Context(), from, days)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, demand)
}
