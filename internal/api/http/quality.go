package apihttp

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fleet-risk-engine/internal/audit"
	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/observability/metrics"
	"fleet-risk-engine/internal/platform/logging"
	qualityapp "fleet-risk-engine/internal/quality/application"
	qualityexport "fleet-risk-engine/internal/quality/interfaces"
)

// QualityHandler serves quality insights, RCA/CAPA records and report exports.
type QualityHandler struct {
	service *qualityapp.Service
	records fleet.RcaCapaRepository
	logger  *zap.Logger
	audit   auditor
}

// NewQualityHandler constructs a QualityHandler.
func NewQualityHandler(service *qualityapp.Service, records fleet.RcaCapaRepository, auditLogger audit.Logger, logger *zap.Logger) (*QualityHandler, error) {
	if service == nil {
		return nil, errors.New("quality handler: nil service")
	}
	if records == nil {
		return nil, errors.New("quality handler: nil record repository")
	}
	logger = logging.OrNop(logger)
	return &QualityHandler{
		service: service,
		records: records,
		logger:  logger,
		audit:   auditor{logger: auditLogger, errs: logger},
	}, nil
}

// Register mounts the quality routes on mux.
func (h *QualityHandler) Register(mux *http.ServeMux) {
	mux.Handle("/api/v1/quality/", h)
}

// ServeHTTP routes quality requests.
func (h *QualityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/v1/quality/")
	switch {
	case len(parts) == 1 && parts[0] == "insights" && r.Method == http.MethodGet:
		h.handleInsights(w, r)
	case len(parts) == 1 && parts[0] == "export.xlsx" && r.Method == http.MethodGet:
		h.handleExport(w, r, "xlsx")
	case len(parts) == 1 && parts[0] == "export.pdf" && r.Method == http.MethodGet:
		h.handleExport(w, r, "pdf")
	case len(parts) == 1 && parts[0] == "rca" && r.Method == http.MethodGet:
		h.handleRecords(w, r)
	case len(parts) == 2 && parts[0] == "rca" && r.Method == http.MethodGet:
		h.handleRecord(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "rca" && parts[2] == "status" && r.Method == http.MethodPost:
		h.handleTransition(w, r, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *QualityHandler) handleInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.service.Insights(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, insights)
}

func (h *QualityHandler) handleRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.records.ListRcaCapaRecords(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *QualityHandler) handleRecord(w http.ResponseWriter, r *http.Request, id string) {
	record, err := h.records.GetRcaCapaRecord(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (h *QualityHandler) handleTransition(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status fleet.RcaStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	record, err := h.service.TransitionRecord(r.Context(), id, req.Status)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.audit.record(r, "rca.transition", "rca_capa", id, map[string]any{"status": record.Status})
	respondJSON(w, http.StatusOK, record)
}

func (h *QualityHandler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	report, err := h.service.Report(r.Context())
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		respondError(w, h.logger, err)
		return
	}
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = qualityexport.BuildReportPDF(report)
		contentType = "application/pdf"
	default:
		data, err = qualityexport.BuildReportXLSX(report)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		respondError(w, h.logger, err)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))
	filename := "quality-report-" + report.GeneratedAt.Format(dateLayout) + "." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
