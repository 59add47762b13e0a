package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	assistant "fleet-risk-engine/internal/assistant/domain"
	"fleet-risk-engine/internal/audit"
	"fleet-risk-engine/internal/auth"
	fleet "fleet-risk-engine/internal/fleet/domain"
)

const dateLayout = fleet.DateLayout

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) int {
	var validation *fleet.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case fleet.IsNotFound(err):
		return http.StatusNotFound
	case fleet.IsNoCapacity(err), fleet.IsConcurrentUpdate(err),
		errors.Is(err, fleet.ErrInvalidTransition), errors.Is(err, fleet.ErrVersionMismatch):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrResponderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var validation *fleet.ValidationError
	if errors.As(err, &validation) {
		body.Field = validation.Field
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		body.Error = "internal error"
	}
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fleet.Invalid("body", "invalid json")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter) {
	w.WriteHeader(http.StatusMethodNotAllowed)
}

// splitPath returns the non-empty segments of path after prefix.
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func parseDateQuery(r *http.Request, key string) (time.Time, bool, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, false, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, false, fleet.Invalid(key, "must be YYYY-MM-DD")
	}
	return parsed, true, nil
}

func parseIntQuery(r *http.Request, key string, fallback int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fleet.Invalid(key, "must be an integer")
	}
	return parsed, nil
}

// auditor writes audit entries for mutating calls. A nil logger disables auditing.
type auditor struct {
	logger audit.Logger
	errs   *zap.Logger
}

func (a auditor) record(r *http.Request, action, resourceType, resourceID string, meta map[string]any) {
	if a.logger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	err := a.logger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		a.errs.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
