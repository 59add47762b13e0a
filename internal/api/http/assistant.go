package apihttp

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	assistantapp "fleet-risk-engine/internal/assistant/application"
	"fleet-risk-engine/internal/platform/logging"
)

// AssistantHandler serves the vehicle-aware chat endpoints.
type AssistantHandler struct {
	service *assistantapp.Service
	logger  *zap.Logger
}

// NewAssistantHandler constructs an AssistantHandler.
func NewAssistantHandler(service *assistantapp.Service, logger *zap.Logger) (*AssistantHandler, error) {
	if service == nil {
		return nil, errors.New("assistant handler: nil service")
	}
	return &AssistantHandler{service: service, logger: logging.OrNop(logger)}, nil
}

// Register mounts the assistant routes on mux.
func (h *AssistantHandler) Register(mux *http.ServeMux) {
	mux.Handle("/api/v1/assistant/chat", h)
	mux.Handle("/api/v1/assistant/sessions/", h)
}

// ServeHTTP routes assistant requests.
func (h *AssistantHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/assistant/chat" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleChat(w, r)
		return
	}
	parts := splitPath(r.URL.Path, "/api/v1/assistant/sessions/")
	if len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet {
		respondJSON(w, http.StatusOK, h.service.History(parts[0]))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	VehicleID string `json:"vehicle_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

func (h *AssistantHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	reply, err := h.service.Chat(r.Context(), req.SessionID, req.VehicleID, req.Message)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Reply: reply})
}
