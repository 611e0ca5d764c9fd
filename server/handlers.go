package server

import (
	"encoding/json"
	"net/http"

	"github.com/moltasthornblom/beam/cache"
	"github.com/moltasthornblom/beam/config"
	"github.com/moltasthornblom/beam/core/auth"
	"github.com/moltasthornblom/beam/core/transcode"
	"github.com/moltasthornblom/beam/logger"
)

// APIHandler serves every API route.
type APIHandler struct {
	cfg      *config.Config
	videos   *transcode.Service
	accounts *auth.Service
	events   cache.EventBus
}

// NewAPIHandler creates the handler set. events may be nil, which disables
// the progress websocket.
func NewAPIHandler(cfg *config.Config, videos *transcode.Service, accounts *auth.Service, events cache.EventBus) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		videos:   videos,
		accounts: accounts,
		events:   events,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", logger.ErrorField(err))
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
