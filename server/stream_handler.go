package server

import (
	"net/http"
	"strconv"

	"github.com/moltasthornblom/beam/logger"
)

// ListStreamsHandler returns the caller's most recent assets.
func (h *APIHandler) ListStreamsHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	var q listStreamsQuery
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, validationResponse{Errors: []string{`"limit" must be a number`}})
			return
		}
		q.Limit = limit
	}
	if !validateStruct(w, &q) {
		return
	}

	assets, err := h.videos.List(r.Context(), claims.UserID, q.Limit)
	if err != nil {
		logger.Error("Failed to list streams", logger.String("userId", claims.UserID), logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if len(assets) == 0 {
		writeMessage(w, http.StatusNotFound, "No videos found for this user")
		return
	}
	writeJSON(w, http.StatusOK, assets)
}
