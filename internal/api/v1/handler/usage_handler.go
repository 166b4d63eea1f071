package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// UsageHandler reports the caller's daily quota state.
type UsageHandler struct {
	usageSvc service.UsageService
	logger   zerolog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usageSvc service.UsageService, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{usageSvc: usageSvc, logger: logger}
}

// RegisterRoutes mounts v1 usage routes.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, authMw, limitMw func(http.Handler) http.Handler) {
	mux.Handle("/usage", limitMw(authMw(http.HandlerFunc(h.getUsage))))
}

func (h *UsageHandler) getUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.usageSvc.RemainingOperations(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to fetch usage status")
		http.Error(w, "failed to fetch usage", http.StatusInternalServerError)
		return
	}

	resp := dto.UsageResponseDTO{Remaining: status.Remaining, IsProUser: status.IsProUser}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode usage response")
	}
}
