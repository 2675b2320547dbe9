package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jscgfz/asterisk-events-worker-service/internal/auth"
	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

// CallStore is the slice of the correlation store the HTTP surface needs
type CallStore interface {
	SetServerPause(uniqueID string, paused bool) (string, bool)
	ComputeSnapshot(companyIDs []string) map[string]types.CompanySnapshot
	Stats() (calls, members int)
}

// SnapshotPublisher pushes fresh snapshots for the given companies
type SnapshotPublisher interface {
	Publish(ctx context.Context, companies []string) error
}

// Reloader re-applies configuration and routing
type Reloader func(ctx context.Context) error

// AdminHandler serves runtime administration endpoints
type AdminHandler struct {
	reload    Reloader
	calls     CallStore
	publisher SnapshotPublisher
	logger    zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(reload Reloader, calls CallStore, publisher SnapshotPublisher, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		reload:    reload,
		calls:     calls,
		publisher: publisher,
		logger:    logger.With().Str("component", "admin").Logger(),
	}
}

// RequireAdmin middleware, only admin role allowed
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || !auth.HasRole(claims, auth.RoleAdmin) {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSupervisorOrAdmin middleware, supervisor or admin role allowed
func RequireSupervisorOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || (claims.Role != auth.RoleAdmin && claims.Role != "supervisor") {
			writeError(w, http.StatusForbidden, "supervisor or admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Reload handles POST /internal/admin/reload
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.reload(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("reload failed")
		writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}

	h.logger.Info().Msg("configuration reloaded via admin")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "configuration reloaded",
	})
}

// SetPause handles POST /internal/calls/{uniqueid}/pause with {"paused": bool}.
// The owning company's snapshot is republished right away.
func (h *AdminHandler) SetPause(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueid")

	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	paused := true
	if req.Paused != nil {
		paused = *req.Paused
	}

	company, ok := h.calls.SetServerPause(uniqueID, paused)
	if !ok {
		writeError(w, http.StatusNotFound, "call not found or not routed")
		return
	}

	if err := h.publisher.Publish(r.Context(), []string{company}); err != nil {
		h.logger.Error().Err(err).Str("company", company).Msg("failed to publish after pause")
	}

	h.logger.Info().
		Str("uniqueid", uniqueID).
		Str("company", company).
		Bool("paused", paused).
		Msg("server pause updated")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uniqueId":  uniqueID,
		"companyId": company,
		"paused":    paused,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
