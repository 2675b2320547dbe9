package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jscgfz/asterisk-events-worker-service/internal/auth"
	"github.com/jscgfz/asterisk-events-worker-service/internal/routing"
	"github.com/rs/zerolog"
)

// RuntimeStats reports process state outside the store
type RuntimeStats func() map[string]interface{}

// StatsHandler serves store statistics and on-demand snapshots
type StatsHandler struct {
	calls   CallStore
	routes  *routing.Holder
	runtime RuntimeStats
	logger  zerolog.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(calls CallStore, routes *routing.Holder, runtime RuntimeStats, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		calls:   calls,
		routes:  routes,
		runtime: runtime,
		logger:  logger.With().Str("component", "stats").Logger(),
	}
}

// GetStats handles GET /internal/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	calls, members := h.calls.Stats()
	table := h.routes.Load()

	stats := map[string]interface{}{
		"calls":     calls,
		"members":   members,
		"queues":    table.Len(),
		"companies": len(table.Companies()),
	}
	if h.runtime != nil {
		for k, v := range h.runtime() {
			stats[k] = v
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetSnapshot handles GET /internal/companies/{id}/snapshot
func (h *StatsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !authorizeCompany(w, r, h.routes, id) {
		return
	}

	snap, ok := h.calls.ComputeSnapshot([]string{id})[id]
	if !ok {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// authorizeCompany writes 404 for unknown companies and 403 when the caller's
// groups do not cover the company filter
func authorizeCompany(w http.ResponseWriter, r *http.Request, routes *routing.Holder, id string) bool {
	company, ok := routes.Load().Company(id)
	if !ok {
		writeError(w, http.StatusNotFound, "company not found")
		return false
	}

	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || !claims.CanViewCompany(company.Filter) {
		writeError(w, http.StatusForbidden, "company not visible")
		return false
	}
	return true
}
