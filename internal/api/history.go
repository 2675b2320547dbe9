package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jscgfz/asterisk-events-worker-service/internal/routing"
	"github.com/jscgfz/asterisk-events-worker-service/internal/storage"
	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

// CallHistoryHandler serves archived calls
type CallHistoryHandler struct {
	store  storage.Store
	routes *routing.Holder
	logger zerolog.Logger
}

// NewCallHistoryHandler creates a new CallHistoryHandler
func NewCallHistoryHandler(store storage.Store, routes *routing.Holder, logger zerolog.Logger) *CallHistoryHandler {
	return &CallHistoryHandler{
		store:  store,
		routes: routes,
		logger: logger.With().Str("component", "call_history_handler").Logger(),
	}
}

// GetCalls returns a company's closed calls for one day
// GET /internal/companies/{id}/calls?date=YYYY-MM-DD
func (h *CallHistoryHandler) GetCalls(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !authorizeCompany(w, r, h.routes, id) {
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	records, err := h.store.GetCompanyCallsByDate(r.Context(), id, date)
	if err != nil {
		h.logger.Error().Err(err).
			Str("company", id).
			Str("date", date).
			Msg("failed to get company calls")
		writeError(w, http.StatusInternalServerError, "failed to retrieve calls")
		return
	}

	if records == nil {
		records = []types.CallRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
