package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jscgfz/asterisk-events-worker-service/internal/ami"
	"github.com/jscgfz/asterisk-events-worker-service/internal/api"
	"github.com/jscgfz/asterisk-events-worker-service/internal/auth"
	"github.com/jscgfz/asterisk-events-worker-service/internal/command"
	"github.com/jscgfz/asterisk-events-worker-service/internal/config"
	"github.com/jscgfz/asterisk-events-worker-service/internal/metrics"
	"github.com/jscgfz/asterisk-events-worker-service/internal/publisher"
	"github.com/jscgfz/asterisk-events-worker-service/internal/routing"
	"github.com/jscgfz/asterisk-events-worker-service/internal/store"
	"github.com/jscgfz/asterisk-events-worker-service/pkg/middleware"
	"github.com/rs/zerolog"
)

const statsInterval = 5 * time.Second

// Switchboard is the connection supervisor as seen by the reload path
type Switchboard interface {
	Configure(ctx context.Context, params ami.Params, sep ami.Separators)
}

// reloader applies edited configuration to the running components
type reloader struct {
	mu          sync.Mutex
	cfg         *config.Config
	envFiles    []string
	routes      *routing.Holder
	switchboard Switchboard
	publisher   *publisher.Publisher
	runCtx      context.Context
	logger      zerolog.Logger
}

// reload re-reads the env file and routing file. The routing table is
// swapped, the window is rebuilt if it changed and the manager connection is
// rebuilt if its parameters or separators changed.
func (r *reloader) reload(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := config.Reload(r.envFiles...)
	if err != nil {
		return err
	}

	table, err := routing.LoadFile(cfg.RoutingFile)
	if err != nil {
		return fmt.Errorf("failed to load routing: %w", err)
	}
	r.routes.Swap(table)

	r.publisher.Reconfigure(cfg.Window())

	old := r.cfg
	if cfg.AMIParams() != old.AMIParams() || cfg.Separators() != old.Separators() {
		r.logger.Info().Str("address", cfg.AMIParams().Address()).Msg("ami settings changed, reconnecting")
		r.switchboard.Configure(r.runCtx, cfg.AMIParams(), cfg.Separators())
	}
	r.cfg = cfg

	r.logger.Info().
		Int("queues", table.Len()).
		Dur("window_span", cfg.WindowSpan).
		Int("window_count", cfg.WindowCount).
		Msg("configuration reloaded")
	return nil
}

// reportStats refreshes the store gauges until ctx is cancelled
func reportStats(ctx context.Context, st *store.Store, routes *routing.Holder, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		calls, members := st.Stats()
		metrics.Get().UpdateStoreStats(calls, members, routes.Load().Len())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// handlers are the HTTP surfaces mounted by newRouter
type handlers struct {
	ws       http.Handler
	admin    *api.AdminHandler
	stats    *api.StatsHandler
	history  *api.CallHistoryHandler
	commands *command.Receiver // nil when commands arrive over Kafka
}

func newRouter(cfg *config.Config, authn *auth.Authenticator, h handlers, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Get("/ws", h.ws.ServeHTTP)

		r.Route("/internal", func(r chi.Router) {
			r.Get("/stats", h.stats.GetStats)
			r.Get("/companies/{id}/snapshot", h.stats.GetSnapshot)
			r.Get("/companies/{id}/calls", h.history.GetCalls)

			r.Group(func(r chi.Router) {
				r.Use(api.RequireAdmin)
				r.Post("/admin/reload", h.admin.Reload)
				r.Post("/calls/{uniqueid}/pause", h.admin.SetPause)
			})

			if h.commands != nil {
				r.With(api.RequireSupervisorOrAdmin).Post("/commands", h.commands.HandleCommand)
			}
		})
	})

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"asterisk-events-worker"}`)
}
