package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jscgfz/asterisk-events-worker-service/internal/auth"
	"github.com/jscgfz/asterisk-events-worker-service/internal/routing"
	"github.com/rs/zerolog"
)

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub      *Hub
	routes   *routing.Holder
	timeouts Timeouts
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a new WebSocket handler. Origins are checked against
// allowedOrigins; "*" allows any.
func NewHandler(hub *Hub, routes *routing.Holder, timeouts Timeouts, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		routes:   routes,
		timeouts: timeouts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "ws-handler").Logger(),
	}
}

// ServeHTTP upgrades the request and registers a client scoped to the
// companies the caller may see. ?company=<id> narrows to one company.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	only := r.URL.Query().Get("company")
	if only != "" {
		company, exists := h.routes.Load().Company(only)
		if !exists {
			http.Error(w, "unknown company", http.StatusNotFound)
			return
		}
		if !claims.CanViewCompany(company.Filter) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, h.timeouts, CompanyVisibility(claims, h.routes, only), h.logger)
	if !h.hub.join(client) {
		conn.Close()
		return
	}
	client.Start()
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}
