package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jscgfz/asterisk-events-worker-service/internal/auth"
	"github.com/jscgfz/asterisk-events-worker-service/internal/routing"
	"github.com/rs/zerolog"
)

// Timeouts bound the dashboard connection
type Timeouts struct {
	PongWait       time.Duration
	PingPeriod     time.Duration // must be less than PongWait
	WriteWait      time.Duration
	MaxMessageSize int64
}

// NewTimeouts derives ping and pong periods from the read and write timeouts
func NewTimeouts(read, write time.Duration) Timeouts {
	return Timeouts{
		PongWait:       read,
		PingPeriod:     (read * 9) / 10,
		WriteWait:      write,
		MaxMessageSize: 512,
	}
}

// Visibility decides which companies a client receives
type Visibility func(companyID string) bool

// CompanyVisibility grants the companies whose routing filter the claims
// cover, optionally narrowed to a single company. The routing table is read
// per message so reloads apply to connected clients.
func CompanyVisibility(claims *auth.Claims, routes *routing.Holder, only string) Visibility {
	return func(companyID string) bool {
		if claims == nil {
			return false
		}
		if only != "" && companyID != only {
			return false
		}
		company, ok := routes.Load().Company(companyID)
		if !ok {
			return claims.Role == auth.RoleAdmin
		}
		return claims.CanViewCompany(company.Filter)
	}
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	id string

	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	timeouts Timeouts
	visible  Visibility
	logger   zerolog.Logger
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, timeouts Timeouts, visible Visibility, logger zerolog.Logger) *Client {
	clientID := uuid.New().String()
	return &Client{
		id:       clientID,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		timeouts: timeouts,
		visible:  visible,
		logger:   logger.With().Str("client_id", clientID).Logger(),
	}
}

func (c *Client) allows(companyID string) bool {
	return c.visible == nil || c.visible(companyID)
}

// readPump drains the connection so pongs and close frames are processed.
// There is at most one reader per connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.timeouts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read error")
			}
			break
		}
		c.logger.Debug().Str("message", string(message)).Msg("received message from client")
	}
}

// writePump pumps snapshots from the hub to the connection. Each snapshot is
// its own text frame. There is at most one writer per connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.timeouts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
