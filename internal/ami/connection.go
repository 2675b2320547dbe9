package ami

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/metrics"
	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

const (
	// ReconnectBackoff is the fixed delay between connection attempts
	ReconnectBackoff = 5 * time.Second

	// WatchdogPeriod is how often the watchdog compares the last receive time
	WatchdogPeriod = 5 * time.Second

	readBufferSize = 4096
	writeTimeout   = 10 * time.Second
	dialTimeout    = 10 * time.Second

	keepAliveIdle     = 30 * time.Second
	keepAliveInterval = 5 * time.Second
	keepAliveCount    = 5
)

// ErrNotConnected is returned when writing while no socket is open
var ErrNotConnected = errors.New("ami: not connected")

var (
	errRemoteClosed = errors.New("socket closed by remote")
	errWatchdog     = errors.New("connection cancelled by watchdog")
)

// State of the connection state machine
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateLoggingIn
	StateSnapshotting
	StateListening
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLoggingIn:
		return "logging_in"
	case StateSnapshotting:
		return "snapshotting"
	case StateListening:
		return "listening"
	default:
		return "disconnected"
	}
}

// Params holds the endpoint, credentials and timers of one connection
type Params struct {
	Host              string
	Port              int
	Username          string
	Secret            string
	Events            string
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	WatchdogThreshold time.Duration
}

// Address returns host:port
func (p Params) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Dialer opens the stream socket to the manager
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// DialTCP opens a TCP connection with tuned OS keep-alive probes
func DialTCP(ctx context.Context, address string) (net.Conn, error) {
	d := net.Dialer{
		Timeout: dialTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     keepAliveIdle,
			Interval: keepAliveInterval,
			Count:    keepAliveCount,
		},
	}
	return d.DialContext(ctx, "tcp", address)
}

// Connection owns one manager socket: login, initial snapshot, heartbeat,
// watchdog and an unconditional reconnect loop.
type Connection struct {
	params Params
	codec  *Codec
	out    chan<- types.ManagerEvent
	logger zerolog.Logger

	dial           Dialer
	backoff        time.Duration
	watchdogPeriod time.Duration

	mu      sync.Mutex
	conn    net.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	state        atomic.Int32
	lastReceived atomic.Int64
}

// NewConnection creates a connection that delivers decoded events to out
func NewConnection(params Params, codec *Codec, out chan<- types.ManagerEvent, logger zerolog.Logger) *Connection {
	return &Connection{
		params:         params,
		codec:          codec,
		out:            out,
		logger:         logger.With().Str("component", "ami").Str("address", params.Address()).Logger(),
		dial:           DialTCP,
		backoff:        ReconnectBackoff,
		watchdogPeriod: WatchdogPeriod,
	}
}

// Start launches the reconnect loop. Calling Start twice, or after Stop, is a no-op.
func (c *Connection) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.done != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Stop cancels every background loop, closes the socket and waits for the
// loop to exit. Safe to call more than once.
func (c *Connection) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel, done := c.cancel, c.done
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info().Msg("ami connection stopped")
}

// Send writes an encoded action. Drops are expected while disconnected; the
// return value reports whether the bytes reached the socket.
func (c *Connection) Send(data []byte) bool {
	if err := c.write(data); err != nil {
		if errors.Is(err, ErrNotConnected) {
			c.logger.Debug().Msg("dropping action, not connected")
		} else {
			c.logger.Warn().Err(err).Msg("failed to send action")
		}
		return false
	}
	return true
}

// State returns the current state machine state
func (c *Connection) State() State {
	return State(c.state.Load())
}

// LastReceived returns when the last byte chunk arrived
func (c *Connection) LastReceived() time.Time {
	return time.Unix(0, c.lastReceived.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
	metrics.Get().SetConnectionState(s.String())
}

func (c *Connection) touch() {
	c.lastReceived.Store(time.Now().UnixNano())
}

func (c *Connection) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("ami session failed")
		}
		c.release()

		if ctx.Err() != nil {
			return
		}

		metrics.Get().RecordReconnect()
		c.logger.Info().Dur("backoff", c.backoff).Msg("reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}
	}
}

// session runs one pass of Connecting -> LoggingIn -> Snapshotting -> Listening
func (c *Connection) session(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info().Msg("starting connection")

	conn, err := c.dial(ctx, c.params.Address())
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the socket is what unblocks a pending Read on cancellation.
	stopClose := context.AfterFunc(connCtx, func() { conn.Close() })
	defer stopClose()

	c.touch()

	c.setState(StateLoggingIn)
	login := c.codec.Encode("Login",
		Arg{Key: "Username", Value: c.params.Username},
		Arg{Key: "Secret", Value: c.params.Secret},
		Arg{Key: "Events", Value: c.params.Events},
	)
	if err := c.write(login); err != nil {
		return fmt.Errorf("failed to send login: %w", err)
	}

	c.setState(StateSnapshotting)
	for _, action := range []string{"QueueStatus", "Status"} {
		if err := c.write(c.codec.Encode(action)); err != nil {
			return fmt.Errorf("failed to send %s: %w", action, err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.heartbeat(connCtx)
	}()
	go func() {
		defer wg.Done()
		c.watchdog(connCtx, cancel)
	}()

	c.setState(StateListening)
	c.logger.Info().Msg("ami connection established")

	err = c.listen(ctx, connCtx, conn)
	cancel()
	wg.Wait()
	return err
}

func (c *Connection) listen(ctx, connCtx context.Context, conn net.Conn) error {
	buf := make([]byte, readBufferSize)
	carry := ""

	for {
		if c.params.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.params.ReadTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			c.touch()

			var blocks []string
			blocks, carry = c.codec.Split(carry, string(buf[:n]))
			for _, block := range blocks {
				event := c.codec.Decode(block)
				if event.Len() == 0 {
					continue
				}
				metrics.Get().RecordEventReceived()

				select {
				case c.out <- event:
				case <-connCtx.Done():
					return c.cancelCause(ctx)
				}
			}
		}

		if err != nil {
			if connCtx.Err() != nil {
				return c.cancelCause(ctx)
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.logger.Warn().Dur("timeout", c.params.ReadTimeout).Msg("ami listen timeout, forcing reconnect")
				return fmt.Errorf("read timeout after %s: %w", c.params.ReadTimeout, err)
			}
			if errors.Is(err, io.EOF) {
				c.logger.Warn().Msg("ami socket closed by remote, forcing reconnect")
				return errRemoteClosed
			}
			return fmt.Errorf("failed to read: %w", err)
		}
	}
}

// cancelCause distinguishes a shutdown from a watchdog-forced reconnect
func (c *Connection) cancelCause(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return errWatchdog
}

func (c *Connection) heartbeat(ctx context.Context) {
	if c.params.HeartbeatInterval <= 0 {
		return
	}

	ping := c.codec.Encode("Ping")
	ticker := time.NewTicker(c.params.HeartbeatInterval)
	defer ticker.Stop()

	c.logger.Debug().Dur("interval", c.params.HeartbeatInterval).Msg("heartbeat started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Msg("heartbeat stopped")
			return
		case <-ticker.C:
			if err := c.write(ping); err != nil {
				c.logger.Error().Err(err).Msg("heartbeat ping failed")
				return
			}
		}
	}
}

func (c *Connection) watchdog(ctx context.Context, cancel context.CancelFunc) {
	if c.params.WatchdogThreshold <= 0 {
		return
	}

	ticker := time.NewTicker(c.watchdogPeriod)
	defer ticker.Stop()

	c.logger.Debug().Dur("threshold", c.params.WatchdogThreshold).Msg("watchdog started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Msg("watchdog stopped")
			return
		case <-ticker.C:
			inactive := time.Since(c.LastReceived())
			if inactive > c.params.WatchdogThreshold {
				c.logger.Warn().Dur("inactive", inactive).Msg("ami inactivity elapsed, forcing reconnect")
				cancel()
				return
			}
		}
	}
}

func (c *Connection) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	return nil
}

// release closes the socket and returns to Disconnected
func (c *Connection) release() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.setState(StateDisconnected)
	c.logger.Info().Msg("ami connection cleaned")
}
