package ami

import (
	"context"
	"sync"

	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

// Switchboard supervises the single live connection. Reconfiguring stops the
// previous connection and waits for it to unwind before the next one starts,
// so two sockets never feed the same event stream.
type Switchboard struct {
	events chan types.ManagerEvent
	logger zerolog.Logger

	configureMu sync.Mutex // serializes Configure/Stop

	mu    sync.RWMutex
	conn  *Connection
	codec *Codec

	// newConnection is swapped in tests to inject a dialer
	newConnection func(Params, *Codec, chan<- types.ManagerEvent, zerolog.Logger) *Connection
}

// NewSwitchboard creates a supervisor with an event buffer of the given size
func NewSwitchboard(buffer int, logger zerolog.Logger) *Switchboard {
	return &Switchboard{
		events:        make(chan types.ManagerEvent, buffer),
		logger:        logger,
		codec:         NewCodec(DefaultSeparators()),
		newConnection: NewConnection,
	}
}

// Events is the stream of decoded events from whichever connection is live
func (s *Switchboard) Events() <-chan types.ManagerEvent {
	return s.events
}

// Configure replaces the running connection with one built from params and sep
func (s *Switchboard) Configure(ctx context.Context, params Params, sep Separators) {
	s.configureMu.Lock()
	defer s.configureMu.Unlock()

	s.mu.RLock()
	old := s.conn
	s.mu.RUnlock()

	if old != nil {
		s.logger.Info().Msg("stopping previous ami connection")
		old.Stop()
	}

	codec := NewCodec(sep)
	conn := s.newConnection(params, codec, s.events, s.logger)

	s.mu.Lock()
	s.conn = conn
	s.codec = codec
	s.mu.Unlock()

	conn.Start(ctx)
	s.logger.Info().Str("address", params.Address()).Msg("ami connection configured")
}

// SendAction encodes and writes an action on the live connection. It reports
// false when there is no connection or the write failed.
func (s *Switchboard) SendAction(action string, args ...Arg) bool {
	s.mu.RLock()
	conn, codec := s.conn, s.codec
	s.mu.RUnlock()

	if conn == nil {
		s.logger.Warn().Str("action", action).Msg("no ami connection configured")
		return false
	}
	return conn.Send(codec.Encode(action, args...))
}

// State returns the live connection state
func (s *Switchboard) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return StateDisconnected
	}
	return s.conn.State()
}

// Stop shuts the live connection down
func (s *Switchboard) Stop() {
	s.configureMu.Lock()
	defer s.configureMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Stop()
	}
}
