package command

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/bus"
	"github.com/rs/zerolog"
)

// pushTimeout bounds how long a request waits on a full queue
const pushTimeout = 2 * time.Second

// Pusher accepts commands into the in-process queue
type Pusher interface {
	Push(ctx context.Context, msg bus.Message) error
}

// Request is the HTTP form of a command
type Request struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Receiver feeds HTTP-posted commands to the command consumer
type Receiver struct {
	queue    Pusher
	logger   zerolog.Logger
	received int64
}

// NewReceiver creates a command receiver
func NewReceiver(queue Pusher, logger zerolog.Logger) *Receiver {
	return &Receiver{
		queue:  queue,
		logger: logger.With().Str("component", "command-receiver").Logger(),
	}
}

// HandleCommand accepts {"key":..., "value":...} and enqueues it
func (r *Receiver) HandleCommand(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd Request
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		r.logger.Error().Err(err).Msg("failed to decode command")
		http.Error(w, "invalid command", http.StatusBadRequest)
		return
	}
	if cmd.Key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), pushTimeout)
	defer cancel()

	if err := r.queue.Push(ctx, bus.Message{Key: cmd.Key, Value: []byte(cmd.Value)}); err != nil {
		r.logger.Error().Err(err).Str("key", cmd.Key).Msg("failed to enqueue command")
		http.Error(w, "command queue unavailable", http.StatusServiceUnavailable)
		return
	}

	atomic.AddInt64(&r.received, 1)
	w.WriteHeader(http.StatusAccepted)
}

// Received returns how many commands were accepted
func (r *Receiver) Received() int64 {
	return atomic.LoadInt64(&r.received)
}
