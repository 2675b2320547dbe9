package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

const (
	defaultSpan  = time.Second
	defaultCount = 500
	batchBuffer  = 16
)

// Batcher processes one closed window
type Batcher interface {
	Process(ctx context.Context, batch []types.ManagerEvent)
}

// Publisher windows the event stream and hands every non-empty window, in
// order, to the sender. Accumulation of the next window overlaps with
// dispatch of the previous one.
type Publisher struct {
	events <-chan types.ManagerEvent
	sender Batcher
	logger zerolog.Logger

	batches chan []types.ManagerEvent

	mu      sync.Mutex
	root    context.Context
	window  Window
	cancel  context.CancelFunc
	stopped chan []types.ManagerEvent
}

// New creates a publisher reading from events
func New(events <-chan types.ManagerEvent, sender Batcher, window Window, logger zerolog.Logger) *Publisher {
	return &Publisher{
		events:  events,
		sender:  sender,
		logger:  logger.With().Str("component", "publisher").Logger(),
		batches: make(chan []types.ManagerEvent, batchBuffer),
		window:  normalize(window),
	}
}

// Start runs the window and dispatch loops until ctx is cancelled
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	p.root = ctx
	p.startWindow()
	window := p.window
	p.mu.Unlock()

	p.logger.Info().
		Dur("span", window.Span).
		Int("count", window.Count).
		Msg("publisher started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("publisher stopped")
			return
		case batch := <-p.batches:
			p.sender.Process(ctx, batch)
		}
	}
}

// Window returns the active window parameters
func (p *Publisher) Window() Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window
}

// Reconfigure tears the running window down and starts one with new
// parameters. The partial batch of the old window is dispatched, not lost.
func (p *Publisher) Reconfigure(window Window) {
	window = normalize(window)

	p.mu.Lock()
	defer p.mu.Unlock()

	if window == p.window {
		return
	}
	p.window = window

	if p.root == nil {
		return
	}

	p.cancel()
	if partial := <-p.stopped; len(partial) > 0 {
		select {
		case p.batches <- partial:
		case <-p.root.Done():
			return
		}
	}

	p.startWindow()
	p.logger.Info().
		Dur("span", window.Span).
		Int("count", window.Count).
		Msg("window reconfigured")
}

// startWindow must be called with mu held
func (p *Publisher) startWindow() {
	ctx, cancel := context.WithCancel(p.root)
	stopped := make(chan []types.ManagerEvent, 1)
	w := &windower{
		window: p.window,
		in:     p.events,
		out:    p.batches,
		logger: p.logger,
	}

	p.cancel = cancel
	p.stopped = stopped
	go func() {
		stopped <- w.run(ctx)
	}()
}

func normalize(w Window) Window {
	if w.Span <= 0 {
		w.Span = defaultSpan
	}
	if w.Count <= 0 {
		w.Count = defaultCount
	}
	return w
}
