package publisher

import (
	"context"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/metrics"
	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

// allowed lists the event names that reach the store
var allowed = map[string]bool{
	types.EventQueueMember:        true,
	types.EventQueueMemberStatus:  true,
	types.EventStatus:             true,
	types.EventHangup:             true,
	types.EventUnhold:             true,
	types.EventHold:               true,
	types.EventAgentConnect:       true,
	types.EventAgentComplete:      true,
	types.EventQueueMemberAdded:   true,
	types.EventQueueMemberRemoved: true,
	types.EventQueueMemberPaused:  true,
	types.EventNewchannel:         true,
	types.EventNewstate:           true,
	types.EventRename:             true,
}

// Allowed reports whether an event name is processed
func Allowed(name string) bool {
	return allowed[name]
}

// Window closes on whichever comes first: Span elapsed or Count events
type Window struct {
	Span  time.Duration
	Count int
}

// windower accumulates filtered events into non-overlapping batches
type windower struct {
	window Window
	in     <-chan types.ManagerEvent
	out    chan<- []types.ManagerEvent
	logger zerolog.Logger
}

// run emits batches until ctx is cancelled and returns the partial batch
// accumulated at that point.
func (w *windower) run(ctx context.Context) []types.ManagerEvent {
	m := metrics.Get()

	timer := time.NewTimer(w.window.Span)
	defer timer.Stop()

	opened := time.Now()
	batch := make([]types.ManagerEvent, 0, w.window.Count)

	flush := func() bool {
		if len(batch) > 0 {
			m.RecordWindow(len(batch), time.Since(opened))
			select {
			case w.out <- batch:
			case <-ctx.Done():
				return false
			}
			batch = make([]types.ManagerEvent, 0, w.window.Count)
		}
		opened = time.Now()
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return batch

		case e, ok := <-w.in:
			if !ok {
				flush()
				<-ctx.Done()
				return nil
			}
			if !Allowed(e.Name()) {
				m.RecordEventDropped()
				w.logger.Debug().Str("event", e.Name()).Msg("dropping unlisted event")
				continue
			}
			m.RecordEventAccepted()
			batch = append(batch, e)

			if w.window.Count > 0 && len(batch) >= w.window.Count {
				if !flush() {
					return batch
				}
				timer.Reset(w.window.Span)
			}

		case <-timer.C:
			if !flush() {
				return batch
			}
			timer.Reset(w.window.Span)
		}
	}
}
