package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/bus"
	"github.com/jscgfz/asterisk-events-worker-service/internal/resolver"
	"github.com/jscgfz/asterisk-events-worker-service/internal/routing"
	"github.com/jscgfz/asterisk-events-worker-service/internal/store"
	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

type recordingBatcher struct {
	batches chan []types.ManagerEvent
}

func newRecordingBatcher() *recordingBatcher {
	return &recordingBatcher{batches: make(chan []types.ManagerEvent, 10)}
}

func (b *recordingBatcher) Process(_ context.Context, batch []types.ManagerEvent) {
	b.batches <- batch
}

type recordingProducer struct {
	mu       sync.Mutex
	messages []bus.Message
}

func (p *recordingProducer) Produce(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, bus.Message{Key: key, Value: value})
	return nil
}

func (p *recordingProducer) all() []bus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bus.Message(nil), p.messages...)
}

func startPublisher(t *testing.T, window Window, sender Batcher) (*Publisher, chan types.ManagerEvent) {
	t.Helper()

	events := make(chan types.ManagerEvent, 200)
	p := New(events, sender, window, zerolog.New(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p, events
}

func hangup(id string) types.ManagerEvent {
	return types.NewEvent("Event", "Hangup", "Uniqueid", id)
}

func waitBatch(t *testing.T, b *recordingBatcher) []types.ManagerEvent {
	t.Helper()
	select {
	case batch := <-b.batches:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
	return nil
}

func TestWindowFlushesOnCount(t *testing.T) {
	b := newRecordingBatcher()
	_, events := startPublisher(t, Window{Span: time.Hour, Count: 3}, b)

	for i := 0; i < 3; i++ {
		events <- hangup(fmt.Sprint(i))
	}

	batch := waitBatch(t, b)
	if len(batch) != 3 {
		t.Fatalf("expected 3 events, got %d", len(batch))
	}
	for i, e := range batch {
		if e.Value("uniqueid") != fmt.Sprint(i) {
			t.Errorf("expected arrival order, got %s at %d", e.Value("uniqueid"), i)
		}
	}
}

func TestWindowFlushesOnSpan(t *testing.T) {
	b := newRecordingBatcher()
	_, events := startPublisher(t, Window{Span: 50 * time.Millisecond, Count: 100}, b)

	events <- hangup("a")
	events <- hangup("b")

	if batch := waitBatch(t, b); len(batch) != 2 {
		t.Errorf("expected 2 events, got %d", len(batch))
	}
}

func TestEmptyWindowsDiscarded(t *testing.T) {
	b := newRecordingBatcher()
	startPublisher(t, Window{Span: 10 * time.Millisecond, Count: 100}, b)

	select {
	case batch := <-b.batches:
		t.Errorf("expected no batch, got %d events", len(batch))
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnlistedEventsDropped(t *testing.T) {
	b := newRecordingBatcher()
	_, events := startPublisher(t, Window{Span: time.Hour, Count: 1}, b)

	events <- types.NewEvent("Event", "VarSet", "Uniqueid", "x")
	events <- types.NewEvent("Uniqueid", "no-name")
	events <- hangup("kept")

	batch := waitBatch(t, b)
	if len(batch) != 1 || batch[0].Value("uniqueid") != "kept" {
		t.Errorf("expected only the hangup, got %v", batch)
	}
}

func TestReconfigureFlushesPartialWindow(t *testing.T) {
	b := newRecordingBatcher()
	p, events := startPublisher(t, Window{Span: time.Hour, Count: 100}, b)

	events <- hangup("a")
	events <- hangup("b")

	// Let the window goroutine drain the input channel.
	deadline := time.Now().Add(time.Second)
	for len(events) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	p.Reconfigure(Window{Span: time.Hour, Count: 2})
	if batch := waitBatch(t, b); len(batch) != 2 {
		t.Fatalf("expected partial batch of 2, got %d", len(batch))
	}
	if p.Window().Count != 2 {
		t.Errorf("expected count 2, got %d", p.Window().Count)
	}

	events <- hangup("c")
	events <- hangup("d")
	if batch := waitBatch(t, b); len(batch) != 2 {
		t.Errorf("expected new window to flush at 2, got %d", len(batch))
	}
}

func TestReconfigureSameWindowIsNoop(t *testing.T) {
	b := newRecordingBatcher()
	p, _ := startPublisher(t, Window{Span: time.Hour, Count: 5}, b)

	p.Reconfigure(Window{Span: time.Hour, Count: 5})
	if p.Window() != (Window{Span: time.Hour, Count: 5}) {
		t.Errorf("unexpected window %+v", p.Window())
	}
}

func newTestSender(t *testing.T) (*Sender, *recordingProducer) {
	t.Helper()

	table, err := routing.NewTable([]routing.CompanyFilter{
		{ID: "c1", Name: "Acme", Queues: map[string]string{"sales": "Sales", "support": "Support"}},
	})
	if err != nil {
		t.Fatalf("failed to build routing: %v", err)
	}

	names := resolver.Static{Names: map[string]string{"100": "Ana"}}
	st := store.New(routing.NewHolder(table), names, store.DefaultOptions(), zerolog.Nop())
	producer := &recordingProducer{}
	return NewSender(st, names, producer, zerolog.Nop()), producer
}

func memberEvent(queue, iface string) types.ManagerEvent {
	return types.NewEvent(
		"Event", "QueueMember",
		"Queue", queue,
		"Location", iface,
		"Membership", "dynamic",
		"CallsTaken", "2",
		"LastCall", "0",
		"Paused", "0",
		"Status", "1",
		"InCall", "0",
		"LoginTime", "1700000000",
	)
}

func TestSenderPublishesOncePerCompany(t *testing.T) {
	sender, producer := newTestSender(t)

	var batch []types.ManagerEvent
	for i := 0; i < 100; i++ {
		queue := "sales"
		if i%2 == 1 {
			queue = "support"
		}
		batch = append(batch, memberEvent(queue, fmt.Sprintf("SIP/%d", 100+i)))
	}

	sender.Process(context.Background(), batch)

	msgs := producer.all()
	if len(msgs) != 1 || msgs[0].Key != "c1" {
		t.Fatalf("expected exactly one publish for c1, got %d", len(msgs))
	}
}

func TestSenderSkipsMalformedAndUnhandled(t *testing.T) {
	sender, producer := newTestSender(t)

	sender.Process(context.Background(), []types.ManagerEvent{
		types.NewEvent("Event", "QueueMember", "Queue", "sales"),
		types.NewEvent("Event", "QueueMemberAdded", "Queue", "sales"),
		hangup("unknown"),
	})

	if msgs := producer.all(); len(msgs) != 0 {
		t.Errorf("expected no publish, got %d", len(msgs))
	}
}

func TestQueueMemberWindowPublishesAvailable(t *testing.T) {
	sender, producer := newTestSender(t)
	_, events := startPublisher(t, Window{Span: 20 * time.Millisecond, Count: 500}, sender)

	events <- memberEvent("sales", "SIP/100")

	deadline := time.Now().Add(2 * time.Second)
	for len(producer.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	msgs := producer.all()
	if len(msgs) != 1 {
		t.Fatalf("expected one publish, got %d", len(msgs))
	}
	if msgs[0].Key != "c1" {
		t.Errorf("expected key c1, got %s", msgs[0].Key)
	}

	var snap types.CompanySnapshot
	if err := json.Unmarshal(msgs[0].Value, &snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	m, ok := snap.Queues["sales"].Available["SIP/100"]
	if !ok {
		t.Fatalf("expected SIP/100 available, got %+v", snap.Queues["sales"])
	}
	if m.Name != "Ana" {
		t.Errorf("expected resolved name Ana, got %q", m.Name)
	}
}
