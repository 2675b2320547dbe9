package bus

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	messages []kafka.Message
	closed   bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if r.closed || len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestQueuePushConsume(t *testing.T) {
	q := NewQueue(2)
	ctx := context.Background()

	if err := q.Push(ctx, Message{Key: "hangup", Value: []byte("SIP/100-0001")}); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}

	msg, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("unexpected consume error: %v", err)
	}
	if msg.Key != "hangup" || string(msg.Value) != "SIP/100-0001" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(1)
	q.Close()
	q.Close()

	if _, err := q.Consume(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := q.Push(context.Background(), Message{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on push, got %v", err)
	}
}

func TestQueueConsumeCancelled(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Consume(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestFanout(t *testing.T) {
	var got []string
	record := ProducerFunc(func(_ context.Context, key string, _ []byte) error {
		got = append(got, key)
		return nil
	})
	failing := ProducerFunc(func(context.Context, string, []byte) error {
		return errors.New("broker down")
	})

	err := Fanout{record, failing, record}.Produce(context.Background(), "c1", []byte("{}"))
	if err == nil {
		t.Error("expected joined error")
	}
	if len(got) != 2 {
		t.Errorf("expected both healthy producers to receive the message, got %v", got)
	}
}

func TestParseBrokers(t *testing.T) {
	got := ParseBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", got)
	}
	if ParseBrokers("") != nil {
		t.Error("expected no brokers for empty input")
	}
}

func TestKafkaConstructorsValidate(t *testing.T) {
	logger := zerolog.Nop()

	if _, err := NewKafkaProducer(KafkaConfig{SnapshotTopic: "resume"}, logger); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafkaConsumer(KafkaConfig{Brokers: []string{"localhost:9092"}}, logger); err == nil {
		t.Error("expected error without topic and group")
	}

	p, err := NewKafkaProducer(KafkaConfig{Brokers: []string{"localhost:9092"}, SnapshotTopic: "resume"}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.writer.Topic != "resume" {
		t.Errorf("expected topic resume, got %s", p.writer.Topic)
	}
	p.Close()
}

func TestKafkaConsumerClosed(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Key: []byte("hangup"), Value: []byte("SIP/100-0001")}}}
	c := &KafkaConsumer{reader: reader}

	msg, err := c.Consume(context.Background())
	if err != nil {
		t.Fatalf("unexpected consume error: %v", err)
	}
	if msg.Key != "hangup" || string(msg.Value) != "SIP/100-0001" {
		t.Errorf("unexpected message %+v", msg)
	}

	c.Close()
	if _, err := c.Consume(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestKafkaConsumerReadError(t *testing.T) {
	c := &KafkaConsumer{reader: errReader{err: errors.New("broker down")}}

	_, err := c.Consume(context.Background())
	if err == nil || errors.Is(err, ErrClosed) {
		t.Errorf("expected a wrapped read error, got %v", err)
	}
}

type errReader struct {
	err error
}

func (r errReader) ReadMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, r.err
}

func (r errReader) Close() error { return nil }
