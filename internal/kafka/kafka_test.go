package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	mu     sync.Mutex
	got    []kafka.Message
	fail   error
	closed bool
	gate   chan struct{}
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.got = append(w.got, msgs...)
	return w.fail
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, nil)
	p.Start()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish([]byte(k), []byte("v")))
	}
	p.Close()
	p.WaitClosed()

	require.Len(t, w.got, 3)
	assert.Equal(t, "a", string(w.got[0].Key))
	assert.Equal(t, "c", string(w.got[2].Key))
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish([]byte("d"), nil), ErrProducerClosed)
	p.Close()
}

func TestProducerPublishNeverBlocks(t *testing.T) {
	w := &fakeWriter{gate: make(chan struct{})}
	p := newProducer(w, 1, nil)
	p.Start()

	// the first message may be taken by the loop and stall in the writer,
	// so fill until the buffer is full
	var full error
	for i := 0; i < 3 && full == nil; i++ {
		full = p.Publish([]byte("k"), []byte("v"))
	}
	assert.ErrorIs(t, full, ErrBufferFull)

	close(w.gate)
	p.Close()
	p.WaitClosed()
}

func TestProducerSurvivesWriteErrors(t *testing.T) {
	w := &fakeWriter{fail: errors.New("broker down")}
	p := newProducer(w, 4, nil)
	p.Start()
	require.NoError(t, p.Publish([]byte("a"), nil))
	require.NoError(t, p.Publish([]byte("b"), nil))
	p.Close()
	p.WaitClosed()
	assert.Len(t, w.got, 2)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	c := newConsumer(r, 2, nil)
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	seen := 0
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			seen++
			n := seen
			mu.Unlock()
			if n == 3 {
				defer cancel()
			}
			if m.Offset == 2 {
				return errors.New("poison")
			}
			return nil
		})
	}()
	require.NoError(t, <-done)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.ElementsMatch(t, []int64{1, 3}, r.committed)
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTrace(ctx, kafka.Header{Key: "x-event-type", Value: []byte("order_created")})
	m := kafka.Message{Headers: headers}
	assert.Equal(t, "order_created", Header(m, "x-event-type"))
	assert.NotEmpty(t, Header(m, "traceparent"))

	got := trace.SpanContextFromContext(ExtractTrace(context.Background(), headers))
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.True(t, got.IsRemote())
}
