package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/mock/gomock"

	"medorder/internal/audit"
	"medorder/internal/audit/changes"
	"medorder/internal/audit/metrics"
	"medorder/internal/audit/mocks"
	"medorder/internal/audit/store/memory"
	"medorder/pkg/platform/circuit"
	"medorder/pkg/requestcontext"
)

type fakeProducer struct {
	mu      sync.Mutex
	err     error
	records []*kgo.Record
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if p.err == nil {
			p.records = append(p.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func (p *fakeProducer) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func deletion(id string) audit.DeletionLog {
	return audit.DeletionLog{
		ID:         uuid.New(),
		EntityKind: audit.KindOrderDeletion,
		EntityID:   id,
		DeletedBy:  "admin-1",
		DeletedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:       changes.NewRecord(changes.F[any]("id", id), changes.F[any]("total", 42)),
	}
}

func newStore(next audit.Store, p Producer, opts ...Option) (*Store, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithLogger(logger), WithMetrics(m)}, opts...)
	return New(next, p, "medorder.audit", opts...), m
}

func TestAppendPublishesAfterDurableWrite(t *testing.T) {
	mem := memory.NewInMemoryStore()
	producer := &fakeProducer{}
	s, m := newStore(mem, producer)
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")

	entry := deletion("ord-1")
	require.NoError(t, s.Append(ctx, entry))

	stored, _ := mem.Entries(ctx)
	require.Len(t, stored, 1)
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "medorder.audit", rec.Topic)
	assert.Equal(t, "order:ord-1", string(rec.Key))
	assert.Equal(t, []kgo.RecordHeader{
		{Key: "kind", Value: []byte("order_deletion")},
		{Key: "entry_id", Value: []byte(entry.ID.String())},
	}, rec.Headers)

	var got struct {
		Kind      string          `json:"kind"`
		RequestID string          `json:"request_id"`
		Entry     json.RawMessage `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(rec.Value, &got))
	assert.Equal(t, "order_deletion", got.Kind)
	assert.Equal(t, "req-1", got.RequestID)
	assert.JSONEq(t, `{
		"id": "`+entry.ID.String()+`",
		"kind": "order_deletion",
		"entity_id": "ord-1",
		"deleted_by": "admin-1",
		"deleted_at": "2026-01-02T03:04:05Z",
		"data": {"id": "ord-1", "total": 42}
	}`, string(got.Entry))
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.StreamPublishes.WithLabelValues(PublishOK)), 0)
}

func TestAppendDoesNotPublishFailedWrites(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockStore(ctrl)
	storeErr := errors.New("db down")
	next.EXPECT().Append(gomock.Any(), gomock.Any()).Return(storeErr)

	producer := &fakeProducer{}
	s, _ := newStore(next, producer)

	err := s.Append(context.Background(), deletion("ord-1"))
	require.ErrorIs(t, err, storeErr)
	assert.Empty(t, producer.records)
}

func TestPublishFailureKeepsWriteSuccessfulAndOpensBreaker(t *testing.T) {
	mem := memory.NewInMemoryStore()
	producer := &fakeProducer{}
	producer.setErr(errors.New("broker unreachable"))
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1), circuit.WithCooldown(time.Hour))
	s, m := newStore(mem, producer, WithBreaker(breaker))
	ctx := context.Background()

	for i := range 4 {
		require.NoError(t, s.Append(ctx, deletion(uuid.NewString())), "append %d", i)
	}

	stored, _ := mem.Entries(ctx)
	assert.Len(t, stored, 4)
	assert.True(t, breaker.IsOpen())
	assert.InDelta(t, 2, promtestutil.ToFloat64(m.StreamPublishes.WithLabelValues(PublishError)), 0)
	assert.InDelta(t, 2, promtestutil.ToFloat64(m.StreamPublishes.WithLabelValues(PublishSkipped)), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.StreamBreakerOpen), 0)
}

func TestBreakerClosesAfterRecoveredProbe(t *testing.T) {
	mem := memory.NewInMemoryStore()
	producer := &fakeProducer{}
	producer.setErr(errors.New("broker unreachable"))
	breaker := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(1), circuit.WithCooldown(time.Millisecond))
	s, m := newStore(mem, producer, WithBreaker(breaker))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, deletion("ord-1")))
	require.True(t, breaker.IsOpen())

	producer.setErr(nil)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Append(ctx, deletion("ord-2")))

	assert.False(t, breaker.IsOpen())
	assert.Len(t, producer.records, 1)
	assert.InDelta(t, 0, promtestutil.ToFloat64(m.StreamBreakerOpen), 0)
}
