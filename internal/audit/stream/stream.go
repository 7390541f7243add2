// Package stream fans durable audit entries out to a Kafka topic for
// downstream consumers (compliance export, search indexing).
//
// The database write is the record of truth. Publishing happens only after
// the wrapped store accepted the entry, and a publish failure never turns a
// successful write into an error.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"medorder/internal/audit"
	"medorder/internal/audit/metrics"
	"medorder/pkg/platform/circuit"
	"medorder/pkg/requestcontext"
)

// Publish results.
const (
	PublishOK      = "ok"
	PublishError   = "error"
	PublishSkipped = "skipped"
)

// Producer is the subset of *kgo.Client used for publishing.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Envelope is the message value written to the topic.
type Envelope struct {
	Kind      audit.Kind  `json:"kind"`
	RequestID string      `json:"request_id,omitempty"`
	Entry     audit.Entry `json:"entry"`
}

// Store decorates an audit.Store with publishing.
type Store struct {
	next     audit.Store
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithBreaker replaces the default publish circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		s.breaker = b
	}
}

// New wraps next so every appended entry is also produced to topic.
func New(next audit.Store, producer Producer, topic string, opts ...Option) *Store {
	s := &Store{
		next:     next,
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("audit-stream"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append writes to the wrapped store, then publishes. Only the wrapped
// store's error is returned.
//
// When ctx carries a SQL transaction the entry is published before commit;
// consumers dedupe on the entry id and must tolerate entries whose
// transaction later rolled back.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	if err := s.next.Append(ctx, entry); err != nil {
		return err
	}
	s.publish(ctx, entry)
	return nil
}

func (s *Store) publish(ctx context.Context, entry audit.Entry) {
	record, err := s.record(ctx, entry)
	if err != nil {
		s.metrics.IncPublish(PublishError)
		s.logger.ErrorContext(ctx, "audit stream encode failed", "entry_id", entry.EntryID(), "error", err)
		return
	}

	if !s.breaker.Allow() {
		s.metrics.IncPublish(PublishSkipped)
		return
	}

	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		s.metrics.IncPublish(PublishError)
		_, change := s.breaker.RecordFailure()
		s.logger.WarnContext(ctx, "audit stream publish failed",
			"topic", s.topic,
			"entry_id", entry.EntryID(),
			"error", err,
		)
		if change.Opened {
			s.metrics.SetBreakerOpen(true)
			s.logger.ErrorContext(ctx, "audit stream circuit opened", "breaker", s.breaker.Name())
		}
		return
	}

	s.metrics.IncPublish(PublishOK)
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.metrics.SetBreakerOpen(false)
		s.logger.InfoContext(ctx, "audit stream circuit closed", "breaker", s.breaker.Name())
	}
}

func (s *Store) record(ctx context.Context, entry audit.Entry) (*kgo.Record, error) {
	value, err := json.Marshal(Envelope{
		Kind:      entry.Kind(),
		RequestID: requestcontext.RequestID(ctx),
		Entry:     entry,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return &kgo.Record{
		Topic: s.topic,
		Key:   []byte(entry.EntityKey()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(entry.Kind())},
			{Key: "entry_id", Value: []byte(entry.EntryID().String())},
		},
	}, nil
}

// EnsureTopic creates topic if it does not already exist.
func EnsureTopic(ctx context.Context, adm *kadm.Client, topic string, partitions int32, replication int16) error {
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}
