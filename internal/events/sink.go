// Package events publishes committed audit records to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/prometheus/client_golang/prometheus"

	"frameworks/herald/internal/audit"
	"frameworks/herald/pkg/clients"
	"frameworks/herald/pkg/kafka"
	"frameworks/herald/pkg/logging"
)

const (
	defaultQueueSize = 1024
	publishTimeout   = 10 * time.Second
)

// ErrQueueFull is returned by Publish when the sink cannot keep up.
var ErrQueueFull = errors.New("audit event queue full")

// Producer is the subset of *kafka.Producer the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, msgs ...kafka.Message) error
}

// Metrics are the counters produced by MetricsCollector.CreateKafkaMetrics.
type Metrics struct {
	Messages *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// Envelope is the JSON value written for each record.
type Envelope struct {
	Type    string       `json:"type"`
	Service string       `json:"service"`
	Record  audit.Record `json:"record"`
}

// AuditSink queues records and produces them to a Kafka topic in the
// background. Records are keyed by target id so one item's history stays
// ordered within a partition.
type AuditSink struct {
	producer Producer
	topic    string
	service  string
	queue    chan []audit.Record
	retry    retrypolicy.RetryPolicy[any]
	metrics  Metrics
	logger   logging.Logger
}

type Option func(*AuditSink)

func WithQueueSize(n int) Option {
	return func(s *AuditSink) { s.queue = make(chan []audit.Record, n) }
}
func WithRetry(cfg clients.RetryConfig) Option {
	return func(s *AuditSink) { s.retry = clients.NewRetryPolicy(cfg) }
}
func WithMetrics(m Metrics) Option { return func(s *AuditSink) { s.metrics = m } }

func NewAuditSink(p Producer, topic, service string, logger logging.Logger, opts ...Option) *AuditSink {
	s := &AuditSink{
		producer: p,
		topic:    topic,
		service:  service,
		queue:    make(chan []audit.Record, defaultQueueSize),
		retry:    clients.NewRetryPolicy(clients.DefaultRetryConfig()),
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Publish enqueues recs without blocking.
func (s *AuditSink) Publish(_ context.Context, recs []audit.Record) error {
	if len(recs) == 0 {
		return nil
	}
	batch := make([]audit.Record, len(recs))
	copy(batch, recs)
	select {
	case s.queue <- batch:
		return nil
	default:
		s.count("dropped", len(recs))
		return fmt.Errorf("%w: dropped %d record(s)", ErrQueueFull, len(recs))
	}
}

// Run drains the queue until ctx is done, then flushes what is left using a
// fresh deadline.
func (s *AuditSink) Run(ctx context.Context) error {
	for {
		select {
		case batch := <-s.queue:
			s.send(ctx, batch)
		case <-ctx.Done():
			s.drain()
			return nil
		}
	}
}

func (s *AuditSink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case batch := <-s.queue:
			s.send(ctx, batch)
		default:
			return
		}
	}
}

func (s *AuditSink) send(ctx context.Context, recs []audit.Record) {
	msgs, err := s.encode(recs)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode audit records")
		s.count("error", len(recs))
		return
	}

	start := time.Now()
	err = failsafe.With[any](s.retry).WithContext(ctx).Run(func() error {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return s.producer.ProduceSync(pctx, msgs...)
	})
	if s.metrics.Duration != nil {
		s.metrics.Duration.WithLabelValues("produce").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logging.Fields{
			"topic":   s.topic,
			"records": len(recs),
		}).Error("Failed to publish audit records")
		s.count("error", len(recs))
		return
	}
	s.count("success", len(recs))
}

func (s *AuditSink) encode(recs []audit.Record) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(recs))
	for _, r := range recs {
		value, err := json.Marshal(Envelope{Type: "audit." + r.Action, Service: s.service, Record: r})
		if err != nil {
			return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: s.topic,
			Key:   []byte(r.TargetID),
			Value: value,
			Headers: map[string]string{
				"event_type":  "audit." + r.Action,
				"source":      s.service,
				"target_type": r.TargetType,
			},
		})
	}
	return msgs, nil
}

func (s *AuditSink) count(status string, n int) {
	if s.metrics.Messages != nil {
		s.metrics.Messages.WithLabelValues(s.topic, "produce", status).Add(float64(n))
	}
}
