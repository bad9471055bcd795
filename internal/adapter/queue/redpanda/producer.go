// Package redpanda publishes action lifecycle events to a Kafka-compatible broker.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/organic-advisor/internal/adapter/observability"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
	obsctx "github.com/fairyhunter13/organic-advisor/internal/observability"
)

// Event types carried in the "event" header and the envelope.
const (
	EventActionGenerated = "action.generated"
	EventActionCompleted = "action.completed"

	// DefaultTopic receives every action event when no topic is configured.
	DefaultTopic = "organic-actions"
)

// Envelope is the JSON value of every record.
type Envelope struct {
	Type       string                 `json:"type"`
	ActionID   string                 `json:"action_id"`
	UserID     string                 `json:"user_id,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Action     *domain.ActionInstance `json:"action,omitempty"`
	Feedback   *domain.Feedback       `json:"feedback,omitempty"`
}

// syncProducer is the subset of *kgo.Client the publisher needs.
type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Producer implements domain.EventPublisher on top of a franz-go client.
type Producer struct {
	client syncProducer
	topic  string
	now    func() time.Time
}

// NewProducer connects to brokers, makes sure topic exists and returns a Producer.
// Topic creation failures are logged; the broker may auto-create or the topic may be
// managed elsewhere.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	k := kotel.NewKotel(kotel.WithTracer(tracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(5),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.ProduceRequestTimeout(10*time.Second),
		kgo.DialTimeout(10*time.Second),
		kgo.WithHooks(k.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}
	if err := EnsureTopic(ctx, client, topic, 3, 1); err != nil {
		slog.Warn("failed to ensure events topic", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("event producer ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return newProducer(client, topic), nil
}

func newProducer(client syncProducer, topic string) *Producer {
	return &Producer{client: client, topic: topic, now: time.Now}
}

// PublishActionGenerated emits action.generated keyed by user so a user's events stay ordered.
func (p *Producer) PublishActionGenerated(ctx context.Context, a domain.ActionInstance) error {
	env := Envelope{Type: EventActionGenerated, ActionID: a.ID, UserID: a.UserID, OccurredAt: p.now().UTC(), Action: &a}
	return p.publish(ctx, a.UserID, env)
}

// PublishActionCompleted emits action.completed keyed by action.
func (p *Producer) PublishActionCompleted(ctx context.Context, actionID string, fb domain.Feedback) error {
	env := Envelope{Type: EventActionCompleted, ActionID: actionID, OccurredAt: p.now().UTC(), Feedback: &fb}
	return p.publish(ctx, actionID, env)
}

func (p *Producer) publish(ctx context.Context, key string, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		observability.RecordEventPublished(env.Type, "error")
		return fmt.Errorf("op=redpanda.publish: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(env.Type)},
			{Key: "action_id", Value: []byte(env.ActionID)},
		},
	}
	if rid := obsctx.RequestIDFromContext(ctx); rid != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: "request_id", Value: []byte(rid)})
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		observability.RecordEventPublished(env.Type, "error")
		return fmt.Errorf("op=redpanda.publish: %w", err)
	}
	observability.RecordEventPublished(env.Type, "ok")
	obsctx.LoggerFromContext(ctx).Debug("event published",
		slog.String("event", env.Type),
		slog.String("action_id", env.ActionID),
		slog.String("topic", p.topic))
	return nil
}

// Close flushes and closes the client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

// PublishActionGenerated implements domain.EventPublisher.
func (NopPublisher) PublishActionGenerated(context.Context, domain.ActionInstance) error { return nil }

// PublishActionCompleted implements domain.EventPublisher.
func (NopPublisher) PublishActionCompleted(context.Context, string, domain.Feedback) error {
	return nil
}
