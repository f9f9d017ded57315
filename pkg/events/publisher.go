package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"audio-moderation/config"
	"audio-moderation/constant"
)

// JobEvent is published on job creation and on every terminal
// transition so downstream consumers can react without polling.
type JobEvent struct {
	JobId      uuid.UUID          `json:"jobId"`
	Status     constant.JobStatus `json:"status"`
	Error      string             `json:"error,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// Publisher emits job lifecycle events. Publishing is advisory: errors
// are logged, never propagated into the pipeline.
type Publisher interface {
	Publish(ctx context.Context, event JobEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, JobEvent) {}

// NewNoopPublisher is used when no broker is configured.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

type amqpPublisher struct {
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) (Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	exchange := cfg.ExchangeName
	if exchange == "" {
		exchange = "moderation_events"
	}
	kind := cfg.Kind
	if kind == "" {
		kind = "topic"
	}

	if err := ch.ExchangeDeclare(exchange, kind, true, false, false, false, nil); err != nil {
		return nil, err
	}

	return &amqpPublisher{ch: ch, exchange: exchange}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, event JobEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to marshal job event")
		return
	}

	routingKey := "job." + string(event.Status)

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("routing_key", routingKey).Msg("failed to publish job event")
	}
}
