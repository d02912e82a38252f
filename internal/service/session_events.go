package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SessionEvent describes a lifecycle transition broadcast to other services.
type SessionEvent struct {
	Type              string     `json:"type"`
	SessionID         uint       `json:"session_id"`
	AssessmentID      uint       `json:"assessment_id"`
	StudentID         uint       `json:"student_id"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	ForcedSubmission  bool       `json:"forced_submission"`
	SecurityViolation *string    `json:"security_violation,omitempty"`
	OccurredAt        time.Time  `json:"occurred_at"`
}

// Session event types.
const (
	SessionEventSubmitted  = "session.submitted"
	SessionEventGraded     = "session.graded"
	SessionEventReassigned = "session.reassigned"
)

// SessionEventPublisher broadcasts lifecycle events. Publishing is best effort;
// the session row stays the source of truth.
type SessionEventPublisher interface {
	Publish(ctx context.Context, event SessionEvent) error
}

// AMQPChannel is the subset of *amqp.Channel used to publish events.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// SessionEventOption configures optional transports.
type SessionEventOption func(*sessionEventPublisher)

// WithAMQP also publishes events to a RabbitMQ topic exchange, routed by event type.
func WithAMQP(channel AMQPChannel, exchange string) SessionEventOption {
	return func(p *sessionEventPublisher) {
		if channel == nil || exchange == "" {
			return
		}
		p.amqp = channel
		p.exchange = exchange
	}
}

type sessionEventPublisher struct {
	redis    *redis.Client
	channel  string
	nats     *nats.Conn
	subject  string
	amqp     AMQPChannel
	exchange string
	logger   zerolog.Logger
}

// NewSessionEventPublisher builds a publisher fanning out over Redis pub/sub and NATS.
// Either transport may be nil.
func NewSessionEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger, opts ...SessionEventOption) SessionEventPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":sessions"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".sessions"
	}

	publisher := &sessionEventPublisher{
		redis:   redisClient,
		channel: channel,
		nats:    natsConn,
		subject: subject,
		logger:  logger.With().Str("component", "session_event_publisher").Logger(),
	}
	for _, opt := range opts {
		opt(publisher)
	}
	return publisher
}

func (p *sessionEventPublisher) Publish(ctx context.Context, event SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.redis != nil && p.channel != "" {
		if err := p.redis.Publish(ctx, p.channel, payload).Err(); err != nil {
			return err
		}
	}

	if p.nats != nil && p.subject != "" {
		if err := p.nats.Publish(p.subject+"."+strings.TrimPrefix(event.Type, "session."), payload); err != nil {
			return err
		}
	}

	if p.amqp != nil {
		publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := p.amqp.PublishWithContext(publishCtx, p.exchange, event.Type, false, false, amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Type:         event.Type,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func publishSessionEvent(ctx context.Context, publisher SessionEventPublisher, logger zerolog.Logger, event SessionEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Uint("session_id", event.SessionID).Str("event", event.Type).Msg("failed to publish session event")
	}
}
