package rabbitmq

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/contracts/event"
	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	appCtx "github.com/100x-Engineers100/ugc-tracker/internal/pkg/context"
	"github.com/100x-Engineers100/ugc-tracker/internal/pkg/logger"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	envelopeVersion = 1
	producerName    = "ugc-tracker"

	rkNotifyInfo    = "notify.info"
	rkNotifySuccess = "notify.success"
	rkNotifyError   = "notify.error"
)

// Publisher fans notifications out on a topic exchange so the admin UI can
// subscribe. Publishing is best effort: a broker failure degrades to a
// warning log and never fails the emitting operation.
type Publisher struct {
	rabbitURL string
	exchange  string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(rabbitURL, exchange string) *Publisher {
	return &Publisher{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
	}
}

// channel returns an open channel with the exchange declared, dialing
// lazily and redialing after a broker drop.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.rabbitURL)
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		_ = p.conn.Close()
		p.conn = nil
		return nil, err
	}

	// Ensure exchange exists (idempotent)
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}

	p.ch = ch
	return ch, nil
}

func routingKey(s domain.Severity) string {
	switch s {
	case domain.SeveritySuccess:
		return rkNotifySuccess
	case domain.SeverityError:
		return rkNotifyError
	default:
		return rkNotifyInfo
	}
}

func (p *Publisher) Notify(ctx context.Context, n domain.Notification) {
	log := logger.Logger.With().Str("component", "notify_publisher").Logger()

	ch, err := p.channel()
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable; notification not published")
		return
	}

	env := event.NotificationEnvelope[event.NotificationPayload]{
		Version:    envelopeVersion,
		Producer:   producerName,
		TraceID:    appCtx.GetRequestID(ctx),
		MessageID:  uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Payload: event.NotificationPayload{
			Severity:    string(n.Severity),
			Title:       n.Title,
			Description: n.Description,
		},
	}

	body, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("notification envelope marshal failed")
		return
	}

	pub := amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Transient, // toasts are ephemeral
		Timestamp:     env.OccurredAt,
		MessageId:     env.MessageID,
		CorrelationId: env.TraceID,
		AppId:         producerName,
	}

	if err := ch.PublishWithContext(ctx, p.exchange, routingKey(n.Severity), false, false, pub); err != nil {
		log.Warn().Err(err).Str("routing_key", routingKey(n.Severity)).Msg("notification publish failed")
		return
	}
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
