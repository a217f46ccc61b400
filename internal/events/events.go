// Package events публикует события жизненного цикла бонусов.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Type задаёт тип события и routing key.
type Type string

const (
	BonusCreated   Type = "bonus.created"
	BonusUpdated   Type = "bonus.updated"
	BonusDeleted   Type = "bonus.deleted"
	BonusConfirmed Type = "bonus.confirmed"
	BonusReverted  Type = "bonus.reverted"
	BonusStatus    Type = "bonus.status_changed"
	BonusGenerated Type = "bonus.generated"
)

// DefaultExchange используется, если exchange не задан.
const DefaultExchange = "bonus_events"

// Event описывает изменение группы бонусов.
type Event struct {
	Type       Type      `json:"type"`
	BonusIDs   []string  `json:"bonusIds"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher публикует события.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher отбрасывает события. Используется, когда брокер не настроен.
type NopPublisher struct {
	logger *zap.Logger
}

// NewNopPublisher создаёт публикатор без брокера.
func NewNopPublisher(logger *zap.Logger) *NopPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NopPublisher{logger: logger}
}

func (p *NopPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Debug("event publish skipped", zap.String("type", string(e.Type)), zap.Int("bonuses", len(e.BonusIDs)))
	return nil
}

func (p *NopPublisher) Close() error { return nil }

// AMQPPublisher публикует события в RabbitMQ.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// ValidateURL проверяет схему адреса брокера.
func ValidateURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url scheme must be amqp or amqps")
	}
	return clean, nil
}

// NewAMQPPublisher подключается к брокеру и объявляет exchange.
func NewAMQPPublisher(rawURL, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	cleanURL, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	p := &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}
	if err := p.reopen(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.channel = ch
	return nil
}

// Publish отправляет событие, routing key совпадает с типом события.
// При ошибке канал переоткрывается и публикация повторяется один раз.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg)
	if err == nil {
		return nil
	}

	p.logger.Warn("publish failed, reopening channel", zap.String("type", string(e.Type)), zap.Error(err))
	if reopenErr := p.reopen(); reopenErr != nil {
		return fmt.Errorf("publish %s: %w", e.Type, errors.Join(err, reopenErr))
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
