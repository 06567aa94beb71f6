package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// MaxDelay caps the dial backoff
const MaxDelay = 60 * time.Second

// ConnectionOptions configures the broker connection
type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Logger        *slog.Logger
}

// backoff returns the wait after the given failed attempt (1-based)
func backoff(base time.Duration, attempt int) time.Duration {
	sleep := base
	for i := 1; i < attempt && sleep < MaxDelay; i++ {
		sleep *= 2
	}
	if sleep > MaxDelay {
		sleep = MaxDelay
	}
	return sleep
}

// DialWithRetry connects to RabbitMQ with exponential backoff and stops
// early when ctx is cancelled.
func DialWithRetry(ctx context.Context, opts ConnectionOptions) (*amqp091.Connection, error) {
	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				opts.Logger.Info("rabbit connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err

		if i == attempts {
			break
		}

		sleep := backoff(opts.Delay, i)
		opts.Logger.Warn("rabbit dial failed",
			slog.Int("attempt", i),
			slog.Duration("sleep", sleep),
			slog.Any("error", err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}

// AMQPPublisher publishes click events to a durable topic exchange with
// publisher confirms.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *slog.Logger

	mu sync.Mutex
	ch *amqp091.Channel
}

// NewAMQP dials the broker and declares the exchange
func NewAMQP(ctx context.Context, opts ConnectionOptions, exchange string) (*AMQPPublisher, error) {
	conn, err := DialWithRetry(ctx, opts)
	if err != nil {
		return nil, err
	}

	p := &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		logger:   opts.Logger,
	}

	if _, err := p.channel(); err != nil {
		conn.Close()
		return nil, err
	}

	return p, nil
}

// channel returns the confirm-mode channel, reopening it after a close
func (p *AMQPPublisher) channel() (*amqp091.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to enable confirms: %w", err)
	}

	p.ch = ch
	return ch, nil
}

// Publish sends the event and waits for the broker confirm
func (p *AMQPPublisher) Publish(ctx context.Context, event ClickRecorded) error {
	env := NewEnvelope(event, time.Now())
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	cid := env.Meta.ID
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(
		ctx, p.exchange, ClickRecordedV1, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     env.Meta.ID,
			CorrelationId: cid,
			Timestamp:     env.Meta.Time,
			Type:          ClickRecordedV1,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm publish: %w", err)
	}
	if !acked {
		return errors.New("broker rejected event")
	}

	p.logger.Debug("published", slog.String("key", ClickRecordedV1), slog.String("exchange", p.exchange))
	return nil
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	return p.conn.Close()
}
