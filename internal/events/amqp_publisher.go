package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const maxDialDelay = 60 * time.Second

type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Logger        *zap.Logger
}

// DialWithRetry tries to connect to RabbitMQ with exponential backoff.
// It respects context cancellation for graceful shutdown.
func DialWithRetry(ctx context.Context, cfg ConnectionOptions) (*amqp091.Connection, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	var lastErr error
	sleep := cfg.Delay
	for i := 1; i <= cfg.RetryAttempts; i++ {
		conn, err := amqp091.Dial(cfg.URL)
		if err == nil {
			if i > 1 {
				cfg.Logger.Info("rabbit connected", zap.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err
		if i == cfg.RetryAttempts {
			break
		}

		cfg.Logger.Warn("rabbit dial failed",
			zap.Int("attempt", i),
			zap.Duration("sleep", sleep),
			zap.Error(err),
		)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		sleep *= 2
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", cfg.RetryAttempts, lastErr)
}

// Meta mirrors the envelope header other services on the bus expect.
type Meta struct {
	ID       string    `json:"id"`
	Producer string    `json:"producer"`
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
}

type Envelope struct {
	Meta Meta  `json:"meta"`
	Data Event `json:"data"`
}

// AMQPForwarder mirrors dispatcher events onto a topic exchange so other
// services can react to chat activity. Routing key is the event type.
type AMQPForwarder struct {
	conn     *amqp091.Connection
	exchange string
	producer string
	log      *zap.Logger

	mu sync.Mutex
	ch *amqp091.Channel
}

func NewAMQPForwarder(conn *amqp091.Connection, exchange, producer string, logger *zap.Logger) (*AMQPForwarder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, err
	}
	return &AMQPForwarder{conn: conn, exchange: exchange, producer: producer, log: logger, ch: ch}, nil
}

// Handle is an EventHandler; register it with Dispatcher.SubscribeAll.
func (f *AMQPForwarder) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: f.producer,
			Time:     time.Now().UTC(),
			Type:     string(event.Type) + ".v1",
		},
		Data: event,
	})
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil || f.ch.IsClosed() {
		ch, err := f.conn.Channel()
		if err != nil {
			return fmt.Errorf("reopen channel: %w", err)
		}
		f.ch = ch
	}
	err = f.ch.PublishWithContext(ctx, f.exchange, string(event.Type), false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     event.ID,
		CorrelationId: event.ID,
		Timestamp:     event.Timestamp,
		Body:          body,
	})
	if err != nil {
		return err
	}
	f.log.Debug("event forwarded", zap.String("key", string(event.Type)), zap.String("exchange", f.exchange))
	return nil
}

func (f *AMQPForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	if f.ch != nil {
		errs = append(errs, f.ch.Close())
	}
	errs = append(errs, f.conn.Close())
	return errors.Join(errs...)
}
