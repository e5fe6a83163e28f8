package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// publishChannel is the subset of *amqp.Channel the publisher uses.
type publishChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (publishChannel, io.Closer, error)

func dialAMQP(url string) (publishChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn, nil
}

// QueueMailer hands messages to a durable RabbitMQ queue. A Consumer
// elsewhere performs the actual SMTP delivery, so request handlers never
// wait on the mail server.
type QueueMailer struct {
	url   string
	queue string
	dial  dialFunc

	mu   sync.Mutex
	ch   publishChannel
	conn io.Closer
}

func NewQueueMailer(url, queue string) *QueueMailer {
	return &QueueMailer{url: url, queue: queue, dial: dialAMQP}
}

func (q *QueueMailer) connectLocked() error {
	if q.ch != nil {
		return nil
	}
	ch, conn, err := q.dial(q.url)
	if err != nil {
		return err
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("queue declare: %w", err)
	}
	q.ch, q.conn = ch, conn
	return nil
}

func (q *QueueMailer) resetLocked() {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
	q.ch, q.conn = nil, nil
}

func (q *QueueMailer) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return &DeliveryError{Transport: "queue", Err: err}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.connectLocked(); err != nil {
		return &DeliveryError{Transport: "queue", Retryable: true, Err: err}
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, pub); err != nil {
		// Drop the channel so the next Send reconnects.
		q.resetLocked()
		return &DeliveryError{Transport: "queue", Retryable: true, Err: err}
	}
	return nil
}

func (q *QueueMailer) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked()
	return nil
}

// Consumer reads queued messages and delivers them with another Mailer,
// normally SMTP.
type Consumer struct {
	url         string
	queue       string
	deliver     Mailer
	sendTimeout time.Duration
}

func NewConsumer(url, queue string, deliver Mailer) *Consumer {
	return &Consumer{url: url, queue: queue, deliver: deliver, sendTimeout: 30 * time.Second}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff when the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			zap.L().Warn("Mail consumer failed to dial broker", zap.Error(err), zap.Duration("retryIn", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zap.L().Warn("Mail consumer loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		zap.L().Warn("Mail consumer failed to set QoS", zap.Error(err))
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		requeue, err := c.handle(ctx, d.Body)
		if err != nil {
			// One retry per message; a second failure is dropped to avoid
			// tight redelivery loops.
			retry := requeue && !d.Redelivered
			zap.L().Error("Failed to deliver queued email", zap.Error(err), zap.Bool("requeue", retry))
			_ = d.Nack(false, retry)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// handle delivers one queued message. requeue reports whether a failure
// is worth another attempt.
func (c *Consumer) handle(ctx context.Context, body []byte) (requeue bool, err error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return false, fmt.Errorf("unmarshal: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	if err := c.deliver.Send(sendCtx, msg); err != nil {
		var de *DeliveryError
		return errors.As(err, &de) && de.Retryable, err
	}
	return false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
