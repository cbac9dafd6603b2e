package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/membership-backend/internal/logging"
)

// amqpChannel is the part of *amqp.Channel the publisher needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(ctx context.Context) (amqpChannel, func() error, error)

// dialTimeout bounds a dial when the caller's context has no deadline.
const dialTimeout = 3 * time.Second

// Publisher sends EmailRequestedEvent messages to a durable queue.  It keeps
// one channel open and redials after a failed publish.  Dialing happens
// outside the lock, so a slow broker only delays the caller that dials.
type Publisher struct {
	queue string
	log   logging.Logger
	dial  dialFunc

	mu      sync.Mutex
	ch      amqpChannel
	closeFn func() error
}

// NewPublisher returns a Publisher for url.  No connection is made until
// the first message is sent.
func NewPublisher(url, queue string, log logging.Logger) *Publisher {
	return &Publisher{queue: queue, log: log, dial: amqpDialer(url, queue)}
}

func amqpDialer(url, queue string) dialFunc {
	return func(ctx context.Context) (amqpChannel, func() error, error) {
		d := dialTimeout
		if dl, ok := ctx.Deadline(); ok {
			d = time.Until(dl)
		}
		if d <= 0 {
			return nil, nil, fmt.Errorf("dial: %w", context.DeadlineExceeded)
		}
		// DefaultDial also bounds the AMQP handshake, not only the TCP connect.
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(d),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("channel open: %w", err)
		}
		// Durable so messages survive broker restarts.
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("queue declare: %w", err)
		}
		return ch, conn.Close, nil
	}
}

// Publish enqueues ev, filling in its ID and timestamp when empty.
func (p *Publisher) Publish(ctx context.Context, ev EmailRequestedEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.RequestedAt.IsZero() {
		ev.RequestedAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.RequestedAt,
		Body:         body,
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.mu.Lock()
		if p.ch == ch {
			_ = p.resetLocked()
		}
		p.mu.Unlock()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns the cached channel or dials a new one.  When two callers
// dial at once the first to finish wins and the other connection is closed.
func (p *Publisher) channel(ctx context.Context) (amqpChannel, error) {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch != nil {
		return ch, nil
	}

	ch, closeFn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = ch.Close()
		_ = closeFn()
		return p.ch, nil
	}
	p.ch, p.closeFn = ch, closeFn
	return ch, nil
}

// SendEmail publishes an email and reports whether the broker accepted it.
func (p *Publisher) SendEmail(ctx context.Context, to, subject, text, html string) bool {
	err := p.Publish(ctx, EmailRequestedEvent{To: to, Subject: subject, Text: text, HTML: html})
	if err != nil {
		p.log.Warn(ctx, "rabbitmq: email publish failed", "queue", p.queue, "err", err)
		return false
	}
	return true
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func (p *Publisher) resetLocked() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeFn != nil {
		err = p.closeFn()
	}
	p.ch, p.closeFn = nil, nil
	return err
}
