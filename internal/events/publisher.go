package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	exchangeType = "topic"

	queueSize      = 1024
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
	drainTimeout   = 5 * time.Second
)

var (
	ErrPublisherQueueFull = errors.New("event queue full")
	ErrPublisherClosed    = errors.New("publisher closed")
	errNotAcked           = errors.New("event not acknowledged")
)

// session is one broker connection with a confirm-mode channel
type session interface {
	publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
	healthy() bool
	close() error
}

type dialFunc func() (session, error)

// Publisher publishes events to a RabbitMQ topic exchange from a background goroutine.
// Notify only enqueues; a dropped connection is redialed before the next attempt.
type Publisher struct {
	dial  dialFunc
	log   *logrus.Logger
	queue chan Event

	mu   sync.Mutex
	sess session

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewPublisher dials the broker, declares the exchange and starts the delivery loop
func NewPublisher(url, exchange string, log *logrus.Logger) (*Publisher, error) {
	p, err := newPublisher(func() (session, error) { return dialSession(url, exchange) }, queueSize, log)
	if err != nil {
		return nil, err
	}
	log.WithField("exchange", exchange).Info("Connected to RabbitMQ")
	return p, nil
}

func newPublisher(dial dialFunc, size int, log *logrus.Logger) (*Publisher, error) {
	sess, err := dial()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		dial:   dial,
		log:    log,
		queue:  make(chan Event, size),
		sess:   sess,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run(ctx)
	return p, nil
}

// Notify queues the event; it never waits on the broker
func (p *Publisher) Notify(_ context.Context, event Event) error {
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.queue <- event:
		return nil
	default:
		return ErrPublisherQueueFull
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case ev := <-p.queue:
			p.deliver(ctx, ev)
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

// drain flushes what is still queued at shutdown, bounded by drainTimeout
func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-p.queue:
			if ctx.Err() != nil {
				p.log.WithField("event_id", ev.EventID).Warn("Dropping event at shutdown")
				continue
			}
			p.deliver(ctx, ev)
		default:
			return
		}
	}
}

// deliver publishes one event with exponential backoff, redialing between attempts when needed
func (p *Publisher) deliver(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.WithField("event_id", event.EventID).WithError(err).Error("Failed to marshal event")
		return
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    event.EventID,
		Body:         body,
		Headers: amqp.Table{
			"event_type":    event.EventType,
			"event_version": event.EventVersion,
		},
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if !wait(ctx, backoff) {
				lastErr = ctx.Err()
				break
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		sess, err := p.session()
		if err != nil {
			lastErr = err
			p.log.WithField("attempt", attempt+1).WithError(err).Warn("RabbitMQ reconnect failed")
			continue
		}

		if err := sess.publish(ctx, event.EventType, msg); err != nil {
			lastErr = err
			if errors.Is(err, amqp.ErrClosed) || errors.Is(err, context.DeadlineExceeded) || !sess.healthy() {
				p.reset(sess)
			}
			p.log.WithField("attempt", attempt+1).WithError(err).Warn("Failed to publish event, retrying")
			continue
		}

		p.log.WithFields(logrus.Fields{
			"event_id":    event.EventID,
			"routing_key": event.EventType,
		}).Debug("Event published")
		return
	}

	p.log.WithFields(logrus.Fields{
		"event_id":   event.EventID,
		"event_type": event.EventType,
	}).WithError(lastErr).Error("Dropping event after retries")
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// session returns the open session, dialing a new one when the last was lost
func (p *Publisher) session() (session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess != nil && p.sess.healthy() {
		return p.sess, nil
	}
	if p.sess != nil {
		_ = p.sess.close()
		p.sess = nil
	}
	sess, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.sess = sess
	p.log.Info("Reconnected to RabbitMQ")
	return sess, nil
}

func (p *Publisher) reset(sess session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == sess {
		_ = sess.close()
		p.sess = nil
	}
}

// IsHealthy reports whether the publisher currently holds an open connection
func (p *Publisher) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess != nil && p.sess.healthy()
}

// Close stops the delivery loop after flushing queued events and closes the connection
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.sess != nil {
			err = p.sess.close()
			p.sess = nil
		}
		p.log.Info("Publisher closed")
	})
	return err
}

type amqpSession struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func dialSession(url, exchange string) (session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &amqpSession{conn: conn, channel: channel, exchange: exchange}, nil
}

func (s *amqpSession) publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	confirmation, err := s.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		s.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	acked, err := confirmation.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("confirmation: %w", err)
	}
	if !acked {
		return errNotAcked
	}
	return nil
}

func (s *amqpSession) healthy() bool {
	return !s.conn.IsClosed() && !s.channel.IsClosed()
}

func (s *amqpSession) close() error {
	if !s.channel.IsClosed() {
		_ = s.channel.Close()
	}
	if s.conn.IsClosed() {
		return nil
	}
	return s.conn.Close()
}
