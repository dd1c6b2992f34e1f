package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10
)

func dial(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return conn, ch, nil
}

// Publisher is a Submitter that hands tasks to a durable RabbitMQ queue.
type Publisher struct {
	url   string
	queue string
	log   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, queue string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{url: url, queue: queue, log: log}
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connectLocked() error {
	conn, ch, err := dial(p.url, p.queue)
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch
	p.log.Info("publisher connected to RabbitMQ", "queue", p.queue)
	return nil
}

func (p *Publisher) Submit(ctx context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		if p.conn != nil {
			p.conn.Close()
		}
		if err := p.connectLocked(); err != nil {
			return err
		}
	}
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    t.ID,
			Type:         t.Kind,
			Timestamp:    t.CreatedAt,
			Body:         body,
		})
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}

// Consumer reads tasks from RabbitMQ and runs them on a fixed set of
// workers, reconnecting when the broker drops the connection.
type Consumer struct {
	url      string
	queue    string
	workers  int
	prefetch int
	h        Handler
	log      *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewConsumer(url, queue string, workers int, h Handler, log *slog.Logger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{url: url, queue: queue, workers: workers, prefetch: workers * 2, h: h, log: log}
}

func (c *Consumer) connect() error {
	conn, ch, err := dial(c.url, c.queue)
	if err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.log.Info("connected to RabbitMQ", "queue", c.queue)
	return nil
}

// Run consumes until ctx is cancelled. A dropped connection is retried up
// to maxReconnectAttempts times before Run gives up.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.close()

	if err := c.connect(); err != nil {
		return err
	}
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Error("RabbitMQ connection lost", "err", err)
		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *Consumer) reconnect(ctx context.Context) error {
	c.close()
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		c.log.Info("attempting to reconnect to RabbitMQ", "attempt", attempt)
		if err := c.connect(); err == nil {
			return nil
		}

		delay := reconnectDelay * time.Duration(attempt)
		c.log.Warn("reconnection failed, retrying", "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.New("max reconnection attempts reached")
}

func (c *Consumer) consume(ctx context.Context) error {
	c.mu.RLock()
	channel := c.channel
	conn := c.conn
	c.mu.RUnlock()
	if channel == nil {
		return errors.New("channel is not initialized")
	}

	msgs, err := channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	c.log.Info("starting consumer workers", "workers", c.workers)
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(wctx, msgs, id)
		}(i)
	}

	var cause error
	select {
	case <-ctx.Done():
	case amqpErr := <-closed:
		if amqpErr != nil {
			cause = amqpErr
		} else {
			cause = amqp.ErrClosed
		}
	}
	cancel()
	wg.Wait()
	return cause
}

func (c *Consumer) worker(ctx context.Context, msgs <-chan amqp.Delivery, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.log.Warn("message channel closed", "worker_id", workerID)
				return
			}
			c.process(ctx, msg, workerID)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg amqp.Delivery, workerID int) {
	var t Task
	if err := json.Unmarshal(msg.Body, &t); err != nil || t.Kind == "" {
		c.log.Error("failed to unmarshal task", "worker_id", workerID, "err", err, "body", string(msg.Body))
		// Reject and don't requeue malformed messages
		_ = msg.Nack(false, false)
		return
	}

	// Not started yet, so another worker may take it.
	if ctx.Err() != nil {
		_ = msg.Nack(false, true)
		return
	}

	tctx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()
	if err := c.h.Handle(tctx, t); err != nil {
		// A handler that ran owns its failure, compensation included.
		c.log.Warn("task dropped after handler error", "worker_id", workerID, "task_id", t.ID, "err", err)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

func (c *Consumer) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
