package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/lab-services/pkg/metrics"
)

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	// Retry delays for a single event.
	initialRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 2 * time.Second

	// Attempts per event before it is dropped.
	maxPushAttempts = 5

	// Upper bound on delivering one event, retries included.
	publishTimeout = 10 * time.Second

	defaultBufferSize = 256
)

var (
	errEmptyQueue         = errors.New("queue name cannot be empty")
	errEmptyURL           = errors.New("rabbitmq URL cannot be empty")
	errShutdown           = errors.New("client is shutting down")
	errMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// Config holds the configuration for a Client.
type Config struct {
	// URL is the AMQP connection string.
	URL string
	// QueueName receives every event.
	QueueName string
	// Logger is required.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metrics.EventsMetrics
	// BufferSize is the number of events held while the broker is unreachable.
	BufferSize int
}

// Client is a RabbitMQ publisher that keeps its connection alive in the
// background and delivers events from a bounded queue with publisher confirms.
type Client struct {
	m               sync.Mutex
	logger          *slog.Logger
	metrics         *metrics.EventsMetrics
	queueName       string
	connection      *amqp.Connection
	channel         *amqp.Channel
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	isReady         bool
	closed          bool

	queue    chan Event
	done     chan struct{}
	loopDone chan struct{}
}

// NewClient creates a client and starts connecting and publishing in the background.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errEmptyURL
	}
	if cfg.QueueName == "" {
		return nil, errEmptyQueue
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}

	c := &Client{
		logger:    cfg.Logger.With(slog.String("queue", cfg.QueueName)),
		metrics:   cfg.Metrics,
		queueName: cfg.QueueName,
		queue:     make(chan Event, cfg.BufferSize),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}

	go c.handleReconnect(cfg.URL)
	go c.publishLoop()

	return c, nil
}

// Ready reports whether the client currently holds an initialized channel.
func (c *Client) Ready() bool {
	c.m.Lock()
	defer c.m.Unlock()
	return c.isReady
}

// Publish implements Publisher.
func (c *Client) Publish(ev Event) {
	c.m.Lock()
	closed := c.closed
	c.m.Unlock()

	if closed {
		c.drop("closed")
		return
	}

	select {
	case c.queue <- ev:
	default:
		c.logger.Warn("event queue full, dropping event", "type", ev.Type, "subject", ev.Subject)
		c.drop("queue_full")
	}
}

// Close stops the publishing loop and closes the channel and connection.
// Events still queued are dropped. Close is idempotent.
func (c *Client) Close() error {
	c.m.Lock()
	if c.closed {
		c.m.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.m.Unlock()

	<-c.loopDone

	c.m.Lock()
	defer c.m.Unlock()

	c.isReady = false
	c.setConnected(false)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("channel close: %w", err))
		}
	}
	if c.connection != nil {
		if err := c.connection.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("connection close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// handleReconnect waits for a connection error on notifyConnClose
// and then continuously attempts to reconnect.
func (c *Client) handleReconnect(addr string) {
	for {
		c.m.Lock()
		c.isReady = false
		c.m.Unlock()

		c.logger.Info("attempting to connect")

		conn, err := c.connect(addr)
		if err != nil {
			c.logger.Error("failed to connect, retrying", "error", err, "delay", reconnectDelay)

			select {
			case <-c.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := c.handleReInit(conn); done {
			return
		}
	}
}

// connect creates a new AMQP connection. A connection that completes after
// Close is discarded.
func (c *Client) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		c.setConnected(false)
		return nil, err
	}

	c.m.Lock()
	defer c.m.Unlock()

	if c.closed {
		_ = conn.Close()
		return nil, errShutdown
	}

	c.connection = conn
	c.notifyConnClose = make(chan *amqp.Error, 1)
	conn.NotifyClose(c.notifyConnClose)
	c.logger.Info("connected")

	return conn, nil
}

// handleReInit waits for a channel error and then re-initializes the channel.
// It returns true when the client is shutting down.
func (c *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		c.m.Lock()
		c.isReady = false
		connClose := c.notifyConnClose
		c.m.Unlock()

		if err := c.init(conn); err != nil {
			c.logger.Error("failed to initialize channel, retrying", "error", err)

			select {
			case <-c.done:
				return true
			case <-connClose:
				c.logger.Info("connection closed, reconnecting")
				c.setConnected(false)
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		c.m.Lock()
		chanClose := c.notifyChanClose
		c.m.Unlock()

		select {
		case <-c.done:
			return true
		case <-connClose:
			c.logger.Info("connection closed, reconnecting")
			c.setConnected(false)
			return false
		case <-chanClose:
			c.logger.Info("channel closed, re-running init")
		}
	}
}

// init opens a confirming channel and declares the queue.
func (c *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return err
	}

	_, err = ch.QueueDeclare(
		c.queueName,
		false, // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		_ = ch.Close()
		return err
	}

	c.m.Lock()
	if c.closed {
		c.m.Unlock()
		_ = ch.Close()
		return errShutdown
	}
	c.channel = ch
	c.notifyChanClose = make(chan *amqp.Error, 1)
	c.notifyConfirm = make(chan amqp.Confirmation, 1)
	ch.NotifyClose(c.notifyChanClose)
	ch.NotifyPublish(c.notifyConfirm)
	c.isReady = true
	c.m.Unlock()

	c.setConnected(true)
	c.logger.Info("client init done")

	return nil
}

// publishLoop delivers queued events one at a time until Close.
func (c *Client) publishLoop() {
	defer close(c.loopDone)

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.queue:
			c.deliver(ev)
		}
	}
}

func (c *Client) deliver(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		c.drop("marshal_error")
		return
	}

	var timer *prometheus.Timer
	if c.metrics != nil {
		timer = prometheus.NewTimer(c.metrics.PublishDuration.WithLabelValues(c.queueName))
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := c.push(ctx, body); err != nil {
		c.logger.Error("failed to publish event", "type", ev.Type, "subject", ev.Subject, "error", err)
		switch {
		case errors.Is(err, errShutdown):
			c.drop("closed")
		case errors.Is(err, context.DeadlineExceeded):
			c.drop("timeout")
		default:
			c.drop("max_retries_exceeded")
		}
		return
	}

	if timer != nil {
		timer.ObserveDuration()
	}
	if c.metrics != nil {
		c.metrics.Published.WithLabelValues(c.queueName).Inc()
	}
	c.logger.Debug("event published", "type", ev.Type, "subject", ev.Subject)
}

// push publishes body and waits for the broker confirmation, retrying with
// exponential backoff while the client reconnects.
func (c *Client) push(ctx context.Context, body []byte) error {
	delay := initialRetryDelay

	for attempt := 0; attempt < maxPushAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return errShutdown
			case <-time.After(delay):
			}
			delay = min(delay*2, maxRetryDelay)
		}

		c.m.Lock()
		ready, ch, confirms := c.isReady, c.channel, c.notifyConfirm
		c.m.Unlock()

		if !ready {
			c.logger.Debug("not connected, waiting for reconnection", "attempt", attempt, "delay", delay)
			continue
		}

		err := ch.PublishWithContext(
			ctx,
			"",          // Exchange
			c.queueName, // Routing key
			false,       // Mandatory
			false,       // Immediate
			amqp.Publishing{
				ContentType: "application/json",
				Timestamp:   time.Now().UTC(),
				Body:        body,
			},
		)
		if err != nil {
			c.logger.Warn("publish failed, retrying", "error", err, "attempt", attempt)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return errShutdown
		case confirm, ok := <-confirms:
			if ok && confirm.Ack {
				return nil
			}
			c.logger.Warn("publish not acknowledged, retrying", "delivery_tag", confirm.DeliveryTag)
		}
	}

	return errMaxRetriesExceeded
}

func (c *Client) drop(reason string) {
	if c.metrics != nil {
		c.metrics.Dropped.WithLabelValues(c.queueName, reason).Inc()
	}
}

func (c *Client) setConnected(up bool) {
	if c.metrics == nil {
		return
	}
	if up {
		c.metrics.ConnectionStatus.Set(1)
		return
	}
	c.metrics.ConnectionStatus.Set(0)
}
