// Package dispatch drains the event queue, translates events through the
// parser registry, and delivers the resulting messages to the chat.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Enriquefft/webhook-funnel/internal/gateway"
	"github.com/Enriquefft/webhook-funnel/internal/logging"
	"github.com/Enriquefft/webhook-funnel/internal/message"
	"github.com/Enriquefft/webhook-funnel/internal/metrics"
	"github.com/Enriquefft/webhook-funnel/internal/parser"
	"github.com/Enriquefft/webhook-funnel/internal/queue"
)

const (
	DefaultPollInterval    = time.Second
	DefaultDeliveryTimeout = 10 * time.Second
)

// State is the loop's position in its idle/draining cycle.
type State int32

const (
	StateIdle State = iota
	StateDraining
)

func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

// Config configures a Loop.
type Config struct {
	Ship string // destination identity
	Chat string // destination channel

	// PollInterval bounds each wait on an empty queue.
	PollInterval time.Duration
	// DeliveryTimeout bounds each chat Send call.
	DeliveryTimeout time.Duration

	Queue    *queue.Queue
	Registry *parser.Registry
	Client   gateway.ChatClient
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Loop is the single consumer of the event queue. It owns the chat client
// for its lifetime.
type Loop struct {
	ship            string
	chat            string
	pollInterval    time.Duration
	deliveryTimeout time.Duration

	queue    *queue.Queue
	registry *parser.Registry
	client   gateway.ChatClient
	metrics  *metrics.Metrics
	logger   *slog.Logger

	state atomic.Int32
}

// New creates a dispatch loop.
func New(cfg Config) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	return &Loop{
		ship:            cfg.Ship,
		chat:            cfg.Chat,
		pollInterval:    cfg.PollInterval,
		deliveryTimeout: cfg.DeliveryTimeout,
		queue:           cfg.Queue,
		registry:        cfg.Registry,
		client:          cfg.Client,
		metrics:         cfg.Metrics,
		logger:          logging.Default(cfg.Logger).With("component", "dispatch"),
	}
}

// State returns the current loop state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Run drains the queue until ctx is cancelled or the queue is closed and
// empty. An empty queue is waited on for at most PollInterval per pass.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("dispatch loop started",
		"ship", l.ship, "chat", l.chat, "parsers", l.registry.Names())

	for {
		l.state.Store(int32(StateIdle))

		ev, err := l.queue.Pop(ctx, l.pollInterval)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrEmpty):
			continue
		case errors.Is(err, queue.ErrClosed):
			l.logger.Info("queue closed, dispatch loop stopping")
			return nil
		default:
			l.logger.Info("dispatch loop stopping")
			return err
		}

		l.state.Store(int32(StateDraining))
		l.metrics.SetQueueDepth(l.queue.Len())
		l.Process(ctx, ev)
	}
}

// Process translates a single event and delivers its messages in order.
// Events no parser matches are forwarded verbatim as one text message.
func (l *Loop) Process(ctx context.Context, ev queue.Event) {
	log := l.logger.With("event", ev.ID)

	msgs, ok := l.translate(ev)
	if !ok {
		log.Warn("no parser matched, forwarding raw payload", "source", ev.Source, "bytes", len(ev.Body))
		l.metrics.Fallback()
		msgs = []message.Message{message.TextMessage(ev.Body)}
	}

	failed := 0
	for i, msg := range msgs {
		if err := l.deliver(ctx, msg); err != nil {
			failed++
			log.Error("chat delivery failed", "index", i, "error", err)
		}
	}

	log.Debug("event dispatched", "messages", len(msgs), "failed", failed)
}

func (l *Loop) translate(ev queue.Event) ([]message.Message, bool) {
	if ev.Source != "" {
		msgs, ok := l.registry.DispatchNamed(ev.Body, ev.Source)
		if ok {
			l.metrics.Parsed(ev.Source)
		}
		return msgs, ok
	}
	msgs, ok := l.registry.DispatchAny(ev.Body)
	if ok {
		l.metrics.Parsed("any")
	}
	return msgs, ok
}

func (l *Loop) deliver(ctx context.Context, msg message.Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, l.deliveryTimeout)
	defer cancel()

	start := time.Now()
	err := l.client.Send(sendCtx, l.ship, l.chat, msg)
	l.metrics.Delivered(time.Since(start).Seconds(), err)
	return err
}
