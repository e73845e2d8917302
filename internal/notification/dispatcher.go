package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DispatcherOptions bounds queueing and delivery retries.
type DispatcherOptions struct {
	Routes      Routes
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	SendTimeout time.Duration
}

// Dispatcher delivers notifications off the caller's path. Notify never
// blocks and never fails; delivery errors are only logged.
type Dispatcher struct {
	notifier Notifier
	opts     DispatcherOptions
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	done   chan struct{}
}

func NewDispatcher(notifier Notifier, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	d := &Dispatcher{
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		queue:    make(chan Message, opts.QueueSize),
		done:     make(chan struct{}),
	}
	go d.work()
	return d
}

// Notify enqueues an event. It is dropped, and logged, when the queue is full
// or the dispatcher is closed.
func (d *Dispatcher) Notify(kind string, payload map[string]any) {
	msg := NewMessage(kind, d.opts.Routes.Destination(kind), payload)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("notification dropped after close", slog.String("kind", kind))
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, dropping", slog.String("kind", kind))
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer close(d.done)
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.SendTimeout*time.Duration(d.opts.MaxAttempts))
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	if d.opts.RetryDelay > 0 {
		policy.InitialInterval = d.opts.RetryDelay
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		defer cancel()
		return struct{}{}, d.notifier.Send(sendCtx, msg)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(d.opts.MaxAttempts)))
	if err != nil {
		d.logger.Error("notification delivery failed",
			slog.String("kind", msg.Kind),
			slog.String("destination", msg.Destination),
			slog.Int("attempts", attempt),
			slog.Any("error", err))
	}
}
