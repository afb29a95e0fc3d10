package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/storesync/internal/core"
)

var (
	// ErrQueueFull is returned when the dispatcher cannot accept more work.
	ErrQueueFull = errors.New("notification queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatcher closed")
)

const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 10 * time.Second
)

// Dispatcher queues notifications and delivers them to a sink from a single
// worker goroutine, in submission order.
type Dispatcher struct {
	sink    core.Notifier
	queue   chan core.Notification
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher over sink.
func NewDispatcher(sink core.Notifier, queueSize int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan core.Notification, queueSize),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues n without blocking.
func (d *Dispatcher) Notify(ctx context.Context, n core.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sink.Notify(ctx, n); err != nil {
			d.logger.Warn("notification delivery failed",
				"batch_id", n.BatchID,
				"entity", n.Entity,
				"records", len(n.Records),
				"error", err,
			)
		}
		cancel()
	}
}

// Pending returns the number of queued notifications.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting notifications and waits for the queue to drain or
// ctx to end.
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
