package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/events"
)

var (
	// ErrQueueFull is returned to the dispatcher when a delivery cannot be queued.
	ErrQueueFull = errors.New("notification queue full")
	// ErrWorkerStopped is returned for events published after Stop.
	ErrWorkerStopped = errors.New("notification worker stopped")
)

type delivery struct {
	ctx     context.Context
	handler events.EventHandler
	event   events.Event
}

// NotificationWorker is an events.Dispatcher that runs subscribed handlers on a
// background goroutine, so mail delivery stays off the request path. Publish is
// forwarded to the wrapped dispatcher unchanged.
type NotificationWorker struct {
	inner  events.Dispatcher
	queue  chan delivery
	logger *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewNotificationWorker wraps inner with a queue of the given size.
func NewNotificationWorker(inner events.Dispatcher, buffer int, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1
	}
	return &NotificationWorker{
		inner:  inner,
		queue:  make(chan delivery, buffer),
		logger: logger,
	}
}

// Publish forwards to the wrapped dispatcher.
func (w *NotificationWorker) Publish(ctx context.Context, event events.Event) error {
	return w.inner.Publish(ctx, event)
}

// Subscribe registers handler so that it runs on the worker goroutine.
func (w *NotificationWorker) Subscribe(eventType events.EventType, handler events.EventHandler) {
	w.inner.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		return w.enqueue(delivery{ctx: context.WithoutCancel(ctx), handler: handler, event: event})
	})
}

func (w *NotificationWorker) enqueue(d delivery) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrWorkerStopped
	}
	select {
	case w.queue <- d:
		return nil
	default:
		w.logger.Warn("notification dropped",
			zap.String("event_type", string(d.event.Type)),
			zap.String("ticket_id", d.event.TicketID))
		return ErrQueueFull
	}
}

// Start launches the delivery goroutine.
func (w *NotificationWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for d := range w.queue {
			if err := d.handler(d.ctx, d.event); err != nil {
				w.logger.Warn("notification failed",
					zap.String("event_type", string(d.event.Type)),
					zap.String("ticket_id", d.event.TicketID),
					zap.Error(err))
			}
		}
	}()
}

// Stop refuses new deliveries and waits for queued ones until ctx expires.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
