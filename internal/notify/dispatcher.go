// Package notify delivers triggered-alert events to slow external channels
// off the sampling hot path.
package notify

import (
	"context"
	"log/slog"
	"time"

	"st-telemetry/gateway/internal/domain"
	"st-telemetry/gateway/internal/metrics"
)

const (
	// DefaultQueueSize bounds the dispatch backlog.
	DefaultQueueSize = 1000

	// failureBackoff is how long the worker pauses after a failed
	// delivery, so a persistently broken endpoint is not hot-looped.
	failureBackoff = 5 * time.Second

	// drainTimeout bounds the shutdown drain of the remaining queue.
	drainTimeout = 2 * time.Second
)

// Channel is one delivery target (webhook endpoint, redis pub/sub, log).
type Channel interface {
	Name() string
	Deliver(ctx context.Context, e domain.AlertEvent) error
}

// Dispatcher accepts events on a bounded queue and delivers them from a
// single background worker. Delivery is best effort, at most once: a full
// queue drops the event, a failed delivery is logged and abandoned.
type Dispatcher struct {
	queue     chan domain.AlertEvent
	channels  []Channel
	logger    *slog.Logger
	backoff   time.Duration
	drainWait time.Duration
}

func NewDispatcher(queueSize int, channels []Channel, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		queue:     make(chan domain.AlertEvent, queueSize),
		channels:  channels,
		logger:    logger,
		backoff:   failureBackoff,
		drainWait: drainTimeout,
	}
}

// Submit enqueues an event without blocking. When the queue is full the
// event is dropped and the drop is logged; the producer is never stalled.
func (d *Dispatcher) Submit(e domain.AlertEvent) {
	select {
	case d.queue <- e:
		metrics.NotificationsQueued.Add(1)
	default:
		metrics.NotificationsDropped.Add(1)
		d.logger.Warn("notification queue full, dropping event",
			"rule", e.RuleName, "pid", e.PID)
	}
}

// Run drains the queue one event at a time until ctx is cancelled, then
// performs a bounded final drain of whatever is still queued and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			if err := d.deliver(ctx, e); err != nil {
				select {
				case <-time.After(d.backoff):
				case <-ctx.Done():
				}
			}

		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

// drain delivers queued events under a fixed deadline. Events still queued
// when the deadline passes are dropped, with the same log and counter as a
// drop at submission, so shutdown losses stay visible.
func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.drainWait)
	defer cancel()

	for {
		select {
		case e := <-d.queue:
			if ctx.Err() != nil {
				metrics.NotificationsDropped.Add(1)
				d.logger.Warn("drain deadline passed, dropping event",
					"rule", e.RuleName, "pid", e.PID)
				continue
			}
			_ = d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e domain.AlertEvent) error {
	var firstErr error
	for _, ch := range d.channels {
		if err := ch.Deliver(ctx, e); err != nil {
			metrics.NotificationFailures.Add(1)
			d.logger.Error("notification delivery failed",
				"channel", ch.Name(), "rule", e.RuleName, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.NotificationsSent.Add(1)
	}
	return firstErr
}
