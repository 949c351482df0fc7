// Package broadcast fans enriched readings out to live subscribers.
package broadcast

import (
	"log/slog"
	"sync"

	"st-telemetry/gateway/internal/domain"
	"st-telemetry/gateway/internal/metrics"
)

// DefaultQueueSize is the per-subscriber queue capacity used when the
// configured size is zero or negative.
const DefaultQueueSize = 100

// Subscriber is one consumer's bounded message queue. The channel is closed
// when the subscriber is unregistered, evicted, or the broadcaster shuts
// down, so a blocked consumer always observes termination.
type Subscriber struct {
	ch chan domain.BroadcastPayload
}

// C returns the subscriber's receive channel.
func (s *Subscriber) C() <-chan domain.BroadcastPayload {
	return s.ch
}

// Broadcaster owns the set of active subscribers. Publish never blocks: a
// subscriber whose queue is full is evicted on the spot rather than stalling
// or silently throttling the publisher.
type Broadcaster struct {
	mu        sync.Mutex
	subs      map[*Subscriber]struct{}
	queueSize int
	closed    bool
	logger    *slog.Logger
}

func New(queueSize int, logger *slog.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		subs:      make(map[*Subscriber]struct{}),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Register creates a subscriber with a queue of the configured capacity.
// After Close, the returned subscriber's channel is already closed.
func (b *Broadcaster) Register() *Subscriber {
	sub := &Subscriber{ch: make(chan domain.BroadcastPayload, b.queueSize)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unregister removes a subscriber and closes its channel. Idempotent.
func (b *Broadcaster) Unregister(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers the payload to every active subscriber with a
// non-blocking send. A full queue evicts that subscriber; the rest are
// unaffected. Worst case cost is one channel operation per subscriber.
func (b *Broadcaster) Publish(payload domain.BroadcastPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for sub := range b.subs {
		select {
		case sub.ch <- payload:
		default:
			// slow consumer: disconnect rather than throttle
			delete(b.subs, sub)
			close(sub.ch)
			metrics.SubscribersEvicted.Add(1)
			b.logger.Warn("subscriber evicted, queue full",
				"capacity", b.queueSize)
		}
	}
	metrics.BroadcastsPublished.Add(1)
}

// Count returns the number of active subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close evicts every subscriber and rejects future registrations.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
