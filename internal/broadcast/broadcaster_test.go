package broadcast

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"st-telemetry/gateway/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func payload(pid string, value float64) domain.BroadcastPayload {
	return domain.BroadcastPayload{
		Reading: domain.Reading{SessionID: "s1", PID: pid, Value: value},
		Alerts:  []domain.AlertEvent{},
	}
}

func TestPublish_FanOut(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()

	a := b.Register()
	c := b.Register()
	if b.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", b.Count())
	}

	b.Publish(payload("RPM", 850))

	for _, sub := range []*Subscriber{a, c} {
		select {
		case p := <-sub.C():
			if p.PID != "RPM" {
				t.Errorf("PID = %q, want RPM", p.PID)
			}
		default:
			t.Fatal("subscriber did not receive the payload")
		}
	}
}

func TestPublish_EvictsFullSubscriber(t *testing.T) {
	const capacity = 3
	b := New(capacity, testLogger())
	defer b.Close()

	slow := b.Register()
	healthy := b.Register()

	// fill slow's queue, draining healthy as a well-behaved consumer would
	for i := 0; i < capacity; i++ {
		b.Publish(payload("RPM", float64(i)))
		<-healthy.C()
	}

	// the capacity+1th publish evicts slow and closes its channel
	b.Publish(payload("RPM", 99))

	if b.Count() != 1 {
		t.Errorf("Count() = %d, want 1 after eviction", b.Count())
	}

	// healthy still gets the message
	select {
	case p := <-healthy.C():
		if p.Value != 99 {
			t.Errorf("healthy got value %g, want 99", p.Value)
		}
	default:
		t.Fatal("healthy subscriber missed the payload")
	}

	// slow drains its buffered messages, then observes close
	for i := 0; i < capacity; i++ {
		if _, ok := <-slow.C(); !ok {
			t.Fatalf("buffered message %d missing", i)
		}
	}
	if _, ok := <-slow.C(); ok {
		t.Error("evicted subscriber's channel should be closed")
	}
}

func TestPublish_ConcurrentWithSubscriberChurn(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()

	stop := make(chan struct{})
	var publishers sync.WaitGroup
	publishers.Add(1)
	go func() {
		defer publishers.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				b.Publish(payload("RPM", float64(i)))
			}
		}
	}()

	var churn sync.WaitGroup
	for g := 0; g < 4; g++ {
		churn.Add(1)
		go func() {
			defer churn.Done()
			for i := 0; i < 300; i++ {
				sub := b.Register()
				select {
				case <-sub.C():
				default:
				}
				b.Unregister(sub)
			}
		}()
	}

	churn.Wait()
	close(stop)
	publishers.Wait()

	if b.Count() != 0 {
		t.Errorf("Count() = %d after all subscribers left, want 0", b.Count())
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	b := New(1, testLogger())
	defer b.Close()

	sub := b.Register()
	b.Unregister(sub)
	b.Unregister(sub) // second call must not panic on the closed channel

	if b.Count() != 0 {
		t.Errorf("Count() = %d, want 0", b.Count())
	}
}

func TestClose_EvictsAllAndRejectsRegister(t *testing.T) {
	b := New(1, testLogger())
	sub := b.Register()

	b.Close()
	if _, ok := <-sub.C(); ok {
		t.Error("subscriber channel should be closed after Close")
	}

	late := b.Register()
	if _, ok := <-late.C(); ok {
		t.Error("post-Close Register should hand out a closed channel")
	}

	// publishing after close is a no-op
	b.Publish(payload("RPM", 1))
	b.Close()
}
