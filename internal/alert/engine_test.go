package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"st-telemetry/gateway/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink captures logged events, optionally failing every write.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.AlertEvent
	fail   bool
}

func (s *recordingSink) LogAlert(ctx context.Context, e domain.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func reading(pid string, value float64) domain.Reading {
	return domain.Reading{SessionID: "s1", PID: pid, Value: value, Unit: "PSI"}
}

func TestEvaluate_OneEventPerMatchingRule(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, discardLogger())
	e.Load([]domain.AlertRule{
		{ID: 1, Name: "Overboost", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 20, Enabled: true, Notify: true},
		{ID: 2, Name: "Boost warning", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 15, Enabled: true},
		{ID: 3, Name: "Oil temp", PID: "OIL_TEMP", Condition: domain.ConditionGT, Threshold: 250, Enabled: true},
	})

	events := e.Evaluate(context.Background(), reading("BOOST", 22))
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	// events come back in rule order
	if events[0].RuleID != 1 || events[1].RuleID != 2 {
		t.Errorf("event order = [%d %d], want [1 2]", events[0].RuleID, events[1].RuleID)
	}
	if !events[0].Notify {
		t.Error("event for rule 1 should carry Notify")
	}
	if events[1].Notify {
		t.Error("event for rule 2 should not carry Notify")
	}
	if sink.count() != 2 {
		t.Errorf("sink got %d events, want 2", sink.count())
	}
}

func TestEvaluate_NoRetriggerSuppression(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, discardLogger())
	e.Load([]domain.AlertRule{
		{ID: 1, Name: "Overboost", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 20, Enabled: true},
	})

	// a value that stays past threshold fires once per sample
	total := 0
	for i := 0; i < 5; i++ {
		total += len(e.Evaluate(context.Background(), reading("BOOST", 21)))
	}
	if total != 5 {
		t.Errorf("events over 5 samples = %d, want 5", total)
	}
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	e := NewEngine(&recordingSink{}, discardLogger())
	e.Load([]domain.AlertRule{
		{ID: 1, Name: "Overboost", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 20, Enabled: false},
	})

	if events := e.Evaluate(context.Background(), reading("BOOST", 25)); len(events) != 0 {
		t.Errorf("disabled rule produced %d events", len(events))
	}
}

func TestEvaluate_MessageFormat(t *testing.T) {
	e := NewEngine(&recordingSink{}, discardLogger())
	e.Load([]domain.AlertRule{
		{ID: 1, Name: "Overboost", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 20, Enabled: true},
	})

	events := e.Evaluate(context.Background(), reading("BOOST", 22.5))
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	want := `Alert "Overboost": BOOST = 22.5 gt 20`
	if events[0].Message != want {
		t.Errorf("Message = %q, want %q", events[0].Message, want)
	}
}

func TestLoad_RejectsUnknownCondition(t *testing.T) {
	e := NewEngine(&recordingSink{}, discardLogger())
	err := e.Load([]domain.AlertRule{
		{ID: 1, Name: "good", PID: "RPM", Condition: domain.ConditionGT, Threshold: 6000, Enabled: true},
		{ID: 2, Name: "bad", PID: "RPM", Condition: "between", Threshold: 1, Enabled: true},
	})
	if err == nil {
		t.Fatal("Load should report the rejected rule")
	}
	if len(e.Rules()) != 1 {
		t.Errorf("loaded rules = %d, want 1", len(e.Rules()))
	}
	if e.Rules()[0].Name != "good" {
		t.Errorf("kept rule = %q, want %q", e.Rules()[0].Name, "good")
	}
}

func TestEvaluate_SinkFailureKeepsEvent(t *testing.T) {
	sink := &recordingSink{fail: true}
	e := NewEngine(sink, discardLogger())
	e.Load([]domain.AlertRule{
		{ID: 1, Name: "Overboost", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 20, Enabled: true},
	})

	events := e.Evaluate(context.Background(), reading("BOOST", 22))
	if len(events) != 1 {
		t.Fatalf("history failure must not suppress the event, got %d", len(events))
	}
}

func TestLoad_SwapsSnapshotForNewEvaluations(t *testing.T) {
	e := NewEngine(&recordingSink{}, discardLogger())
	e.Load([]domain.AlertRule{
		{ID: 1, Name: "v1", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 20, Enabled: true},
	})
	if got := len(e.Evaluate(context.Background(), reading("BOOST", 21))); got != 1 {
		t.Fatalf("before reload: events = %d, want 1", got)
	}

	e.Load(nil)
	if got := len(e.Evaluate(context.Background(), reading("BOOST", 21))); got != 0 {
		t.Errorf("after reload with empty set: events = %d, want 0", got)
	}
}

func TestLoadConcurrentWithEvaluate(t *testing.T) {
	e := NewEngine(&recordingSink{}, discardLogger())

	// two rule sets of different sizes; both match the reading, so any
	// evaluation must see exactly one set in full, never a mix
	setA := []domain.AlertRule{
		{ID: 1, Name: "a1", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 20, Enabled: true},
	}
	setB := []domain.AlertRule{
		{ID: 2, Name: "b1", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 20, Enabled: true},
		{ID: 3, Name: "b2", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 15, Enabled: true},
	}
	if err := e.Load(setA); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			if i%2 == 0 {
				e.Load(setB)
			} else {
				e.Load(setA)
			}
		}
	}()

	ctx := context.Background()
	for alive := true; alive; {
		select {
		case <-done:
			alive = false
		default:
		}
		n := len(e.Evaluate(ctx, reading("BOOST", 25)))
		if n != 1 && n != 2 {
			t.Fatalf("evaluation saw %d events, want 1 (set A) or 2 (set B)", n)
		}
	}
}

func ExampleEngine_Evaluate() {
	e := NewEngine(&recordingSink{}, discardLogger())
	e.Load([]domain.AlertRule{
		{ID: 1, Name: "Overboost", PID: "BOOST", Condition: domain.ConditionGT, Threshold: 20, Enabled: true},
	})
	events := e.Evaluate(context.Background(),
		domain.Reading{SessionID: "s1", PID: "BOOST", Value: 21.5})
	fmt.Println(events[0].Message)
	// Output: Alert "Overboost": BOOST = 21.5 gt 20
}
