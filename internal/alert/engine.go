// Package alert evaluates readings against a loaded set of threshold rules.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"st-telemetry/gateway/internal/domain"
	"st-telemetry/gateway/internal/metrics"
)

// HistorySink receives every triggered event for durable alert history.
// The store satisfies this.
type HistorySink interface {
	LogAlert(ctx context.Context, e domain.AlertEvent) error
}

// Engine holds a point-in-time snapshot of alert rules and evaluates readings
// against it. Load replaces the snapshot atomically, so an evaluation in
// flight sees either the old set or the new one, never a mix. The engine
// keeps no state between evaluations: a value that stays past threshold for
// N samples triggers N events.
type Engine struct {
	sink   HistorySink
	logger *slog.Logger
	rules  atomic.Pointer[[]domain.AlertRule]
}

func NewEngine(sink HistorySink, logger *slog.Logger) *Engine {
	e := &Engine{sink: sink, logger: logger}
	empty := []domain.AlertRule{}
	e.rules.Store(&empty)
	return e
}

// Load replaces the active rule set. Rules with an unknown condition are
// excluded and reported here, once, rather than per reading; the remaining
// rules are still loaded. Safe to call concurrently with Evaluate.
func (e *Engine) Load(rules []domain.AlertRule) error {
	accepted := make([]domain.AlertRule, 0, len(rules))
	var errs []error
	for _, r := range rules {
		if _, err := domain.ParseCondition(string(r.Condition)); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.Name, err))
			continue
		}
		accepted = append(accepted, r)
	}
	e.rules.Store(&accepted)
	return errors.Join(errs...)
}

// Rules returns the current snapshot. The slice must not be mutated.
func (e *Engine) Rules() []domain.AlertRule {
	return *e.rules.Load()
}

// Evaluate applies every enabled rule bound to the reading's PID and returns
// one event per rule whose condition holds, in rule order. Each event is
// also written to the history sink; a sink failure is logged and does not
// suppress the event.
func (e *Engine) Evaluate(ctx context.Context, r domain.Reading) []domain.AlertEvent {
	rules := *e.rules.Load()

	var events []domain.AlertEvent
	for _, rule := range rules {
		if !rule.Enabled || rule.PID != r.PID {
			continue
		}
		if !rule.Condition.Holds(r.Value, rule.Threshold) {
			continue
		}

		event := domain.AlertEvent{
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			SessionID: r.SessionID,
			PID:       r.PID,
			Value:     r.Value,
			Condition: rule.Condition,
			Threshold: rule.Threshold,
			Message: fmt.Sprintf("Alert %q: %s = %g %s %g",
				rule.Name, r.PID, r.Value, rule.Condition, rule.Threshold),
			Timestamp: time.Now(),
			Notify:    rule.Notify,
		}

		if err := e.sink.LogAlert(ctx, event); err != nil {
			e.logger.Error("alert history write failed",
				"rule", rule.Name, "pid", r.PID, "error", err)
		}
		metrics.AlertsTriggered.Add(1)
		events = append(events, event)
	}
	return events
}
