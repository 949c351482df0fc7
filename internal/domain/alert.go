package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownCondition reports a condition string outside the closed set.
var ErrUnknownCondition = errors.New("unknown alert condition")

// Condition is a threshold comparison operator. The set is closed: anything
// outside these six values is a configuration error rejected at rule load.
//
// eq and neq compare float64 values exactly, with no tolerance. On real
// sensor data with noise they are almost always never-true or always-true;
// that behavior is kept deliberately.
type Condition string

const (
	ConditionGT  Condition = "gt"
	ConditionGTE Condition = "gte"
	ConditionLT  Condition = "lt"
	ConditionLTE Condition = "lte"
	ConditionEQ  Condition = "eq"
	ConditionNEQ Condition = "neq"
)

// ParseCondition validates a condition string from configuration.
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(s); c {
	case ConditionGT, ConditionGTE, ConditionLT, ConditionLTE, ConditionEQ, ConditionNEQ:
		return c, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownCondition, s)
	}
}

// Holds reports whether value compared against threshold satisfies the
// condition. Unknown conditions never hold; they are filtered out at load.
func (c Condition) Holds(value, threshold float64) bool {
	switch c {
	case ConditionGT:
		return value > threshold
	case ConditionGTE:
		return value >= threshold
	case ConditionLT:
		return value < threshold
	case ConditionLTE:
		return value <= threshold
	case ConditionEQ:
		return value == threshold
	case ConditionNEQ:
		return value != threshold
	default:
		return false
	}
}

// AlertRule is a configured threshold bound to one PID. Rules are immutable
// value objects within an evaluation pass; changing one means reloading the
// whole set into the engine.
type AlertRule struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	PID       string    `json:"pid"`
	Condition Condition `json:"condition"`
	Threshold float64   `json:"threshold"`
	Enabled   bool      `json:"enabled"`
	Notify    bool      `json:"notify"`
}

// AlertEvent records one rule evaluating true against one reading. A reading
// that stays past threshold for N consecutive samples produces N events;
// there is no edge or hysteresis suppression.
type AlertEvent struct {
	RuleID    int64     `json:"rule_id"`
	RuleName  string    `json:"name"`
	SessionID string    `json:"session_id"`
	PID       string    `json:"pid"`
	Value     float64   `json:"value"`
	Condition Condition `json:"condition"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// Notify carries the triggering rule's notify flag to the pipeline;
	// it is not part of the broadcast or stored shape.
	Notify bool `json:"-"`
}
