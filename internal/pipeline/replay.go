package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"st-telemetry/gateway/internal/broadcast"
	"st-telemetry/gateway/internal/domain"
	"st-telemetry/gateway/internal/store"
)

// Replay republishes a recorded session to subscribers, pacing messages by
// the original timestamps divided by speed. Nothing is re-persisted and no
// alerts are re-evaluated; the session's events were recorded when it ran.
func Replay(
	ctx context.Context,
	st store.Store,
	b *broadcast.Broadcaster,
	sessionID string,
	speed float64,
	logger *slog.Logger,
) error {
	if speed <= 0 {
		speed = 1.0
	}

	readings, err := st.QueryRange(ctx, sessionID, nil, nil)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if len(readings) == 0 {
		return fmt.Errorf("session %s has no readings", sessionID)
	}

	logger.Info("replay started",
		"session", sessionID, "readings", len(readings), "speed", speed)

	prev := readings[0].Timestamp
	for _, r := range readings {
		if gap := r.Timestamp.Sub(prev); gap > 0 {
			select {
			case <-time.After(time.Duration(float64(gap) / speed)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		prev = r.Timestamp

		b.Publish(domain.EnrichReading(r, nil))
	}

	logger.Info("replay finished", "session", sessionID)
	return nil
}
