// Package source produces batches of telemetry readings for the pipeline.
package source

import (
	"context"

	"st-telemetry/gateway/internal/domain"
)

// Source produces a conceptually infinite sequence of reading batches at a
// target rate. The returned channel is closed when ctx is cancelled or the
// source is exhausted; a source is restarted only by recreating it.
//
// Readings are emitted without a session id; the pipeline stamps the current
// session before anything downstream sees them.
type Source interface {
	Stream(ctx context.Context, rateHz float64) <-chan []domain.Reading
}
