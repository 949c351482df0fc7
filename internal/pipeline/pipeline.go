// Package pipeline drives the sampling loop: pull readings from the source,
// persist, evaluate alerts, dispatch notifications, broadcast.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"st-telemetry/gateway/internal/alert"
	"st-telemetry/gateway/internal/broadcast"
	"st-telemetry/gateway/internal/domain"
	"st-telemetry/gateway/internal/metrics"
	"st-telemetry/gateway/internal/notify"
	"st-telemetry/gateway/internal/source"
	"st-telemetry/gateway/internal/store"
)

// endSessionTimeout bounds the final session-end write after the run
// context is already cancelled.
const endSessionTimeout = 5 * time.Second

// Pipeline owns one session and processes every reading the source emits,
// in source order: persist, evaluate, notify, broadcast. It holds no per-PID
// state of its own; that lives in the engine and the store.
type Pipeline struct {
	src         source.Source
	store       store.Store
	engine      *alert.Engine
	dispatcher  *notify.Dispatcher
	broadcaster *broadcast.Broadcaster
	state       *StateWriter
	logger      *slog.Logger

	rateHz      float64
	vehicleInfo string
	sessionID   string
}

// Options carries the optional collaborators and tuning for a Pipeline.
type Options struct {
	// State is the latest-value cache writer; nil disables it.
	State *StateWriter

	// VehicleInfo is recorded on the session row.
	VehicleInfo string
}

func New(
	src source.Source,
	st store.Store,
	engine *alert.Engine,
	dispatcher *notify.Dispatcher,
	broadcaster *broadcast.Broadcaster,
	rateHz float64,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		src:         src,
		store:       st,
		engine:      engine,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		state:       opts.State,
		logger:      logger,
		rateHz:      rateHz,
		vehicleInfo: opts.VehicleInfo,
		sessionID:   uuid.NewString(),
	}
}

// SessionID returns the id of the session this pipeline run owns. The id is
// fixed at construction so transports can reference it before Run starts.
func (p *Pipeline) SessionID() string {
	return p.sessionID
}

// Run creates the session, consumes the source until ctx is cancelled, and
// ends the session on the way out. A failure to create the session is fatal
// and returned; every per-reading failure is logged and contained.
func (p *Pipeline) Run(ctx context.Context) error {
	sess := domain.Session{
		ID:          p.sessionID,
		StartTime:   time.Now(),
		VehicleInfo: p.vehicleInfo,
	}
	if err := p.store.CreateSession(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	p.logger.Info("session started", "session", p.sessionID, "rate_hz", p.rateHz)

	defer p.endSession()

	for batch := range p.src.Stream(ctx, p.rateHz) {
		for _, r := range batch {
			r.SessionID = p.sessionID
			p.process(ctx, r)
		}
	}
	return nil
}

// process runs one reading through persist → evaluate → notify → broadcast.
// The order is fixed: notification submission happens before publish, and a
// store failure still lets the reading flow downstream.
func (p *Pipeline) process(ctx context.Context, r domain.Reading) {
	metrics.ReadingsSampled.Add(1)

	if err := p.store.InsertReading(ctx, r); err != nil {
		metrics.StoreWriteFailures.Add(1)
		p.logger.Error("reading insert failed",
			"pid", r.PID, "session", r.SessionID, "error", err)
	}

	events := p.engine.Evaluate(ctx, r)
	for _, e := range events {
		if e.Notify {
			p.dispatcher.Submit(e)
		}
	}

	p.broadcaster.Publish(domain.EnrichReading(r, events))

	if p.state != nil {
		p.state.Submit(r)
	}
}

func (p *Pipeline) endSession() {
	ctx, cancel := context.WithTimeout(context.Background(), endSessionTimeout)
	defer cancel()
	if err := p.store.EndSession(ctx, p.sessionID, time.Now()); err != nil {
		p.logger.Error("end session failed", "session", p.sessionID, "error", err)
		return
	}
	p.logger.Info("session ended", "session", p.sessionID)
}
