package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"st-telemetry/gateway/internal/alert"
	"st-telemetry/gateway/internal/broadcast"
	"st-telemetry/gateway/internal/domain"
	"st-telemetry/gateway/internal/notify"
	"st-telemetry/gateway/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedSource emits its batches back to back and closes the stream.
type scriptedSource struct {
	batches [][]domain.Reading
}

func (s *scriptedSource) Stream(ctx context.Context, rateHz float64) <-chan []domain.Reading {
	out := make(chan []domain.Reading)
	go func() {
		defer close(out)
		for _, b := range s.batches {
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// flakyStore fails every reading insert while leaving the rest of the
// store working.
type flakyStore struct {
	*store.MemoryStore
}

func (f *flakyStore) InsertReading(ctx context.Context, r domain.Reading) error {
	return errors.New("disk full")
}

func boostBatches(values ...float64) [][]domain.Reading {
	ts := time.Now()
	batches := make([][]domain.Reading, len(values))
	for i, v := range values {
		batches[i] = []domain.Reading{{
			PID: "BOOST", Value: v, Unit: "PSI", Timestamp: ts.Add(time.Duration(i) * time.Second),
		}}
	}
	return batches
}

func newTestEngine(t *testing.T, st alert.HistorySink) *alert.Engine {
	t.Helper()
	e := alert.NewEngine(st, testLogger())
	require.NoError(t, e.Load([]domain.AlertRule{{
		ID: 1, Name: "Overboost", PID: "BOOST",
		Condition: domain.ConditionGT, Threshold: 20, Enabled: true, Notify: true,
	}}))
	return e
}

func TestPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	engine := newTestEngine(t, mem)

	dispatcher := notify.NewDispatcher(10, nil, testLogger())
	broadcaster := broadcast.New(10, testLogger())
	defer broadcaster.Close()
	sub := broadcaster.Register()

	src := &scriptedSource{batches: boostBatches(18, 22, 22)}
	p := New(src, mem, engine, dispatcher, broadcaster, 10,
		Options{VehicleInfo: "test rig"}, testLogger())

	require.NoError(t, p.Run(ctx))

	// session was created and ended
	sessions, err := mem.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, p.SessionID(), sessions[0].ID)
	assert.Equal(t, "test rig", sessions[0].VehicleInfo)
	assert.NotNil(t, sessions[0].EndTime)

	// all readings persisted under the pipeline's session id
	readings, err := mem.QueryRange(ctx, p.SessionID(), nil, nil)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	for _, r := range readings {
		assert.Equal(t, p.SessionID(), r.SessionID)
	}

	// subscriber saw every reading, with alerts only on the two over threshold
	var alertCounts []int
	for i := 0; i < 3; i++ {
		select {
		case payload := <-sub.C():
			alertCounts = append(alertCounts, len(payload.Alerts))
		case <-time.After(time.Second):
			t.Fatalf("payload %d never arrived", i)
		}
	}
	assert.Equal(t, []int{0, 1, 1}, alertCounts)

	// both triggers reached durable history
	history, err := mem.ListAlertHistory(ctx, p.SessionID(), 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestPipeline_StoreFailureStillBroadcasts(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	flaky := &flakyStore{MemoryStore: mem}
	engine := newTestEngine(t, mem)

	dispatcher := notify.NewDispatcher(10, nil, testLogger())
	broadcaster := broadcast.New(10, testLogger())
	defer broadcaster.Close()
	sub := broadcaster.Register()

	src := &scriptedSource{batches: boostBatches(22)}
	p := New(src, flaky, engine, dispatcher, broadcaster, 10, Options{}, testLogger())

	require.NoError(t, p.Run(ctx))

	select {
	case payload := <-sub.C():
		assert.Equal(t, "BOOST", payload.PID)
		assert.Len(t, payload.Alerts, 1, "evaluation runs even when the write failed")
	case <-time.After(time.Second):
		t.Fatal("reading was not broadcast after store failure")
	}
}

func TestPipeline_CancelEndsSession(t *testing.T) {
	mem := store.NewMemoryStore()
	engine := newTestEngine(t, mem)
	dispatcher := notify.NewDispatcher(10, nil, testLogger())
	broadcaster := broadcast.New(10, testLogger())
	defer broadcaster.Close()

	long := &scriptedSource{batches: boostBatches(make([]float64, 1000)...)}
	p := New(long, mem, engine, dispatcher, broadcaster, 10, Options{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sessions, err := mem.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotNil(t, sessions[0].EndTime, "session must be ended on the way out")
}

func TestReplay_PublishesWithoutAlerts(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()

	ts := time.Now()
	require.NoError(t, mem.InsertReadings(ctx, []domain.Reading{
		{SessionID: "rec", PID: "BOOST", Value: 22, Timestamp: ts},
		{SessionID: "rec", PID: "BOOST", Value: 23, Timestamp: ts.Add(10 * time.Millisecond)},
	}))

	broadcaster := broadcast.New(10, testLogger())
	defer broadcaster.Close()
	sub := broadcaster.Register()

	require.NoError(t, Replay(ctx, mem, broadcaster, "rec", 100, testLogger()))

	for i := 0; i < 2; i++ {
		select {
		case payload := <-sub.C():
			assert.Empty(t, payload.Alerts, "replay never re-evaluates rules")
			assert.Equal(t, "rec", payload.SessionID)
		default:
			t.Fatalf("replayed payload %d missing", i)
		}
	}
}

func TestReplay_EmptySessionIsError(t *testing.T) {
	broadcaster := broadcast.New(10, testLogger())
	defer broadcaster.Close()

	err := Replay(context.Background(), store.NewMemoryStore(), broadcaster,
		"missing", 1, testLogger())
	assert.Error(t, err)
}
