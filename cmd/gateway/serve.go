package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"st-telemetry/gateway/internal/alert"
	"st-telemetry/gateway/internal/auth"
	"st-telemetry/gateway/internal/broadcast"
	"st-telemetry/gateway/internal/config"
	"st-telemetry/gateway/internal/notify"
	"st-telemetry/gateway/internal/pipeline"
	"st-telemetry/gateway/internal/source"
	"st-telemetry/gateway/internal/store"
	transport "st-telemetry/gateway/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sampling pipeline and the API server",
	Long: `Start a new telemetry session and run until interrupted.

The pipeline samples the configured source at SAMPLE_RATE_HZ, persists
every reading, evaluates alert rules, dispatches notifications, and
broadcasts enriched readings to /ws/telemetry subscribers.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("rules", "", "YAML file of alert rules to seed at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var redisStore *store.RedisStore
	if cfg.RedisAddr != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisStore.Close()
	}

	// alert engine, seeded from the store (and optionally a rules file)
	engine := alert.NewEngine(st, logger)
	rulesFile, _ := cmd.Flags().GetString("rules")
	if rulesFile != "" {
		if err := seedRules(ctx, st, rulesFile, logger); err != nil {
			return err
		}
	}
	rules, err := st.ListRules(ctx, true)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if err := engine.Load(rules); err != nil {
		logger.Warn("some rules rejected at load", "error", err)
	}
	logger.Info("alert rules loaded", "count", len(engine.Rules()))

	// notification channels: log always, webhook and redis when configured
	channels := []notify.Channel{notify.NewLogChannel(logger)}
	if cfg.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.WebhookURL, cfg.WebhookToken))
	}
	if redisStore != nil {
		channels = append(channels, notify.NewRedisChannel(redisStore))
	}
	dispatcher := notify.NewDispatcher(cfg.NotifyQueueSize, channels, logger)

	broadcaster := broadcast.New(cfg.SubscriberQueueSize, logger)
	defer broadcaster.Close()

	var stateWriter *pipeline.StateWriter
	if redisStore != nil {
		stateWriter = pipeline.NewStateWriter(
			redisStore,
			1000,
			time.Duration(cfg.StateFlushIntervalMS)*time.Millisecond,
			logger,
		)
	}

	sim := source.NewSimulator(time.Now().UnixNano())
	pipe := pipeline.New(sim, st, engine, dispatcher, broadcaster, cfg.SampleRateHz,
		pipeline.Options{State: stateWriter, VehicleInfo: cfg.VehicleInfo}, logger)

	authn := auth.NewAuthenticator(cfg, redisStore)
	server := transport.NewServer(":"+cfg.HTTPPort, st, engine, broadcaster,
		authn, redisStore, pipe.SessionID(), logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	if stateWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stateWriter.Run(ctx)
		}()
	}

	pipeErr := make(chan error, 1)
	go func() { pipeErr <- pipe.Run(ctx) }()

	srvErr := make(chan error, 1)
	go func() { srvErr <- server.Run(ctx) }()

	logger.Info("gateway running",
		"port", cfg.HTTPPort, "session", pipe.SessionID(), "store", cfg.StoreBackend)

	var runErr error
	select {
	case runErr = <-pipeErr:
		stop()
		<-srvErr
	case runErr = <-srvErr:
		stop()
		<-pipeErr
	case <-ctx.Done():
		<-pipeErr
		<-srvErr
	}

	broadcaster.Close()
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("gateway: %w", runErr)
	}
	logger.Info("shutdown complete")
	return nil
}

// openStore builds the configured storage backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "postgres":
		st, err := store.NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// seedRules creates any rule from the YAML file that the store does not
// already have, matching by name.
func seedRules(ctx context.Context, st store.Store, path string, logger *slog.Logger) error {
	seed, err := config.LoadRules(path)
	if err != nil {
		return err
	}

	existing, err := st.ListRules(ctx, false)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, r := range existing {
		known[r.Name] = true
	}

	created := 0
	for _, r := range seed {
		if known[r.Name] {
			continue
		}
		if _, err := st.CreateRule(ctx, r); err != nil {
			return fmt.Errorf("seed rule %q: %w", r.Name, err)
		}
		created++
	}
	if created > 0 {
		logger.Info("alert rules seeded", "file", path, "created", created)
	}
	return nil
}
