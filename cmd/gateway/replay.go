package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"st-telemetry/gateway/internal/alert"
	"st-telemetry/gateway/internal/auth"
	"st-telemetry/gateway/internal/broadcast"
	"st-telemetry/gateway/internal/config"
	"st-telemetry/gateway/internal/pipeline"
	transport "st-telemetry/gateway/internal/transport/http"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded session over the websocket",
	Long: `Serve the API and stream a recorded session to websocket
subscribers, paced by the original timestamps. Readings are not
re-persisted and alerts are not re-evaluated.`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().String("session", "", "session id to replay (required)")
	replayCmd.Flags().Float64("speed", 1.0, "playback speed multiplier")
	replayCmd.MarkFlagRequired("session")
}

func runReplay(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg := config.Load()

	sessionID, _ := cmd.Flags().GetString("session")
	speed, _ := cmd.Flags().GetFloat64("speed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	broadcaster := broadcast.New(cfg.SubscriberQueueSize, logger)
	defer broadcaster.Close()

	// rule queries still work during replay; evaluation never runs
	engine := alert.NewEngine(st, logger)
	authn := auth.NewAuthenticator(cfg, nil)
	server := transport.NewServer(":"+cfg.HTTPPort, st, engine, broadcaster,
		authn, nil, sessionID, logger)

	srvErr := make(chan error, 1)
	go func() { srvErr <- server.Run(ctx) }()

	logger.Info("replay server running", "port", cfg.HTTPPort, "session", sessionID)

	if err := pipeline.Replay(ctx, st, broadcaster, sessionID, speed, logger); err != nil {
		stop()
		<-srvErr
		return fmt.Errorf("replay: %w", err)
	}

	stop()
	if err := <-srvErr; err != nil {
		return fmt.Errorf("replay server: %w", err)
	}
	return nil
}
