package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"st-telemetry/gateway/internal/config"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete readings older than a cutoff",
	Long: `Delete telemetry readings with a timestamp older than now minus
--older-than. Sessions and alert history are kept.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "age cutoff for readings")
}

func runPrune(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg := config.Load()
	ctx := cmdContext(cmd)

	age, _ := cmd.Flags().GetDuration("older-than")
	if age <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	deleted, err := st.Prune(ctx, age)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	cutoff := time.Now().Add(-age)
	logger.Info("prune complete", "cutoff", cutoff.Format(time.RFC3339), "deleted", deleted)
	fmt.Printf("deleted %d readings older than %s\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}
