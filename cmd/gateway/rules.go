package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"st-telemetry/gateway/internal/config"
	"st-telemetry/gateway/internal/domain"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage alert rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules",
	RunE:  runRulesList,
}

var rulesCreateCmd = &cobra.Command{
	Use:   "create <name> <pid> <condition> <threshold>",
	Short: "Create an alert rule",
	Long: `Create an enabled alert rule. Condition is one of
gt, gte, lt, lte, eq, neq.

  gateway rules create high-boost BOOST_PRESSURE gt 20 --notify`,
	Args: cobra.ExactArgs(4),
	RunE: runRulesCreate,
}

var rulesSeedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Create rules from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesSeed,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesCreateCmd, rulesSeedCmd)
	rulesListCmd.Flags().Bool("enabled-only", false, "only show enabled rules")
	rulesCreateCmd.Flags().Bool("notify", false, "dispatch notifications when the rule triggers")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmdContext(cmd)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	enabledOnly, _ := cmd.Flags().GetBool("enabled-only")
	rules, err := st.ListRules(ctx, enabledOnly)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPID\tCONDITION\tTHRESHOLD\tENABLED\tNOTIFY")
	for _, r := range rules {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%g\t%t\t%t\n",
			r.ID, r.Name, r.PID, r.Condition, r.Threshold, r.Enabled, r.Notify)
	}
	return tw.Flush()
}

func runRulesCreate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmdContext(cmd)

	cond, err := domain.ParseCondition(args[2])
	if err != nil {
		return err
	}
	threshold, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("invalid threshold %q", args[3])
	}
	doNotify, _ := cmd.Flags().GetBool("notify")

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.CreateRule(ctx, domain.AlertRule{
		Name:      args[0],
		PID:       args[1],
		Condition: cond,
		Threshold: threshold,
		Enabled:   true,
		Notify:    doNotify,
	})
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	fmt.Printf("created rule %d: %s\n", id, args[0])
	return nil
}

func runRulesSeed(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg := config.Load()
	ctx := cmdContext(cmd)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return seedRules(ctx, st, args[0], logger)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
