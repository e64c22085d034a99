package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mailrules/internal/processor"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Apply the rules to stored mail and execute their actions",
	RunE:  runProcess,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show the rules loaded from the rules file",
	RunE:  runRules,
}

func init() {
	rootCmd.AddCommand(processCmd, rulesCmd)
	processCmd.Flags().Bool("batch", false, "page through stored mail processing.batch_size emails at a time")
	rulesCmd.Flags().Bool("json", false, "print the summary as JSON")
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.gmailClient(ctx)
	if err != nil {
		return err
	}
	p := a.processor(client)

	var stats processor.Stats
	if batch, _ := cmd.Flags().GetBool("batch"); batch {
		stats, err = p.ProcessInBatches(ctx)
	} else {
		stats, err = p.ProcessAll(ctx)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:              %s\n", stats.RunID)
	fmt.Fprintf(out, "Emails processed: %d\n", stats.Processed)
	fmt.Fprintf(out, "Emails matched:   %d\n", stats.Matched)
	fmt.Fprintf(out, "Actions executed: %d\n", stats.ActionsExecuted)
	fmt.Fprintf(out, "Actions failed:   %d\n", stats.ActionsFailed)
	if stats.TimedOut {
		fmt.Fprintf(out, "Stopped after %s\n", a.cfg.Processing.MaxProcessTime)
	}
	return nil
}

func runRules(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sum := a.rules.Summary()
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintf(out, "Loaded %d rule(s) from %s\n", sum.TotalRules, a.cfg.RulesPath)
	for _, r := range sum.Rules {
		fmt.Fprintf(out, "\nRule %d: %s of %d condition(s)\n", r.ID, r.Predicate, r.ConditionsCount)
		for _, c := range r.Conditions {
			fmt.Fprintf(out, "  - %s %s %q\n", c.Field, c.Predicate, c.Value)
		}
		for _, act := range r.Actions {
			fmt.Fprintf(out, "  => %s\n", act)
		}
	}
	return nil
}
