package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mailrules/internal/bot"
	"mailrules/internal/fetcher"
	"mailrules/internal/httpapi"
	"mailrules/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch and process mail on a schedule",
	Long: `run fetches new mail and applies the rules every processing.interval.
The Telegram bot starts when telegram.token is set, and the admin HTTP API
when http.addr is set.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("no-fetch", false, "process stored mail only, without listing Gmail")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
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
	proc := a.processor(client)

	var fetch scheduler.Fetcher
	if noFetch, _ := cmd.Flags().GetBool("no-fetch"); !noFetch {
		fetch = fetcher.New(client, a.store, a.cfg.Gmail.QueryLabel, a.log)
	}

	g, ctx := errgroup.WithContext(ctx)

	var notifier scheduler.Notifier
	if a.cfg.Telegram.Token != "" {
		b, err := bot.New(a.cfg.Telegram.Token, a.store, a.rules, proc, a.cfg, a.log)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
		notifier = b
		g.Go(func() error {
			b.Run(ctx)
			return nil
		})
	}

	if a.cfg.HTTPAddr != "" {
		srv := httpapi.New(a.store, a.rules, proc, a.log)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, a.cfg.HTTPAddr)
		})
	}

	sched := scheduler.New(fetch, proc, notifier, a.cfg.Gmail.MaxResults, a.log)
	sched.SetTickInterval(a.cfg.Processing.Interval)

	a.log.Info("starting", "interval", a.cfg.Processing.Interval, "rules", len(a.rules.Rules()))
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("stopped")
	return nil
}
