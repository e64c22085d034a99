package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"mailrules/internal/fetcher"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch messages from Gmail into the local database",
	RunE:  runFetch,
}

var importCmd = &cobra.Command{
	Use:   "import <file.eml|dir>...",
	Short: "Store RFC 5322 message files in the local database",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(fetchCmd, importCmd)
	fetchCmd.Flags().Int64("max", 0, "number of messages to fetch (default gmail.max_results)")
	fetchCmd.Flags().String("label", "", "label to list (default gmail.query_label)")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	limit := a.cfg.Gmail.MaxResults
	if cmd.Flags().Changed("max") {
		limit, _ = cmd.Flags().GetInt64("max")
	}
	label := a.cfg.Gmail.QueryLabel
	if cmd.Flags().Changed("label") {
		label, _ = cmd.Flags().GetString("label")
	}

	client, err := a.gmailClient(ctx)
	if err != nil {
		return err
	}
	profile, err := client.Profile(ctx)
	if err != nil {
		return err
	}
	a.log.Info("connected to mailbox", "address", profile.EmailAddress, "messages", profile.MessagesTotal)

	n, err := fetcher.New(client, a.store, label, a.log).FetchAndStore(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d email(s) from %s\n", n, label)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	paths, err := expandMessageFiles(args)
	if err != nil {
		return err
	}
	n, err := fetcher.New(nil, a.store, "", a.log).ImportFiles(cmd.Context(), paths)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d message file(s)\n", n, len(paths))
	return nil
}

// expandMessageFiles replaces directories with the .eml files they contain.
func expandMessageFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.eml"))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", arg, err)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}
