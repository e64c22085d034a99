package cmd

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"mailrules/internal/config"
	"mailrules/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <command>",
	Short: "Manage the database schema",
	Long:  "Commands:\n" + migrateHelp(),
	Args:  cobra.ExactArgs(1),
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrateHelp() string {
	var b strings.Builder
	for _, c := range migrations.Commands {
		fmt.Fprintf(&b, "  %-10s  %s\n", c.Name, c.Help)
	}
	return b.String()
}

func runMigrate(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return migrations.Command(db, args[0])
}
