// Package cli holds the tripbot command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"tripbot/config"

	"github.com/spf13/cobra"
)

var Version = "dev"

var configPath string

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "tripbot",
		Short:         "Telegram trip planner bot: webhook, Stars payments and credits ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default ./"+config.DefaultFile+" if present)")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(setWebhookCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(hashPasswordCmd())
	return root
}

func Execute() {
	if err := NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func loadConfig() (config.App, error) {
	return config.Load(configPath)
}
