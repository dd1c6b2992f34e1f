package cli

import (
	"errors"

	ledgerrepo "tripbot/repository/ledger"
	"tripbot/util/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres ledger schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			log := newLogger()

			db, err := database.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := ledgerrepo.Migrate(cmd.Context(), db.Pool); err != nil {
				return err
			}
			log.Info("schema up to date")
			return nil
		},
	}
}
