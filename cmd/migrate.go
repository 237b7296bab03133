package cmd

import (
	"fmt"

	"buddy-vitality-service/config"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the buddies and food_entries tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return err
		}
		db, err := openDB(cfg, sqlitePath)
		if err != nil {
			return err
		}
		defer closeDB(db)

		if err := migrate(db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✅ Database migrated")
		return nil
	},
}
