package cmd

import (
	"fmt"

	"buddy-vitality-service/config"
	"buddy-vitality-service/services"
	"buddy-vitality-service/utils"

	"github.com/spf13/cobra"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe <owner-id>",
	Short: "Keep the newest buddy row for an owner and soft-delete the rest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return err
		}
		logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := openDB(cfg, sqlitePath)
		if err != nil {
			return err
		}
		defer closeDB(db)

		kept, removed, err := services.CleanupDuplicates(cmd.Context(), services.NewBuddyStore(db), args[0], logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "kept %s, removed %d\n", kept.ID, removed)
		return nil
	},
}
