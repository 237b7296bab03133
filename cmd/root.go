package cmd

import (
	"fmt"
	"log"

	"buddy-vitality-service/config"
	"buddy-vitality-service/models"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// memoryDSN keeps one shared in-process database alive across pool connections.
const memoryDSN = "file:buddy?mode=memory&cache=shared"

var (
	sqlitePath string

	rootCmd = &cobra.Command{
		Use:   "buddy",
		Short: "Buddy vitality service",
		Long: `Runs the buddy reconciliation service: decays and restores each
signed-in user's pet between visits and serves the care actions over HTTP.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil {
				log.Println("⚠️  No .env file found, reading environment variables directly")
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "use a SQLite file instead of DATABASE_URL")
	rootCmd.AddCommand(serveCmd, migrateCmd, dedupeCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// openDB picks SQLite when a path is given, otherwise Postgres from DATABASE_URL.
func openDB(cfg *config.Config, sqliteDSN string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if sqliteDSN != "" {
		db, err := gorm.Open(sqlite.Open(sqliteDSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers anyway
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Buddy{}, &models.FoodEntry{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
