package cmd

import (
	"fmt"
	"os"

	"github.com/govdir/govdir/backend/server/internal/config"
	"github.com/govdir/govdir/backend/server/internal/database"
	"github.com/govdir/govdir/backend/server/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var configPath *string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "govdir",
	Short:        "govdir: government agency contact directory",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
}

type env struct {
	cfg    config.Config
	logger *logrus.Logger
	db     *database.DB
}

// setup loads the config, builds the logger and opens the migrated database. The caller
// owns the returned database.
func setup() (*env, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	db, err := openDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func openDB(cfg config.Config, logger *logrus.Logger) (*database.DB, error) {
	gormConfig := &gorm.Config{Logger: logging.GormLogger(logger)}
	var db *database.DB
	var err error
	if cfg.PostgresDSN != "" {
		db, err = database.OpenPostgres(cfg.PostgresDSN, cfg.PostgresDriver, gormConfig)
	} else {
		db, err = database.OpenSQLite(cfg.SQLiteDSN, gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the DB: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping the DB: %w", err)
	}
	if err := db.AddDatabaseTables(); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.CreateIndices(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
