// auditctl runs operator tasks against the same database and bucket as the API server.
//
// Usage (same env as the server):
//
//	go run ./cmd/auditctl seed-admins
//	go run ./cmd/auditctl sweep-blobs --grace 24h [--delete]
//	go run ./cmd/auditctl export-credits --out ledger.xlsx
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/greenaudit/greenwash_backend/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type env struct {
	cfg    config.Config
	logger *logrus.Logger
	db     *gorm.DB
}

var app env

var rootCmd = &cobra.Command{
	Use:                   "auditctl [command]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Operator tasks for the greenwash audit backend.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		app.cfg = cfg
		app.logger = config.NewLogger(cfg.LogLevel)
		app.db, err = config.ConnectDatabaseWithRetry(cmd.Context(), cfg.Database)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app.db == nil {
			return
		}
		if sqlDB, err := app.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	},
}

func init() {
	rootCmd.AddCommand(newSeedAdminsCmd(), newSweepBlobsCmd(), newExportCreditsCmd())
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
