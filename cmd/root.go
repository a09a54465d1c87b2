package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vista-sync",
	Short: "Reconcile Vista ERP exports with platform entities",
	Long:  "Imports Vista workbook exports, matches external records to internal customers, employees and vendors, and serves the reconciliation API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
