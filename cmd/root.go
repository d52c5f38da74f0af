package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mountee32/legalcopilot-sub009/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "legalcopilot",
	Short: "Legal document extraction pipeline",
	Long:  "Runs uploaded case documents through a six-stage pipeline: intake, OCR, classification, AI fact extraction, reconciliation against recorded case data, and action tallying.",
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
