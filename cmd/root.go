package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petvoyage/regsync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "regsync",
	Short: "Pet travel regulation ingestion pipeline",
	Long:  "Researches official pet travel regulation sources, extracts structured documents via Claude, validates them against the trusted-host policy, and publishes to the knowledge base.",
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
