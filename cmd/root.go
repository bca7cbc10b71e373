package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/delinquency-bot/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "delinquency-bot",
	Short: "Delinquent subscriber reports over Telegram",
	Long:  "Fetches 30 and 45 day delinquent accounts from Hasura, verifies each subscriber once, and delivers enriched spreadsheets through a Telegram bot.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
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
