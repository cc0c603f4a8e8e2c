package main

import (
	"fmt"
	"os"

	"github.com/reportdesk/api/internal/config"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "reportdesk",
	Short: "Reportdesk API server",
	Long: `Reportdesk serves the folder, report and mission API behind Discord sign-in.

Commands:
  reportdesk serve                   Run the HTTP API and scheduled jobs
  reportdesk migrate                 Apply the schema and seed built-in roles
  reportdesk promote <discord-id>    Make an existing user an approved admin`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Init()
		cfg = config.Load()
		logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
		utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
		utils.ConfigureEncryption(cfg.JWT.Secret)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
