// Command riskengine runs the lease credit-risk scoring service and its
// operational tasks.
//
// Usage:
//
//	riskengine serve [--port 8080] [--seed data/seed.json]
//	riskengine evaluate --file request.json
//	riskengine migrate
//	riskengine refresh-dealers [--date 2026-03-01]
//	riskengine refresh-segments [--date 2026-04-01] [--window-months 12]
//	riskengine token --subject flowable --role risk-engine-admin
//
// Configuration comes from config.yaml, .env and RISK_* environment variables.
package main

import (
	"log/slog"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"leasing/risk-engine/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "riskengine",
	Short: "Deterministic credit-risk scoring for lease applications",
	Long: "Scores B2C and B2B lease applications with a ten-factor scorecard, applies hard " +
		"business rules, and maps the result to a risk tier, decision and probability of default.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		l, err := config.InitLogger(cfg.Log)
		if err != nil {
			return eris.Wrap(err, "init logger")
		}
		logger = l

		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
