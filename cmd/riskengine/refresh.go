package main

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"leasing/risk-engine/internal/domain"
)

var (
	refreshDate          string
	segmentsDate         string
	segmentsWindowMonths int
)

var refreshCmd = &cobra.Command{
	Use:   "refresh-dealers",
	Short: "Rebuild the dealer risk snapshot from the DataHub once",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseSnapshotDate(refreshDate, time.Now())
		if err != nil {
			return err
		}

		s := &services{}
		defer s.Close()
		r, err := buildRefresher(cmd.Context(), cfg, logger, s)
		if err != nil {
			return err
		}

		res, err := r.Run(cmd.Context(), date)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var refreshSegmentsCmd = &cobra.Command{
	Use:   "refresh-segments",
	Short: "Recompute segment performance, WoE drift and PSI from the DataHub once",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseSnapshotDate(segmentsDate, time.Now())
		if err != nil {
			return err
		}
		window := segmentsWindowMonths
		if window == 0 {
			window = cfg.Segments.WindowMonths
		}
		if window < 1 || window > 60 {
			return eris.Errorf("--window-months must be within 1-60, got %d", window)
		}

		s := &services{}
		defer s.Close()
		r, err := buildSegmentRefresher(cmd.Context(), cfg, logger, s)
		if err != nil {
			return err
		}

		res, err := r.Run(cmd.Context(), date, window)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

// parseSnapshotDate parses YYYY-MM-DD, defaulting to the date of now.
func parseSnapshotDate(raw string, now time.Time) (domain.Date, error) {
	if raw == "" {
		return domain.DateOf(now), nil
	}
	t, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return domain.Date{}, eris.Wrapf(err, "invalid --date %q", raw)
	}
	return domain.DateOf(t), nil
}

func init() {
	refreshCmd.Flags().StringVar(&refreshDate, "date", "", "snapshot date YYYY-MM-DD (default today, UTC)")
	rootCmd.AddCommand(refreshCmd)

	refreshSegmentsCmd.Flags().StringVar(&segmentsDate, "date", "", "snapshot date YYYY-MM-DD (default today, UTC)")
	refreshSegmentsCmd.Flags().IntVar(&segmentsWindowMonths, "window-months", 0, "observation window in months (default from config)")
	rootCmd.AddCommand(refreshSegmentsCmd)
}
