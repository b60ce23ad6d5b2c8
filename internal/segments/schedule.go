package segments

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"

	"leasing/risk-engine/internal/domain"
)

// Runner runs one refresh for a snapshot date and observation window.
type Runner interface {
	Run(ctx context.Context, date domain.Date, windowMonths int) (Result, error)
}

// runTimeout bounds a scheduled refresh.
const runTimeout = time.Hour

// Schedule registers r on c at the standard five-field cron spec. Each run
// snapshots the current UTC date over windowMonths.
func Schedule(c *cron.Cron, spec string, windowMonths int, r Runner, logger *slog.Logger) (cron.EntryID, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		date := domain.DateOf(time.Now())
		if _, err := r.Run(ctx, date, windowMonths); err != nil {
			logger.Error("scheduled segment refresh failed",
				"snapshot_date", date.Format(domain.DateLayout),
				"error", err,
			)
		}
	})
	if err != nil {
		return 0, eris.Wrapf(err, "segments: invalid schedule %q", spec)
	}
	logger.Info("segment refresh scheduled", "schedule", spec, "window_months", windowMonths)
	return id, nil
}
