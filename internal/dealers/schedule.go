package dealers

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"

	"leasing/risk-engine/internal/domain"
)

// Runner runs one refresh for a snapshot date.
type Runner interface {
	Run(ctx context.Context, date domain.Date) (Result, error)
}

// runTimeout bounds a scheduled refresh.
const runTimeout = 30 * time.Minute

// Schedule registers r on c at the standard five-field cron spec. Each run
// snapshots the current UTC date; failures are logged and retried on the
// next tick.
func Schedule(c *cron.Cron, spec string, r Runner, logger *slog.Logger) (cron.EntryID, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		date := domain.DateOf(time.Now())
		if _, err := r.Run(ctx, date); err != nil {
			logger.Error("scheduled dealer refresh failed",
				"snapshot_date", date.Format(domain.DateLayout),
				"error", err,
			)
		}
	})
	if err != nil {
		return 0, eris.Wrapf(err, "dealers: invalid schedule %q", spec)
	}
	logger.Info("dealer refresh scheduled", "schedule", spec)
	return id, nil
}
