package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepTimeout = 5 * time.Minute

// Retention purges feedback older than a fixed age on a cron schedule.
type Retention struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
	cron   *cron.Cron
}

func NewRetention(store Store, maxAge time.Duration, logger *slog.Logger) *Retention {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{store: store, maxAge: maxAge, now: time.Now, logger: logger}
}

// Sweep purges once.
func (r *Retention) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.maxAge)
	n, err := r.store.Purge(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.logger.Info("feedback retention sweep", "purged", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}

// Start schedules Sweep using a standard 5-field cron expression. An empty
// schedule or non-positive age disables the job.
func (r *Retention) Start(schedule string) error {
	if schedule == "" || r.maxAge <= 0 {
		r.logger.Info("feedback retention disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error("feedback retention sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("feedback retention scheduled", "schedule", schedule, "max_age", r.maxAge.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (r *Retention) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
