package classifier

import (
	"context"
	"time"

	"github.com/kvasilopoulos/contact-center/internal/llm"
)

// RetryPolicy bounds retries of transient backend errors.
type RetryPolicy struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, MinWait: time.Second, MaxWait: 10 * time.Second}
}

// Backoff returns the wait after the given failed attempt (1-based):
// MinWait doubled per attempt, capped at MaxWait.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.MinWait
	for i := 1; i < attempt && d < p.MaxWait; i++ {
		d *= 2
	}
	if d > p.MaxWait {
		d = p.MaxWait
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn until it succeeds, returns a non-transient error or the
// attempts run out. The last error is returned.
func (c *Classifier) retry(ctx context.Context, backend string, fn func(context.Context) error) error {
	attempts := c.cfg.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		switch {
		case err == nil:
			c.recordAttempt(backend, "success")
			return nil
		case !llm.IsTransient(err):
			c.recordAttempt(backend, "error")
			return err
		}
		c.recordAttempt(backend, "transient_error")
		if attempt == attempts {
			break
		}
		wait := c.cfg.Retry.Backoff(attempt)
		c.logger.Warn("transient backend error, retrying",
			"backend", backend,
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		if serr := c.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return err
}

func (c *Classifier) recordAttempt(backend, result string) {
	if c.metrics != nil {
		c.metrics.RecordBackendAttempt(backend, result)
	}
}
