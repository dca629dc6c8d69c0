package importer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trackport/trackport/model"
)

// withRetry runs op with the per-record retry budget and exponential backoff.
// Rate limits are a job-wide pause honoring the source's RetryAfter hint and
// are never charged against the budget; job-level and permanent failures
// surface immediately.
func (im *Importer) withRetry(ctx context.Context, op func() error) error {
	maxTries := im.conf.GetInt("Importer.maxRetries", 3)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = im.conf.GetDuration("Importer.retryBackoffBase", 1, time.Second)
	bo.MaxInterval = im.conf.GetDuration("Importer.retryBackoffMax", 30, time.Second)
	bo.Reset()

	tries := 0
	for {
		err := op()
		if err == nil {
			return nil
		}
		ie := model.AsImportError(err)

		if ie.Kind == model.ErrRateLimited {
			if perr := sleepCtx(ctx, im.clampPause(ie.RetryAfter)); perr != nil {
				return perr
			}
			continue
		}
		if !ie.Retryable() || ie.JobLevel {
			return err
		}
		tries++
		if tries >= maxTries {
			return err
		}
		if perr := sleepCtx(ctx, bo.NextBackOff()); perr != nil {
			return perr
		}
	}
}

// clampPause bounds a source-suggested pause so a hostile Retry-After cannot
// park the job for hours.
func (im *Importer) clampPause(hint time.Duration) time.Duration {
	if hint <= 0 {
		hint = time.Minute
	}
	if max := im.conf.GetDuration("Importer.maxRateLimitPause", 15, time.Minute); hint > max {
		return max
	}
	return hint
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
