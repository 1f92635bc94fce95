package service

import (
	"context"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/util"

	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
)

// RetryPolicy bounds retries of storage failures
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy is used when a service is built without one
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Initial: 50 * time.Millisecond, Max: time.Second}

// retry runs fn until it succeeds, fails with a non-storage error, or the
// policy's attempts are used up. Only StorageError is retried.
func retry(ctx context.Context, policy RetryPolicy, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	bo := gax.Backoff{
		Initial:    policy.Initial,
		Max:        policy.Max,
		Multiplier: 2,
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !apperr.Is(err, apperr.KindStorage) || attempt >= attempts {
			return err
		}

		pause := bo.Pause()
		util.StorageRetriesTotal.WithLabelValues(op).Inc()
		logger.Warn("Retrying storage operation",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", pause),
			zap.Error(err))

		if sleepErr := gax.Sleep(ctx, pause); sleepErr != nil {
			return err
		}
	}
}
