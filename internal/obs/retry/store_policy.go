package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// StorePolicy is the write-gate policy for the embedded store: up to 10
// attempts, waiting min(5s, 100ms*n^2) before retry n. busy decides whether
// an error is a transient lock worth retrying.
func StorePolicy(log *zap.Logger, busy func(error) bool) Policy {
	return Policy{
		Name:      "store",
		Attempts:  10,
		Backoff:   Quadratic{Step: 100 * time.Millisecond, Max: 5 * time.Second},
		Retryable: busy,
		OnAttempt: func(i int, err error) {
			if log != nil && busy(err) {
				log.Warn("store busy, retrying", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("store retries exhausted", zap.Error(err))
			}
		},
	}
}
