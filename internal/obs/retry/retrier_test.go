package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpoJitterDoublesAndCaps(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second}
	require.Equal(t, 100*time.Millisecond, b.Next(0))
	require.Equal(t, 200*time.Millisecond, b.Next(1))
	require.Equal(t, 400*time.Millisecond, b.Next(2))
	require.Equal(t, time.Second, b.Next(10))
}

func TestExpoJitterStaysWithinBand(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second, Jitter: 0.2}
	for i := 0; i < 200; i++ {
		d := b.Next(1) // 200ms nominal
		require.GreaterOrEqual(t, d, 160*time.Millisecond)
		require.LessOrEqual(t, d, 240*time.Millisecond)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return fatal
	}, Policy{
		Attempts:  5,
		Backoff:   ExpoJitter{Base: time.Millisecond},
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
	})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestDoRecoversWithinBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, Policy{Attempts: 3, Backoff: ExpoJitter{Base: time.Millisecond}})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}
