package target

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/check"
)

func okResult(ts time.Time) *check.ProbeResult {
	code := 200
	final := "https://example.com/"
	ip := "93.184.216.34"
	return &check.ProbeResult{
		TargetID:       1,
		Timestamp:      ts,
		TCPOk:          true,
		HTTPOk:         true,
		HTTPStatusCode: &code,
		FinalURL:       &final,
		UsedIP:         &ip,
		Summary:        "TCP OK (5ms); HTTP OK (200, 12ms)",
	}
}

func failResult(ts time.Time) *check.ProbeResult {
	return &check.ProbeResult{
		TargetID:  1,
		Timestamp: ts,
		Summary:   "TCP FAIL (30ms); HTTP FAIL (no response, 0ms)",
	}
}

func TestNewStateUp(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewState(okResult(ts))

	require.True(t, s.IsUp)
	require.Equal(t, 0, s.ConsecutiveFailures)
	require.Equal(t, ts, s.StateSince)
	require.Equal(t, ts, s.LastChangeAt)
	require.Equal(t, ts, s.LastCheckAt)
}

func TestNewStateDown(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewState(failResult(ts))

	require.False(t, s.IsUp)
	require.Equal(t, 1, s.ConsecutiveFailures)
}

func TestConsecutiveFailuresCoupledToIsUp(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewState(okResult(ts))

	for i := 1; i <= 5; i++ {
		s.Apply(failResult(ts.Add(time.Duration(i) * time.Minute)))
		require.False(t, s.IsUp)
		require.Equal(t, i, s.ConsecutiveFailures)
	}
	s.Apply(okResult(ts.Add(10 * time.Minute)))
	require.True(t, s.IsUp)
	require.Equal(t, 0, s.ConsecutiveFailures)
}

func TestStateSinceMovesOnlyOnFlip(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewState(okResult(t0))

	s.Apply(okResult(t0.Add(time.Minute)))
	require.Equal(t, t0, s.StateSince, "same-direction probe must not move StateSince")

	t2 := t0.Add(2 * time.Minute)
	s.Apply(failResult(t2))
	require.Equal(t, t2, s.StateSince)
	require.Equal(t, t2, s.LastChangeAt)

	s.Apply(failResult(t0.Add(3 * time.Minute)))
	require.Equal(t, t2, s.StateSince, "repeated down must not move StateSince")
}

func TestLoginEverMonotonic(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := okResult(ts)
	typ := "PasswordForm"
	r.LoginDetected = true
	r.DetectedLoginType = &typ
	s := NewState(r)
	require.True(t, s.LoginDetectedEver)

	s.Apply(okResult(ts.Add(time.Minute)))
	require.False(t, s.LoginDetectedLast)
	require.True(t, s.LoginDetectedEver, "LoginDetectedEver never clears")
}

func TestLoginFieldsUntouchedWithoutHTTPResponse(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := okResult(ts)
	typ := "OWA"
	r.LoginDetected = true
	r.DetectedLoginType = &typ
	s := NewState(r)

	s.Apply(failResult(ts.Add(time.Minute)))
	require.True(t, s.LoginDetectedLast, "transport failure must not clobber login state")
	require.NotNil(t, s.LastLoginType)
	require.Equal(t, "OWA", *s.LastLoginType)
}

func TestCoalesceFinalURLAndIP(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewState(okResult(ts))
	prevURL := *s.LastFinalURL

	s.Apply(failResult(ts.Add(time.Minute)))
	require.NotNil(t, s.LastFinalURL)
	require.Equal(t, prevURL, *s.LastFinalURL)
	require.NotNil(t, s.LastUsedIP)
}

func TestDegradedClassification(t *testing.T) {
	s := &State{IsUp: true, LoginDetectedEver: true, LoginDetectedLast: false}
	require.True(t, s.Degraded())

	s.LoginDetectedLast = true
	require.False(t, s.Degraded())

	s = &State{IsUp: false, LoginDetectedEver: true}
	require.False(t, s.Degraded(), "down targets are Down, not Degraded")
}

func TestReplaySameOutcomeIdempotentModuloCounters(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewState(failResult(ts))
	since := s.StateSince

	s.Apply(failResult(ts.Add(time.Minute)))
	require.Equal(t, since, s.StateSince)
	require.Equal(t, 2, s.ConsecutiveFailures)
	require.Equal(t, ts.Add(time.Minute), s.LastCheckAt)
}
