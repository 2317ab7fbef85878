package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCycle struct {
	runs  atomic.Int64
	wait  time.Duration
	panic bool
}

func (f *fakeCycle) Run(ctx context.Context, instanceID string) time.Duration {
	if f.panic {
		panic("cycle exploded")
	}
	f.runs.Add(1)
	return f.wait
}

func TestManagerStartRunsCycles(t *testing.T) {
	fc := &fakeCycle{wait: 5 * time.Millisecond}
	m := NewManager(context.Background(), fc, zap.NewNop())

	m.Start("main")
	require.Eventually(t, func() bool { return fc.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	st, ok := m.TryGet("main")
	require.True(t, ok)
	require.Equal(t, StatusRunning, st.Status)
	require.Equal(t, []string{"main"}, m.Running())

	m.Stop("main")
}

func TestManagerStopHaltsLoop(t *testing.T) {
	fc := &fakeCycle{wait: 5 * time.Millisecond}
	m := NewManager(context.Background(), fc, zap.NewNop())

	m.Start("main")
	require.Eventually(t, func() bool { return fc.runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	m.Stop("main")

	st, ok := m.TryGet("main")
	require.True(t, ok)
	require.Equal(t, StatusPaused, st.Status)
	require.Empty(t, m.Running())

	n := fc.runs.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, n, fc.runs.Load(), "loop must not tick after Stop")
}

func TestManagerStartIsIdempotent(t *testing.T) {
	fc := &fakeCycle{wait: time.Hour}
	m := NewManager(context.Background(), fc, zap.NewNop())

	m.Start("main")
	m.Start("main")
	require.Len(t, m.GetAll(), 1)
	m.Stop("main")
}

func TestManagerRestartResumesStoppedWorker(t *testing.T) {
	fc := &fakeCycle{wait: 5 * time.Millisecond}
	m := NewManager(context.Background(), fc, zap.NewNop())

	m.Start("main")
	m.Stop("main")
	n := fc.runs.Load()

	m.Restart("main")
	require.Eventually(t, func() bool { return fc.runs.Load() > n }, time.Second, 5*time.Millisecond)
	m.Stop("main")
}

func TestManagerCrashedWorkerGoesPaused(t *testing.T) {
	fc := &fakeCycle{panic: true}
	m := NewManager(context.Background(), fc, zap.NewNop())

	m.Start("boomy")
	require.Eventually(t, func() bool {
		st, ok := m.TryGet("boomy")
		return ok && st.Status == StatusPaused && st.Message == "Crashed"
	}, time.Second, 5*time.Millisecond)
	require.Empty(t, m.Running())
}

func TestManagerConcurrentStartSpawnsOneLoop(t *testing.T) {
	fc := &fakeCycle{wait: 5 * time.Millisecond}
	m := NewManager(context.Background(), fc, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Start("main")
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return fc.runs.Load() >= 1 }, time.Second, 5*time.Millisecond)

	// A single Stop must silence everything: an orphaned second loop would
	// keep ticking past it.
	m.Stop("main")
	n := fc.runs.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, n, fc.runs.Load(), "no loop survives one stop")
}

func TestManagerTryGetUnknown(t *testing.T) {
	m := NewManager(context.Background(), &fakeCycle{}, zap.NewNop())
	_, ok := m.TryGet("nope")
	require.False(t, ok)
}

func TestManagerStopAll(t *testing.T) {
	fc := &fakeCycle{wait: time.Hour}
	m := NewManager(context.Background(), fc, zap.NewNop())

	m.Start("a")
	m.Start("b")
	require.Len(t, m.Running(), 2)

	m.StopAll()
	require.Empty(t, m.Running())
	require.Len(t, m.GetAll(), 2, "stopped workers stay queryable")
}
