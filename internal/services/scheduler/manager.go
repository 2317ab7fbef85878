package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// CycleRunner is one iteration of an instance's scheduler loop. It returns
// how long to sleep before the next iteration.
type CycleRunner interface {
	Run(ctx context.Context, instanceID string) time.Duration
}

const stopWait = 5 * time.Second

var (
	mWorkersStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_workers_started_total", Help: "Worker loop starts",
	})
	mWorkersStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_workers_stopped_total", Help: "Worker loop stops",
	})
	mWorkersCrashed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_workers_crashed_total", Help: "Worker loops killed by a panic",
	})
)

// Manager owns the workers, one per instance id. Workers survive Stop so the
// UI can still query their status; Start reuses them.
type Manager struct {
	log   *zap.Logger
	cycle CycleRunner

	baseCtx context.Context

	mu      sync.RWMutex
	workers map[string]*worker
}

func NewManager(ctx context.Context, cycle CycleRunner, log *zap.Logger) *Manager {
	return &Manager{
		log:     log.With(zap.String("component", "scheduler")),
		cycle:   cycle,
		baseCtx: ctx,
		workers: make(map[string]*worker),
	}
}

// Start spawns (or resumes) the scheduler loop for an instance. Starting an
// already-running instance is a no-op.
func (m *Manager) Start(instanceID string) {
	m.mu.Lock()
	w, ok := m.workers[instanceID]
	if !ok {
		w = newWorker(instanceID)
		m.workers[instanceID] = w
	}
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(m.baseCtx)
	done := w.armIfStopped(cancel)
	if done == nil {
		cancel()
		return
	}
	mWorkersStarted.Inc()
	m.log.Info("worker started", zap.String("instance", instanceID))

	go m.run(ctx, w, done)
}

// Stop pauses an instance's loop: cancel, then wait for the goroutine with a
// cap so a wedged probe can never hang the caller.
func (m *Manager) Stop(instanceID string) {
	m.mu.RLock()
	w, ok := m.workers[instanceID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	w.transition(StatusPaused, "stopped")
	done, live := w.stop()
	mWorkersStopped.Inc()
	if live {
		select {
		case <-done:
		case <-time.After(stopWait):
			m.log.Warn("worker did not stop in time", zap.String("instance", instanceID))
		}
	}
	m.log.Info("worker stopped", zap.String("instance", instanceID))
}

func (m *Manager) Restart(instanceID string) {
	m.Stop(instanceID)
	m.Start(instanceID)
}

func (m *Manager) TryGet(instanceID string) (WorkerStatus, bool) {
	m.mu.RLock()
	w, ok := m.workers[instanceID]
	m.mu.RUnlock()
	if !ok {
		return WorkerStatus{}, false
	}
	return w.snapshot(), true
}

func (m *Manager) GetAll() []WorkerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]WorkerStatus, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w.snapshot())
	}
	return out
}

// Running returns the ids whose loop is live right now. The alert evaluator
// keys off this, not the persisted enabled flag.
func (m *Manager) Running() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, w := range m.workers {
		if w.snapshot().Status == StatusRunning && w.alive() {
			out = append(out, id)
		}
	}
	return out
}

// StopAll stops every worker, used at process shutdown.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.Stop(id)
	}
}

func (m *Manager) run(ctx context.Context, w *worker, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			mWorkersCrashed.Inc()
			m.log.Error("worker crashed", zap.String("instance", w.instanceID), zap.Any("panic", r))
			w.transition(StatusPaused, "Crashed")
		}
	}()

	for {
		wait := m.cycle.Run(ctx, w.instanceID)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
