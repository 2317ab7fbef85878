package scheduler

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusRunning Status = "Running"
	StatusPaused  Status = "Paused"
)

// WorkerStatus is the queryable snapshot of one instance's worker, consumed
// by the control API and the alert evaluator.
type WorkerStatus struct {
	InstanceID string    `json:"instance_id"`
	Status     Status    `json:"status"`
	Since      time.Time `json:"since"`
	Message    string    `json:"message"`
}

// worker is the per-instance scheduling unit: a cancellation handle plus the
// loop goroutine's done channel. A stopped worker is retained for status
// queries and reused on the next start.
type worker struct {
	instanceID string

	mu      sync.Mutex
	status  Status
	since   time.Time
	message string
	cancel  context.CancelFunc
	done    chan struct{}
}

func newWorker(instanceID string) *worker {
	return &worker{
		instanceID: instanceID,
		status:     StatusPaused,
		since:      time.Now().UTC(),
		message:    "created",
	}
}

func (w *worker) transition(st Status, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = st
	w.since = time.Now().UTC()
	w.message = msg
}

func (w *worker) snapshot() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStatus{
		InstanceID: w.instanceID,
		Status:     w.status,
		Since:      w.since,
		Message:    w.message,
	}
}

// alive reports whether the loop goroutine is still running.
func (w *worker) alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aliveLocked()
}

func (w *worker) aliveLocked() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// armIfStopped atomically checks for a live loop and arms the worker when
// there is none, so two racing starts can never both spawn a loop. Returns
// nil when a loop is already running.
func (w *worker) armIfStopped(cancel context.CancelFunc) chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusRunning && w.aliveLocked() {
		return nil
	}
	w.cancel = cancel
	w.done = make(chan struct{})
	w.status = StatusRunning
	w.since = time.Now().UTC()
	w.message = "started"
	return w.done
}

func (w *worker) stop() (chan struct{}, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	return w.done, w.done != nil
}
