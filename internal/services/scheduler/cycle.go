package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/check"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/instance"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
	"github.com/scottbadams/ITWebsiteMonitor/internal/obs"
)

// Prober is the probe engine seam.
type Prober interface {
	Probe(ctx context.Context, t *target.Target) *check.ProbeResult
}

// fallbackInterval is the retry cadence when the instance row is missing or
// disabled: keep the loop alive so a re-enable is picked up.
const fallbackInterval = 30 * time.Second

var (
	mCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_cycles_total", Help: "Probe cycles by outcome",
	}, []string{"outcome"})
	mCycleDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scheduler_cycle_duration_seconds", Help: "Wall time of one probe cycle",
		Buckets: prometheus.DefBuckets,
	})
)

// Cycle executes one probe round for an instance: read config, fan out
// probes under the concurrency bound, persist the batch.
type Cycle struct {
	instances instance.Repo
	targets   target.Repo
	engine    Prober
	persister *Persister
	log       *zap.Logger
}

func NewCycle(instances instance.Repo, targets target.Repo, engine Prober, persister *Persister, log *zap.Logger) *Cycle {
	return &Cycle{
		instances: instances,
		targets:   targets,
		engine:    engine,
		persister: persister,
		log:       log.With(zap.String("component", "cycle")),
	}
}

func (c *Cycle) Run(ctx context.Context, instanceID string) time.Duration {
	start := time.Now()
	defer func() { mCycleDur.Observe(time.Since(start).Seconds()) }()

	tr := otel.Tracer("scheduler")
	ctx, span := tr.Start(ctx, "scheduler.cycle")
	span.SetAttributes(attribute.String("instance.id", instanceID))
	defer span.End()
	log := obs.WithTrace(ctx, c.log)

	inst, err := c.instances.GetByID(ctx, instanceID)
	if err != nil {
		mCycles.WithLabelValues("error").Inc()
		log.Warn("instance read failed", zap.String("instance", instanceID), zap.Error(err))
		return fallbackInterval
	}
	if !inst.Enabled {
		mCycles.WithLabelValues("disabled").Inc()
		return fallbackInterval
	}
	if inst.Paused(time.Now().UTC()) {
		// Keep ticking at the instance cadence so a pause-until deadline
		// auto-resumes without operator action.
		mCycles.WithLabelValues("paused").Inc()
		return inst.CheckInterval
	}

	ts, err := c.targets.ListEnabledByInstance(ctx, instanceID)
	if err != nil {
		mCycles.WithLabelValues("error").Inc()
		log.Warn("target list failed", zap.String("instance", instanceID), zap.Error(err))
		return inst.CheckInterval
	}
	if len(ts) == 0 {
		mCycles.WithLabelValues("empty").Inc()
		return inst.CheckInterval
	}

	results := c.fanOut(ctx, inst, ts)
	span.SetAttributes(attribute.Int("cycle.targets", len(ts)), attribute.Int("cycle.results", len(results)))

	if len(results) > 0 {
		// The persist phase is a short critical section that finishes even
		// if the worker was cancelled mid-cycle.
		if err := c.persister.PersistBatch(context.WithoutCancel(ctx), results); err != nil {
			mCycles.WithLabelValues("persist_error").Inc()
			log.Error("persist batch dropped", zap.String("instance", instanceID), zap.Error(err))
			return inst.CheckInterval
		}
	}
	mCycles.WithLabelValues("ok").Inc()
	return inst.CheckInterval
}

func (c *Cycle) fanOut(ctx context.Context, inst *instance.Instance, ts []*target.Target) []*check.ProbeResult {
	limit := int64(inst.Concurrency)
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	results := make([]*check.ProbeResult, 0, len(ts))

	for _, t := range ts {
		if err := sem.Acquire(gctx, 1); err != nil {
			break // cycle cancelled; pending probes are dropped
		}
		t := t
		g.Go(func() error {
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("probe panicked", zap.Int64("target", t.ID), zap.Any("panic", r))
				}
			}()
			res := c.engine.Probe(gctx, t)
			if res == nil {
				return nil
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
