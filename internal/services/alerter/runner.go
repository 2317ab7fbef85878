package alerter

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var mTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "alerter_tick_duration_seconds", Help: "Evaluator tick duration",
	Buckets: prometheus.DefBuckets,
})

// Runner drives the evaluator on its own clock, independent of the probe
// cadence. First tick fires immediately.
type Runner struct {
	log  *zap.Logger
	ev   *Evaluator
	tick time.Duration
}

func NewRunner(ev *Evaluator, tick time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		log:  log.With(zap.String("component", "alerter")),
		ev:   ev,
		tick: tick,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runTick(ctx)
		}
	}
}

func (r *Runner) runTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		mTickDur.Observe(time.Since(start).Seconds())
		if rec := recover(); rec != nil {
			r.log.Error("evaluator tick panicked", zap.Any("panic", rec))
		}
	}()
	r.ev.EvaluateTick(ctx)
}
