package scheduler

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/check"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
)

// TxRunner is the write gate: one serialized transaction, retried on
// transient store contention. Satisfied by *sqlite.DB.
type TxRunner interface {
	InWriteTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var (
	mPersistBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persister_batches_total", Help: "Persisted probe batches by outcome",
	}, []string{"outcome"})
	mPersistResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persister_results_total", Help: "Probe results written",
	})
)

// Persister folds one cycle's probe results into the store: an append-only
// check row per result plus the target-state upsert, all in one write
// transaction so a state transition never outruns its check row.
type Persister struct {
	db     TxRunner
	checks check.Repo
	states target.StateRepo
	log    *zap.Logger
}

func NewPersister(db TxRunner, checks check.Repo, states target.StateRepo, log *zap.Logger) *Persister {
	return &Persister{
		db:     db,
		checks: checks,
		states: states,
		log:    log.With(zap.String("component", "persister")),
	}
}

func (p *Persister) PersistBatch(ctx context.Context, results []*check.ProbeResult) error {
	if len(results) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(results))
	seen := make(map[int64]struct{}, len(results))
	for _, r := range results {
		if _, ok := seen[r.TargetID]; !ok {
			seen[r.TargetID] = struct{}{}
			ids = append(ids, r.TargetID)
		}
	}

	// States are loaded inside the transaction so a gate retry re-reads
	// them instead of double-applying.
	err := p.db.InWriteTx(ctx, func(ctx context.Context) error {
		states, err := p.states.GetForTargets(ctx, ids)
		if err != nil {
			return fmt.Errorf("load states: %w", err)
		}
		for _, r := range results {
			if err := p.checks.Insert(ctx, r.Row()); err != nil {
				return fmt.Errorf("insert check: %w", err)
			}
			s, ok := states[r.TargetID]
			if !ok {
				s = target.NewState(r)
				states[r.TargetID] = s
			} else {
				s.Apply(r)
			}
			if err := p.states.Upsert(ctx, s); err != nil {
				return fmt.Errorf("upsert state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		mPersistBatches.WithLabelValues("error").Inc()
		return err
	}
	mPersistBatches.WithLabelValues("ok").Inc()
	mPersistResults.Add(float64(len(results)))
	p.log.Debug("batch persisted", zap.Int("results", len(results)))
	return nil
}
