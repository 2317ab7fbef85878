package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/instance"
)

// AutoStart brings every enabled instance's worker up at process boot. It
// runs before the alert evaluator's first tick so alerting sees the same
// running set a pre-restart process had.
func AutoStart(ctx context.Context, m *Manager, instances instance.Repo, log *zap.Logger) error {
	list, err := instances.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled instances: %w", err)
	}
	for _, in := range list {
		m.Start(in.ID)
	}
	log.Info("autostart complete", zap.Int("instances", len(list)))
	return nil
}
