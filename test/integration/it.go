//go:build integration

// Package integration boots the full monitoring stack in-process against a
// temp-dir store and local HTTP fixtures. Run with -tags integration.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/config"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/instance"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/notify"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
	"github.com/scottbadams/ITWebsiteMonitor/internal/repository/sqlite"
	"github.com/scottbadams/ITWebsiteMonitor/internal/security"
	"github.com/scottbadams/ITWebsiteMonitor/internal/services/alerter"
	notifysvc "github.com/scottbadams/ITWebsiteMonitor/internal/services/notify"
	"github.com/scottbadams/ITWebsiteMonitor/internal/services/probe"
	"github.com/scottbadams/ITWebsiteMonitor/internal/services/scheduler"
	"github.com/scottbadams/ITWebsiteMonitor/internal/timezone"
)

// Stack is a fully wired monitoring process minus the listeners.
type Stack struct {
	DB        *sqlite.DB
	Instances *sqlite.InstanceRepoImpl
	Targets   *sqlite.TargetRepoImpl
	States    *sqlite.StateRepoImpl
	Events    *sqlite.EventRepoImpl
	Settings  *sqlite.NotifyRepoImpl
	Manager   *scheduler.Manager
	Evaluator *alerter.Evaluator
}

func probeCfg() config.ProbeCfg {
	return config.ProbeCfg{
		Timeout:      10 * time.Second,
		UserAgent:    "WebsiteMonitor",
		MaxRedirects: 12,
		MaxBodyBytes: 524288,
	}
}

func alertCfg() config.AlertCfg {
	return config.AlertCfg{
		Tick:             time.Second,
		DownAfter:        2 * time.Second,
		RecoveredAfter:   time.Second,
		RepeatUnder24h:   5 * time.Second,
		Repeat24hTo72h:   time.Hour,
		DailyAfter:       72 * time.Hour,
		DailyHourLocal:   10,
		DailyMinuteLocal: 0,
		SubjPrefix:       "[WebsiteMonitor]",
	}
}

// BootStack wires the scheduler and evaluator the same way monitord does,
// with short alert timings so outages resolve within a test run.
func BootStack(t *testing.T, ctx context.Context) *Stack {
	t.Helper()
	l := zap.NewNop()

	db, err := sqlite.Open(ctx, sqlite.Config{DataRoot: t.TempDir(), QueryTimeout: 5 * time.Second}, l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db))

	instances := sqlite.NewInstanceRepo(db)
	targets := sqlite.NewTargetRepo(db)
	checks := sqlite.NewCheckRepo(db)
	states := sqlite.NewStateRepo(db)
	events := sqlite.NewEventRepo(db)
	settings := sqlite.NewNotifyRepo(db)

	protector, err := security.NewProtector(t.TempDir(), security.Purpose)
	require.NoError(t, err)

	engine := probe.NewEngine(probeCfg(), l)
	persister := scheduler.NewPersister(db, checks, states, l)
	cycle := scheduler.NewCycle(instances, targets, engine, persister, l)
	manager := scheduler.NewManager(ctx, cycle, l)
	t.Cleanup(manager.StopAll)

	evaluator := alerter.NewEvaluator(alertCfg(), alerter.Deps{
		DB:        db,
		Runtime:   manager,
		Instances: instances,
		Targets:   targets,
		States:    states,
		Events:    events,
		Settings:  settings,
		Protector: protector,
		Email:     notifysvc.NewSMTPSender(config.SMTPCfg{Timeout: 5 * time.Second}, l),
		Webhook:   notifysvc.NewWebhookSender(config.WebhookCfg{Timeout: 5 * time.Second}, l),
		TZ:        timezone.NewResolver(l),
	}, l)

	return &Stack{
		DB:        db,
		Instances: instances,
		Targets:   targets,
		States:    states,
		Events:    events,
		Settings:  settings,
		Manager:   manager,
		Evaluator: evaluator,
	}
}

// SeedInstance creates an instance with a fast check cadence plus one target.
func (s *Stack) SeedInstance(t *testing.T, id, url string) *target.Target {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Instances.Create(ctx, &instance.Instance{
		ID: id, DisplayName: id, Enabled: true,
		CheckInterval: time.Second, Concurrency: 4, TimeZoneID: "UTC",
	}))
	tg := &target.Target{InstanceID: id, URL: url, Enabled: true}
	require.NoError(t, s.Targets.Create(ctx, tg))
	return tg
}

func (s *Stack) SeedWebhook(t *testing.T, instanceID, url string) {
	t.Helper()
	require.NoError(t, s.Settings.PutWebhook(context.Background(), &notify.WebhookEndpoint{
		InstanceID: instanceID, URL: url, Enabled: true,
	}))
}

// WaitState polls until the target's state satisfies cond or the deadline
// passes.
func (s *Stack) WaitState(t *testing.T, targetID int64, timeout time.Duration, cond func(*target.State) bool) *target.State {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		st, err := s.States.Get(context.Background(), targetID)
		if err == nil && cond(st) {
			return st
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("state condition not met within %s for target %d", timeout, targetID)
	return nil
}
