package alerter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/event"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/instance"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/notify"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
	"github.com/scottbadams/ITWebsiteMonitor/internal/repository/sqlite"
	"github.com/scottbadams/ITWebsiteMonitor/internal/security"
	"github.com/scottbadams/ITWebsiteMonitor/internal/timezone"
)

type fakeRuntime struct{ ids []string }

func (f *fakeRuntime) Running() []string { return f.ids }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

type webhookCall struct {
	url     string
	payload notify.Payload
}

type fakeWebhook struct {
	mu    sync.Mutex
	calls []webhookCall
	fail  bool
}

func (f *fakeWebhook) Send(ctx context.Context, url string, p *notify.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("endpoint unreachable")
	}
	f.calls = append(f.calls, webhookCall{url: url, payload: *p})
	return nil
}

func (f *fakeWebhook) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.payload.EventType)
	}
	return out
}

type fakeEmail struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	calls int
}

func (f *fakeEmail) Send(ctx context.Context, s *notify.SMTPSettings, password, to string, msg *notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, to)
	return nil
}

type harness struct {
	db      *sqlite.DB
	ev      *Evaluator
	deps    Deps
	clock   *fakeClock
	webhook *fakeWebhook
	email   *fakeEmail
	runtime *fakeRuntime
	tg      *target.Target
	states  target.StateRepo
	events  event.Repo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, sqlite.Config{DataRoot: t.TempDir(), QueryTimeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db))

	insts := sqlite.NewInstanceRepo(db)
	require.NoError(t, insts.Create(ctx, &instance.Instance{
		ID: "main", DisplayName: "Main", Enabled: true,
		CheckInterval: time.Minute, Concurrency: 4, TimeZoneID: "UTC",
	}))
	tgts := sqlite.NewTargetRepo(db)
	tg := &target.Target{InstanceID: "main", URL: "https://example.com", Enabled: true}
	require.NoError(t, tgts.Create(ctx, tg))

	settings := sqlite.NewNotifyRepo(db)
	require.NoError(t, settings.PutWebhook(ctx, &notify.WebhookEndpoint{
		InstanceID: "main", URL: "https://hooks.example.com/alert", Enabled: true,
	}))

	prot, err := security.NewProtector(t.TempDir(), security.Purpose)
	require.NoError(t, err)

	h := &harness{
		db:      db,
		clock:   &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
		webhook: &fakeWebhook{},
		email:   &fakeEmail{},
		runtime: &fakeRuntime{ids: []string{"main"}},
		tg:      tg,
		states:  sqlite.NewStateRepo(db),
		events:  sqlite.NewEventRepo(db),
	}
	h.deps = Deps{
		DB:        db,
		Runtime:   h.runtime,
		Instances: insts,
		Targets:   tgts,
		States:    h.states,
		Events:    h.events,
		Settings:  settings,
		Protector: prot,
		Email:     h.email,
		Webhook:   h.webhook,
		TZ:        timezone.NewResolver(zap.NewNop()),
		Clock:     h.clock,
	}
	h.ev = NewEvaluator(ladderCfg(), h.deps, zap.NewNop())
	return h
}

func (h *harness) seedState(t *testing.T, st *target.State) {
	t.Helper()
	st.TargetID = h.tg.ID
	require.NoError(t, h.states.Upsert(context.Background(), st))
}

func (h *harness) state(t *testing.T) *target.State {
	t.Helper()
	s, err := h.states.Get(context.Background(), h.tg.ID)
	require.NoError(t, err)
	return s
}

func (h *harness) eventTypes(t *testing.T) []event.Type {
	t.Helper()
	evs, err := h.events.ListByInstance(context.Background(), "main", 50)
	require.NoError(t, err)
	out := make([]event.Type, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}

func downState(since time.Time) *target.State {
	return &target.State{
		IsUp: false, LastCheckAt: since, StateSince: since, LastChangeAt: since,
		ConsecutiveFailures: 1, LastSummary: "TCP FAIL (30ms); HTTP FAIL (no response, 0ms)",
	}
}

func TestEvaluatorHoldsBeforeDownAfter(t *testing.T) {
	h := newHarness(t)
	t0 := h.clock.Now()
	h.seedState(t, downState(t0))

	h.clock.set(t0.Add(60 * time.Second))
	h.ev.EvaluateTick(context.Background())

	require.Empty(t, h.webhook.kinds())
	require.Nil(t, h.state(t).DownFirstNotifiedAt)
}

func TestEvaluatorFirstDown(t *testing.T) {
	h := newHarness(t)
	t0 := h.clock.Now()
	h.seedState(t, downState(t0))

	now := t0.Add(180 * time.Second)
	h.clock.set(now)
	h.ev.EvaluateTick(context.Background())

	require.Equal(t, []string{"AlertDown"}, h.webhook.kinds())
	s := h.state(t)
	require.NotNil(t, s.DownFirstNotifiedAt)
	require.True(t, s.DownFirstNotifiedAt.Equal(now))
	require.NotNil(t, s.NextNotifyAt)
	require.True(t, s.NextNotifyAt.Equal(now.Add(1800*time.Second)))
	require.Equal(t, []event.Type{event.TypeAlertDown}, h.eventTypes(t))

	// Same tick time again: nothing new is due.
	h.ev.EvaluateTick(context.Background())
	require.Equal(t, []string{"AlertDown"}, h.webhook.kinds())
}

func TestEvaluatorRepeatLadder(t *testing.T) {
	h := newHarness(t)
	t0 := h.clock.Now()
	h.seedState(t, downState(t0))

	first := t0.Add(180 * time.Second)
	h.clock.set(first)
	h.ev.EvaluateTick(context.Background())

	repeat := first.Add(1800 * time.Second)
	h.clock.set(repeat)
	h.ev.EvaluateTick(context.Background())

	require.Equal(t, []string{"AlertDown", "AlertDownRepeat"}, h.webhook.kinds())
	s := h.state(t)
	require.True(t, s.LastNotifiedAt.Equal(repeat))
	require.True(t, s.NextNotifyAt.Equal(repeat.Add(1800*time.Second)))
	require.Equal(t, []event.Type{event.TypeAlertDownRepeat, event.TypeAlertDown}, h.eventTypes(t))
}

func TestEvaluatorFailedDeliveryDoesNotAdvance(t *testing.T) {
	h := newHarness(t)
	h.webhook.fail = true
	t0 := h.clock.Now()
	h.seedState(t, downState(t0))

	h.clock.set(t0.Add(180 * time.Second))
	h.ev.EvaluateTick(context.Background())

	s := h.state(t)
	require.Nil(t, s.DownFirstNotifiedAt, "failed send must not advance alert state")
	require.Equal(t, []event.Type{event.TypeError}, h.eventTypes(t))

	// Delivery recovers: the next tick retries and succeeds.
	h.webhook.fail = false
	h.clock.set(t0.Add(195 * time.Second))
	h.ev.EvaluateTick(context.Background())
	require.Equal(t, []string{"AlertDown"}, h.webhook.kinds())
	require.NotNil(t, h.state(t).DownFirstNotifiedAt)
}

func TestEvaluatorRecoveredFlow(t *testing.T) {
	h := newHarness(t)
	t0 := h.clock.Now()
	h.seedState(t, downState(t0))

	firstAt := t0.Add(180 * time.Second)
	h.clock.set(firstAt)
	h.ev.EvaluateTick(context.Background())

	// Probe flips the target up at t0+1000.
	upAt := t0.Add(1000 * time.Second)
	s := h.state(t)
	s.IsUp = true
	s.StateSince = upAt
	s.LastChangeAt = upAt
	s.LastCheckAt = upAt
	s.ConsecutiveFailures = 0
	require.NoError(t, h.states.Upsert(context.Background(), s))

	// Before the hysteresis window closes: due time gets stamped, nothing
	// sent yet.
	h.clock.set(upAt.Add(30 * time.Second))
	h.ev.EvaluateTick(context.Background())
	s = h.state(t)
	require.NotNil(t, s.RecoveredDueAt)
	require.True(t, s.RecoveredDueAt.Equal(upAt.Add(60*time.Second)))
	require.Equal(t, []string{"AlertDown"}, h.webhook.kinds())

	// Past the window: AlertRecovered goes out and bookkeeping resets.
	sentAt := upAt.Add(60 * time.Second)
	h.clock.set(sentAt)
	h.ev.EvaluateTick(context.Background())

	require.Equal(t, []string{"AlertDown", "AlertRecovered"}, h.webhook.kinds())
	s = h.state(t)
	require.Nil(t, s.DownFirstNotifiedAt)
	require.Nil(t, s.LastNotifiedAt)
	require.Nil(t, s.NextNotifyAt)
	require.Nil(t, s.RecoveredDueAt)
	require.NotNil(t, s.RecoveredNotifiedAt)
	require.True(t, s.RecoveredNotifiedAt.Equal(sentAt))

	// Another tick stays silent.
	h.clock.set(sentAt.Add(15 * time.Second))
	h.ev.EvaluateTick(context.Background())
	require.Len(t, h.webhook.kinds(), 2)
}

func TestEvaluatorReDownAfterRecoveryStartsFresh(t *testing.T) {
	h := newHarness(t)
	t0 := h.clock.Now()
	h.seedState(t, downState(t0))

	h.clock.set(t0.Add(180 * time.Second))
	h.ev.EvaluateTick(context.Background())

	upAt := t0.Add(1000 * time.Second)
	s := h.state(t)
	s.IsUp = true
	s.StateSince = upAt
	s.ConsecutiveFailures = 0
	require.NoError(t, h.states.Upsert(context.Background(), s))
	h.clock.set(upAt.Add(60 * time.Second))
	h.ev.EvaluateTick(context.Background())

	// Down again at t0+5000: a fresh outage needs a fresh DownAfter.
	reDownAt := t0.Add(5000 * time.Second)
	s = h.state(t)
	s.IsUp = false
	s.StateSince = reDownAt
	s.ConsecutiveFailures = 1
	require.NoError(t, h.states.Upsert(context.Background(), s))

	h.clock.set(reDownAt.Add(60 * time.Second))
	h.ev.EvaluateTick(context.Background())
	require.Len(t, h.webhook.kinds(), 2, "fresh outage under DownAfter must stay silent")

	h.clock.set(reDownAt.Add(180 * time.Second))
	h.ev.EvaluateTick(context.Background())
	require.Equal(t, []string{"AlertDown", "AlertRecovered", "AlertDown"}, h.webhook.kinds())
	require.Nil(t, h.state(t).RecoveredNotifiedAt, "new outage clears recovery bookkeeping")
}

func TestEvaluatorUpWithoutNotifyStaysSilent(t *testing.T) {
	h := newHarness(t)
	t0 := h.clock.Now()
	st := downState(t0)
	st.IsUp = true
	st.ConsecutiveFailures = 0
	h.seedState(t, st)

	h.clock.set(t0.Add(time.Hour))
	h.ev.EvaluateTick(context.Background())
	require.Empty(t, h.webhook.kinds())
	require.Nil(t, h.state(t).RecoveredDueAt)
}

func TestEvaluatorSkipsStoppedInstances(t *testing.T) {
	h := newHarness(t)
	t0 := h.clock.Now()
	h.seedState(t, downState(t0))
	h.runtime.ids = nil // instance stopped

	h.clock.set(t0.Add(time.Hour))
	h.ev.EvaluateTick(context.Background())
	require.Empty(t, h.webhook.kinds())
	require.Nil(t, h.state(t).DownFirstNotifiedAt)
}

func TestEvaluatorSkipsWhenNoChannelConfigured(t *testing.T) {
	h := newHarness(t)
	// Disable the only webhook; no SMTP settings exist.
	require.NoError(t, sqlite.NewNotifyRepo(h.db).PutWebhook(context.Background(), &notify.WebhookEndpoint{
		InstanceID: "main", URL: "https://hooks.example.com/alert", Enabled: false,
	}))

	t0 := h.clock.Now()
	h.seedState(t, downState(t0))
	h.clock.set(t0.Add(time.Hour))
	h.ev.EvaluateTick(context.Background())

	require.Empty(t, h.webhook.kinds())
	require.Nil(t, h.state(t).DownFirstNotifiedAt)
}

func TestEvaluatorEmailFanOutIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	settings := sqlite.NewNotifyRepo(h.db)
	require.NoError(t, settings.UpsertSMTP(ctx, &notify.SMTPSettings{
		InstanceID: "main", Host: "mail.example.com", Port: 587,
		Security: notify.SecurityStartTLS, From: "monitor@example.com",
	}))
	require.NoError(t, settings.PutRecipient(ctx, &notify.Recipient{InstanceID: "main", Email: "ops@example.com", Enabled: true}))
	require.NoError(t, settings.PutRecipient(ctx, &notify.Recipient{InstanceID: "main", Email: "oncall@example.com", Enabled: true}))

	// Webhook fails, email succeeds: the notification still counts as
	// delivered and both recipients get their copy.
	h.webhook.fail = true
	t0 := h.clock.Now()
	h.seedState(t, downState(t0))
	h.clock.set(t0.Add(180 * time.Second))
	h.ev.EvaluateTick(context.Background())

	require.ElementsMatch(t, []string{"ops@example.com", "oncall@example.com"}, h.email.sent)
	require.NotNil(t, h.state(t).DownFirstNotifiedAt)
}

// brokenSMTPSettings simulates a store failure on the SMTP settings read while
// the webhook tables stay readable.
type brokenSMTPSettings struct {
	notify.SettingsRepo
}

func (b *brokenSMTPSettings) GetSMTP(ctx context.Context, instanceID string) (*notify.SMTPSettings, error) {
	return nil, errors.New("disk I/O error")
}

func TestEvaluatorSMTPReadFailureKeepsWebhooksAlive(t *testing.T) {
	h := newHarness(t)
	d := h.deps
	d.Settings = &brokenSMTPSettings{SettingsRepo: d.Settings}
	ev := NewEvaluator(ladderCfg(), d, zap.NewNop())

	t0 := h.clock.Now()
	h.seedState(t, downState(t0))
	h.clock.set(t0.Add(180 * time.Second))
	ev.EvaluateTick(context.Background())

	require.Equal(t, []string{"AlertDown"}, h.webhook.kinds())
	require.NotNil(t, h.state(t).DownFirstNotifiedAt)
	require.Zero(t, h.email.calls)
}
