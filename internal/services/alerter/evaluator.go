package alerter

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/config"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/event"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/instance"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/notify"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
	"github.com/scottbadams/ITWebsiteMonitor/internal/obs"
	"github.com/scottbadams/ITWebsiteMonitor/internal/repository/sqlite"
	"github.com/scottbadams/ITWebsiteMonitor/internal/timezone"
)

// Runtime exposes which instances have a live scheduler loop. Alerting keys
// off runtime state, not the persisted enabled flag: a stopped instance goes
// silent immediately.
type Runtime interface {
	Running() []string
}

// TxRunner is the store's write gate, satisfied by *sqlite.DB.
type TxRunner interface {
	InWriteTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var (
	mAlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerter_notifications_total", Help: "Delivered notifications by kind",
	}, []string{"kind"})
	mAlertFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerter_delivery_failures_total", Help: "Notifications where no channel succeeded",
	})
)

type Deps struct {
	DB        TxRunner
	Runtime   Runtime
	Instances instance.Repo
	Targets   target.Repo
	States    target.StateRepo
	Events    event.Repo
	Settings  notify.SettingsRepo
	Protector notify.Protector
	Email     notify.EmailSender
	Webhook   notify.WebhookSender
	TZ        *timezone.Resolver
	Clock     notify.Clock
}

// Evaluator walks every running instance's target states each tick and
// drives the down/repeat/recovered alert state machine. At most one
// notification per target per tick; state only advances when a notification
// was actually delivered, so a failed send retries on the next tick.
type Evaluator struct {
	cfg config.AlertCfg
	d   Deps
	log *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func NewEvaluator(cfg config.AlertCfg, d Deps, log *zap.Logger) *Evaluator {
	if d.Clock == nil {
		d.Clock = systemClock{}
	}
	return &Evaluator{
		cfg: cfg,
		d:   d,
		log: log.With(zap.String("component", "alerter")),
	}
}

func (e *Evaluator) EvaluateTick(ctx context.Context) {
	for _, id := range e.d.Runtime.Running() {
		if ctx.Err() != nil {
			return
		}
		e.evaluateInstance(ctx, id)
	}
}

func (e *Evaluator) evaluateInstance(ctx context.Context, instanceID string) {
	tr := otel.Tracer("alerter")
	ctx, span := tr.Start(ctx, "alerter.instance")
	span.SetAttributes(attribute.String("instance.id", instanceID))
	defer span.End()
	log := obs.WithTrace(ctx, e.log)

	inst, err := e.d.Instances.GetByID(ctx, instanceID)
	if err != nil {
		log.Warn("instance read failed", zap.String("instance", instanceID), zap.Error(err))
		return
	}
	ch := e.loadChannels(ctx, instanceID, log)
	if !ch.any() {
		return
	}
	loc := e.d.TZ.Resolve(inst.TimeZoneID)

	targets, err := e.d.Targets.ListByInstance(ctx, instanceID)
	if err != nil {
		log.Warn("target list failed", zap.String("instance", instanceID), zap.Error(err))
		return
	}
	byID := make(map[int64]*target.Target, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}

	states, err := e.d.States.ListByInstance(ctx, instanceID)
	if err != nil {
		log.Warn("state list failed", zap.String("instance", instanceID), zap.Error(err))
		return
	}
	for _, st := range states {
		tg, ok := byID[st.TargetID]
		if !ok {
			continue
		}
		e.evaluateTarget(ctx, inst, loc, ch, tg, st)
	}
}

func (e *Evaluator) evaluateTarget(ctx context.Context, inst *instance.Instance, loc *time.Location,
	ch *channels, tg *target.Target, st *target.State) {

	now := e.d.Clock.Now()

	if !st.IsUp {
		downAge := now.Sub(st.StateSince)
		switch {
		case st.DownFirstNotifiedAt == nil:
			if downAge < e.cfg.DownAfter {
				return
			}
			if !e.dispatch(ctx, event.TypeAlertDown, inst, tg, st, now, loc, ch) {
				e.appendError(ctx, inst, tg, "AlertDown delivery failed for "+tg.URL)
				return
			}
			st.DownFirstNotifiedAt = &now
			st.LastNotifiedAt = &now
			nn := NextNotify(st.StateSince, now, now, loc, e.cfg)
			st.NextNotifyAt = &nn
			// A fresh outage starts with clean recovery bookkeeping.
			st.RecoveredDueAt = nil
			st.RecoveredNotifiedAt = nil
			e.commit(ctx, inst, tg, st, event.TypeAlertDown)
		case st.NextNotifyAt != nil && !now.Before(*st.NextNotifyAt):
			if !e.dispatch(ctx, event.TypeAlertDownRepeat, inst, tg, st, now, loc, ch) {
				e.appendError(ctx, inst, tg, "AlertDownRepeat delivery failed for "+tg.URL)
				return
			}
			st.LastNotifiedAt = &now
			nn := NextNotify(st.StateSince, now, now, loc, e.cfg)
			st.NextNotifyAt = &nn
			e.commit(ctx, inst, tg, st, event.TypeAlertDownRepeat)
		}
		return
	}

	// UP path. Nothing to announce unless a DOWN went out for this outage.
	if st.DownFirstNotifiedAt == nil {
		if st.RecoveredDueAt != nil || st.RecoveredNotifiedAt != nil {
			st.RecoveredDueAt = nil
			st.RecoveredNotifiedAt = nil
			e.commitFields(ctx, st)
		}
		return
	}
	if st.RecoveredNotifiedAt != nil {
		return
	}
	if st.RecoveredDueAt == nil {
		due := st.StateSince.Add(e.cfg.RecoveredAfter)
		st.RecoveredDueAt = &due
		e.commitFields(ctx, st)
	}
	if now.Before(*st.RecoveredDueAt) {
		return
	}
	if !e.dispatch(ctx, event.TypeAlertRecovered, inst, tg, st, now, loc, ch) {
		e.appendError(ctx, inst, tg, "AlertRecovered delivery failed for "+tg.URL)
		return
	}
	st.RecoveredNotifiedAt = &now
	st.DownFirstNotifiedAt = nil
	st.LastNotifiedAt = nil
	st.NextNotifyAt = nil
	st.RecoveredDueAt = nil
	e.commit(ctx, inst, tg, st, event.TypeAlertRecovered)
}

// dispatch fans a notification out to every enabled recipient and endpoint.
// Failures are isolated per destination; the notification counts as
// delivered when at least one destination took it.
func (e *Evaluator) dispatch(ctx context.Context, kind event.Type, inst *instance.Instance,
	tg *target.Target, st *target.State, now time.Time, loc *time.Location, ch *channels) bool {

	delivered := false
	if ch.emailOK() {
		msg := buildMessage(kind, inst, tg, st, now, loc, e.cfg.SubjPrefix, e.cfg.PublicBaseURL)
		for _, rc := range ch.recipients {
			if err := e.d.Email.Send(ctx, ch.smtp, ch.password, rc.Email, msg); err != nil {
				e.log.Warn("email delivery failed", zap.String("to", rc.Email), zap.Error(err))
			} else {
				delivered = true
			}
		}
	}
	if len(ch.webhooks) > 0 {
		p := buildPayload(kind, inst, tg, st, now)
		for _, wh := range ch.webhooks {
			if err := e.d.Webhook.Send(ctx, wh.URL, p); err != nil {
				e.log.Warn("webhook delivery failed", zap.String("url", wh.URL), zap.Error(err))
			} else {
				delivered = true
			}
		}
	}
	if delivered {
		mAlertsSent.WithLabelValues(string(kind)).Inc()
	} else {
		mAlertFailed.Inc()
	}
	return delivered
}

// commit writes the advanced alert fields and the audit event in one gated
// transaction so the state machine and the log can never disagree.
func (e *Evaluator) commit(ctx context.Context, inst *instance.Instance, tg *target.Target,
	st *target.State, kind event.Type) {

	err := e.d.DB.InWriteTx(ctx, func(ctx context.Context) error {
		if err := e.d.States.UpdateAlertFields(ctx, st); err != nil {
			return err
		}
		return e.d.Events.Insert(ctx, &event.Event{
			InstanceID: inst.ID,
			TargetID:   &tg.ID,
			Timestamp:  e.d.Clock.Now(),
			Type:       kind,
			Message:    titleFor(kind, tg.URL),
		})
	})
	if err != nil {
		e.log.Error("alert state commit failed", zap.Int64("target", tg.ID), zap.Error(err))
	}
}

func (e *Evaluator) commitFields(ctx context.Context, st *target.State) {
	err := e.d.DB.InWriteTx(ctx, func(ctx context.Context) error {
		return e.d.States.UpdateAlertFields(ctx, st)
	})
	if err != nil {
		e.log.Error("alert fields commit failed", zap.Int64("target", st.TargetID), zap.Error(err))
	}
}

func (e *Evaluator) appendError(ctx context.Context, inst *instance.Instance, tg *target.Target, msg string) {
	err := e.d.DB.InWriteTx(ctx, func(ctx context.Context) error {
		return e.d.Events.Insert(ctx, &event.Event{
			InstanceID: inst.ID,
			TargetID:   &tg.ID,
			Timestamp:  e.d.Clock.Now(),
			Type:       event.TypeError,
			Message:    msg,
		})
	})
	if err != nil {
		e.log.Error("error event append failed", zap.Int64("target", tg.ID), zap.Error(err))
	}
}

type channels struct {
	smtp       *notify.SMTPSettings
	password   string
	recipients []*notify.Recipient
	webhooks   []*notify.WebhookEndpoint
}

func (c *channels) emailOK() bool { return c.smtp.Configured() && len(c.recipients) > 0 }

func (c *channels) any() bool { return c.emailOK() || len(c.webhooks) > 0 }

func (e *Evaluator) loadChannels(ctx context.Context, instanceID string, log *zap.Logger) *channels {
	ch := &channels{}
	s, err := e.d.Settings.GetSMTP(ctx, instanceID)
	switch {
	case err == nil:
		ch.smtp = s
	case !errors.Is(err, sqlite.ErrNotFound):
		// A store failure is not "no SMTP configured"; email is skipped this
		// tick, webhooks still go out.
		log.Warn("smtp settings read failed", zap.String("instance", instanceID), zap.Error(err))
	}
	if ch.smtp != nil {
		rcs, err := e.d.Settings.ListEnabledRecipients(ctx, instanceID)
		if err != nil {
			log.Warn("recipient list failed", zap.String("instance", instanceID), zap.Error(err))
		}
		ch.recipients = rcs

		if ch.smtp.PasswordProtected != nil && *ch.smtp.PasswordProtected != "" {
			pw, err := e.d.Protector.Unprotect(*ch.smtp.PasswordProtected)
			if err != nil {
				// Logged once per evaluation; email is skipped, webhooks
				// still go out.
				log.Warn("smtp password unprotect failed, skipping email",
					zap.String("instance", instanceID), zap.Error(err))
				ch.smtp = nil
			} else {
				ch.password = pw
			}
		}
	}
	whs, err := e.d.Settings.ListEnabledWebhooks(ctx, instanceID)
	if err != nil {
		log.Warn("webhook list failed", zap.String("instance", instanceID), zap.Error(err))
	}
	ch.webhooks = whs
	return ch
}
