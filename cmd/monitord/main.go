package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/api"
	"github.com/scottbadams/ITWebsiteMonitor/internal/config"
	"github.com/scottbadams/ITWebsiteMonitor/internal/obs"
	"github.com/scottbadams/ITWebsiteMonitor/internal/repository/sqlite"
	"github.com/scottbadams/ITWebsiteMonitor/internal/security"
	alerterSvc "github.com/scottbadams/ITWebsiteMonitor/internal/services/alerter"
	notifySvc "github.com/scottbadams/ITWebsiteMonitor/internal/services/notify"
	"github.com/scottbadams/ITWebsiteMonitor/internal/services/probe"
	"github.com/scottbadams/ITWebsiteMonitor/internal/services/scheduler"
	"github.com/scottbadams/ITWebsiteMonitor/internal/timezone"
)

func main() {
	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := flag.String("config", "config/monitord.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, Service: "monitord"})
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting monitord",
		zap.String("data_root", cfg.Store.DataRoot),
		zap.String("api_addr", cfg.Server.APIAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, &obs.OTELConfig{
		Enable:      cfg.OTel.Enable,
		Endpoint:    cfg.OTel.OTLPEndpoint,
		ServiceName: cfg.OTel.ServiceName,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := sqlite.Open(ctx, sqlite.Config{
		DataRoot:     cfg.Store.DataRoot,
		QueryTimeout: cfg.Store.QueryTimeout,
	}, l)
	if err != nil {
		l.Fatal("store open", zap.Error(err))
	}
	defer db.Close()

	if err := sqlite.Migrate(ctx, db); err != nil {
		l.Fatal("migrations", zap.Error(err))
	}

	// run metrics server
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	// wiring
	instances := sqlite.NewInstanceRepo(db)
	targets := sqlite.NewTargetRepo(db)
	checks := sqlite.NewCheckRepo(db)
	states := sqlite.NewStateRepo(db)
	events := sqlite.NewEventRepo(db)
	settings := sqlite.NewNotifyRepo(db)

	protector, err := security.NewProtector(cfg.Store.DataRoot, security.Purpose)
	if err != nil {
		l.Fatal("protector init", zap.Error(err))
	}

	engine := probe.NewEngine(cfg.Probe, l)
	persister := scheduler.NewPersister(db, checks, states, l)
	cycle := scheduler.NewCycle(instances, targets, engine, persister, l)
	manager := scheduler.NewManager(ctx, cycle, l)

	evaluator := alerterSvc.NewEvaluator(cfg.Alert, alerterSvc.Deps{
		DB:        db,
		Runtime:   manager,
		Instances: instances,
		Targets:   targets,
		States:    states,
		Events:    events,
		Settings:  settings,
		Protector: protector,
		Email:     notifySvc.NewSMTPSender(cfg.SMTP, l),
		Webhook:   notifySvc.NewWebhookSender(cfg.Webhook, l),
		TZ:        timezone.NewResolver(l),
	}, l)
	alertRunner := alerterSvc.NewRunner(evaluator, cfg.Alert.Tick, l)

	apiSrv := api.NewServer(cfg.Server.APIAddr,
		api.NewHandler(manager, instances, targets, states, events, l), l)

	// workers come up before the first evaluator tick so alerting sees the
	// running set a pre-restart process had
	if err := scheduler.AutoStart(ctx, manager, instances, l); err != nil {
		l.Fatal("autostart", zap.Error(err))
	}

	// run
	errCh := make(chan error, 2)
	go func() { errCh <- alertRunner.Run(ctx) }()
	go func() { errCh <- apiSrv.Run() }()

	l.Info("monitord started")

	// loop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			l.Error("runner error", zap.Error(err))
		}
	}

	// graceful shutdown
	manager.StopAll()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
