// Command poold runs the device-pool orchestrator: it wires the element
// registry, plug-in loader, property binder, event bus, scheduler,
// hot-reload orchestrator, and housekeeping against the configured
// external collaborators (config store, identity store, publisher), then
// serves the diagnostics surface until signalled to stop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/r3e-network/pool-orchestrator/internal/configstore"
	"github.com/r3e-network/pool-orchestrator/internal/diagnostics"
	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/persistence"
	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/pool"
	"github.com/r3e-network/pool-orchestrator/internal/poolconfig"
	"github.com/r3e-network/pool-orchestrator/internal/property"
	"github.com/r3e-network/pool-orchestrator/internal/publisher"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
	"github.com/r3e-network/pool-orchestrator/internal/reload"
	"github.com/r3e-network/pool-orchestrator/internal/scheduler"
	"github.com/r3e-network/pool-orchestrator/internal/session"
	"github.com/r3e-network/pool-orchestrator/pkg/logging"
	"github.com/r3e-network/pool-orchestrator/pkg/shutdown"
)

func main() {
	cfg, err := poolconfig.Load()
	if err != nil {
		logging.NewDefault("poold").WithError(err).Fatal("configuration load failed")
	}
	log := logging.New(cfg.Logging)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("poold exited with error")
	}
}

func run(cfg *poolconfig.Config, log *logging.Logger) error {
	ctx := context.Background()

	store, err := buildConfigStore(cfg)
	if err != nil {
		return err
	}

	var persist persistence.Store
	if cfg.Persistence.DSN != "" {
		if cfg.Persistence.MigrateOnStart {
			if err := persistence.Migrate(cfg.Persistence.DSN); err != nil {
				return err
			}
		}
		db, err := sqlx.Connect("postgres", cfg.Persistence.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		persist = persistence.NewPostgresStore(db)
	}

	alloc := elementid.NewAllocator()
	reg := registry.New(alloc)

	if persist != nil {
		n, err := persistence.RestoreIDs(ctx, persist, reg)
		if err != nil {
			return err
		}
		log.WithField("elements", n).Info("re-adopted persisted element ids")
	}

	loader, err := pluginloader.New(cfg.Loader.PoolPath, cfg.Loader.ProgramCache, log)
	if err != nil {
		return err
	}

	bus := eventbus.New(log)
	metrics := diagnostics.NewMetrics()
	bus.SetObserver(func(eventbus.Event) { metrics.EventsFired.Inc() })

	sessions := session.NewManager()
	binder := property.NewBinder(store)
	p := pool.New(reg, sessions, loader, binder, bus, persist, log)

	sched := scheduler.New(reg, sessions, bus, scheduler.Config{
		DefaultPollInterval: cfg.Scheduler.PollInterval(),
		PerControllerPoll:   map[elementid.ID]time.Duration{},
		MaxInactive:         cfg.Scheduler.MaxInactive(),
	}, log)
	sched.SetHooks(scheduler.Hooks{
		MotionStarted:   metrics.MotionsStarted.Inc,
		MotionCompleted: metrics.MotionsCompleted.Inc,
	})

	reloader := reload.New(reg, sessions, loader, binder, bus, log)
	reloader.SetOnComplete(metrics.ReloadsTotal.Inc)

	pub := publisher.New(log)
	p.AddListener(eventbus.ListenerFunc(func(stack *eventbus.Stack) {
		refreshElementGauges(ctx, reg, metrics)
	}))

	coord := shutdown.New()

	// Housekeeping: temporary-composite aging on the configured
	// cron cadence.
	c := cron.New()
	if _, err := c.AddFunc(cfg.Scheduler.HousekeepingCron, func() {
		if coord.IsShuttingDown() {
			return
		}
		if n := sched.AgeSweep(ctx); n > 0 {
			log.WithField("collected", n).Info("temporary composite sweep")
		}
	}); err != nil {
		return err
	}
	c.Start()

	diagSrv := diagnostics.New(reg, cfg.Diagnostics.JWTSecret, log)
	httpSrv := &http.Server{Addr: cfg.Diagnostics.ListenAddr, Handler: diagSrv.Router()}
	go func() {
		log.WithField("addr", cfg.Diagnostics.ListenAddr).Info("diagnostics listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("diagnostics server failed")
		}
	}()

	pubSrv := &http.Server{Addr: cfg.Publisher.ListenAddr, Handler: pub.Router()}
	go func() {
		log.WithField("addr", cfg.Publisher.ListenAddr).Info("publisher listening")
		if err := pubSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("publisher server failed")
		}
	}()

	// The publisher watches the pool's own listener set so connected
	// clients learn about element list/structure changes; individual
	// elements' own events are not subscribed to.
	pub.Watch(p)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutdown requested")
	sched.RequestShutdown()
	c.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = pubSrv.Shutdown(shutdownCtx)
	_ = pub.Shutdown(shutdownCtx)
	_ = coord.ShutdownAndWait(10 * time.Second)

	log.Info("poold stopped")
	return nil
}

func buildConfigStore(cfg *poolconfig.Config) (configstore.Store, error) {
	switch cfg.ConfigStore.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.ConfigStore.RedisURL)
		if err != nil {
			return nil, err
		}
		return configstore.NewRedisStore(redis.NewClient(opts), "pool:"), nil
	default:
		return configstore.NewMemoryStore(), nil
	}
}

func refreshElementGauges(ctx context.Context, reg *registry.Registry, metrics *diagnostics.Metrics) {
	for _, t := range []element.Type{
		element.TypeController, element.TypeMotor, element.TypePseudoMotor,
		element.TypeCounterTimer, element.TypeZeroD, element.TypeOneD, element.TypeTwoD,
		element.TypePseudoCounter, element.TypeMotorGroup, element.TypeMeasurementGroup,
		element.TypeCommunication, element.TypeIORegister, element.TypeInstrument,
	} {
		metrics.ElementsTotal.WithLabelValues(string(t)).Set(float64(len(reg.ByType(ctx, t))))
	}
}
