package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	ahandler "gradenorm/internal/aggregation/handler"
	ametrics "gradenorm/internal/aggregation/metrics"
	asvc "gradenorm/internal/aggregation/service"
	"gradenorm/internal/audit"
	auditstore "gradenorm/internal/audit/store"
	"gradenorm/internal/catalog"
	chandler "gradenorm/internal/conversion/handler"
	cmetrics "gradenorm/internal/conversion/metrics"
	cmodels "gradenorm/internal/conversion/models"
	csvc "gradenorm/internal/conversion/service"
	cstore "gradenorm/internal/conversion/store"
	ehandler "gradenorm/internal/equivalence/handler"
	emetrics "gradenorm/internal/equivalence/metrics"
	esvc "gradenorm/internal/equivalence/service"
	estore "gradenorm/internal/equivalence/store"
	hhandler "gradenorm/internal/hierarchy/handler"
	hmetrics "gradenorm/internal/hierarchy/metrics"
	hsvc "gradenorm/internal/hierarchy/service"
	hstore "gradenorm/internal/hierarchy/store"
	httpapi "gradenorm/internal/http"
	"gradenorm/internal/platform/config"
	"gradenorm/internal/platform/httpserver"
	"gradenorm/internal/platform/logger"
	"gradenorm/internal/platform/metrics"
	"gradenorm/internal/platform/postgres"
	platformredis "gradenorm/internal/platform/redis"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	var (
		hierStore  hsvc.Store
		convStore  csvc.Store
		equivStore esvc.Store
		audStore   audit.Store
		checks     = map[string]httpapi.HealthChecker{}
	)
	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		db, err := postgres.OpenSQL(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.ApplySchemas(ctx, pool,
			hstore.Schema(), estore.Schema(), cstore.Schema(), auditstore.Schema()); err != nil {
			return err
		}

		hierStore = hstore.NewPostgres(pool)
		convStore = cstore.NewPostgres(db)
		equivStore = estore.NewPostgres(pool)
		audStore = auditstore.NewPostgres(db)
		checks["postgres"] = healthFunc(pool.Ping)
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		hierStore = hstore.NewInMemory()
		convStore = cstore.NewInMemory()
		equivStore = estore.NewInMemory()
		audStore = auditstore.NewInMemory()
	}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var convOpts []csvc.Option
	if rdb != nil {
		defer rdb.Close()
		checks["redis"] = rdb
		convOpts = append(convOpts, csvc.WithLatestIndex(cstore.NewRedisLatestIndex(rdb.Client)))
	}

	inbox := make(chan audit.Event, 256)
	worker := audit.NewWorker(audStore, inbox)
	publisher := audit.Fanout{audit.NewChannelPublisher(inbox)}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer kafka.Close(context.Background())
		publisher = append(publisher, kafka)
	}

	hierarchySvc := hsvc.New(hierStore, cat,
		hsvc.WithLogger(log),
		hsvc.WithMetrics(hmetrics.New()),
		hsvc.WithAuditPublisher(publisher),
	)
	convOpts = append(convOpts,
		csvc.WithLogger(log),
		csvc.WithMetrics(cmetrics.New()),
		csvc.WithAuditPublisher(publisher),
	)
	conversionSvc := csvc.New(convStore, hierarchySvc, cat, convOpts...)
	equivalenceSvc := esvc.New(equivStore,
		esvc.WithLogger(log),
		esvc.WithMetrics(emetrics.New()),
		esvc.WithAuditPublisher(publisher),
	)
	aggregationSvc := asvc.New(hierarchySvc, conversionSvc, cat,
		asvc.WithDefaultRule(cmodels.RuleContext{
			Authority: cfg.RuleAuthority,
			Version:   cfg.RuleVersion,
			Method:    cfg.RuleMethod,
		}),
		asvc.WithLogger(log),
		asvc.WithMetrics(ametrics.New()),
	)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:  log,
		Metrics: metrics.NewHTTP(),
		Handlers: []httpapi.Registrar{
			hhandler.New(hierarchySvc, log),
			chandler.New(conversionSvc, log),
			ehandler.New(equivalenceSvc, log),
			ahandler.New(aggregationSvc, log),
		},
		Checks: checks,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting gradenorm", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadCatalog(cfg config.Server) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.CatalogPath)
}

// healthFunc adapts a ping function to the router's HealthChecker.
type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }
