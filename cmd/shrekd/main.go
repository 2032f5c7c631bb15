package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shrekd/shrekd/core/gateway"
	"github.com/shrekd/shrekd/core/infra/buildinfo"
	"github.com/shrekd/shrekd/core/infra/bus"
	"github.com/shrekd/shrekd/core/infra/config"
	"github.com/shrekd/shrekd/core/infra/filestore"
	"github.com/shrekd/shrekd/core/infra/locks"
	"github.com/shrekd/shrekd/core/infra/logging"
	"github.com/shrekd/shrekd/core/infra/metrics"
	"github.com/shrekd/shrekd/core/infra/redisutil"
	"github.com/shrekd/shrekd/core/infra/secrets"
	"github.com/shrekd/shrekd/core/reaper"
	"github.com/shrekd/shrekd/core/share"
	flag "github.com/spf13/pflag"
)

const (
	serviceName     = "shrekd"
	shutdownTimeout = 15 * time.Second
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to a YAML config file (env: SHREKD_CONFIG)")
	showVersion := flag.BoolP("version", "v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Banner(serviceName))
		return
	}

	buildinfo.Log(serviceName)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("shrekd error: %v", err)
	}
}

type app struct {
	client  *redis.Client
	db      int
	store   *share.RedisStore
	files   *filestore.Store
	service *share.Service
	events  bus.Publisher
	metrics metrics.Metrics
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build connects the backing services and wires the share service.
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{metrics: metrics.NewProm(serviceName), events: bus.Noop{}}

	client, opts, err := redisutil.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.client, a.db = client, opts.DB
	logging.Info(serviceName, "connected to redis", "url", secrets.RedactURL(cfg.RedisURL), "db", opts.DB)
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.store = share.NewRedisStore(client, cfg.StoragePrefix)

	files, err := filestore.New(cfg.DataDir, cfg.TmpDir)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	a.files = files

	if cfg.NatsURL != "" {
		natsBus, err := bus.NewNatsBus(cfg.NatsURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.closers = append(a.closers, natsBus.Close)
		a.events = bus.NewEventPublisher(natsBus)
		logging.Info(serviceName, "publishing record events", "nats", secrets.RedactURL(cfg.NatsURL), "status", natsBus.Status())
	}

	curve, err := share.NewRetentionCurve(cfg.MinAge, cfg.MaxAge, uint64(cfg.MaxFileSize))
	if err != nil {
		a.close()
		return nil, err
	}
	svc, err := share.NewService(share.Options{
		Store: a.store,
		Files: files,
		Slugs: share.NewSlugAllocator(cfg.SlugLength),
		Curve: curve,
		Limits: share.Limits{
			File:  cfg.MaxFileSize,
			Paste: cfg.MaxPasteSize,
			URL:   cfg.MaxURLSize,
		},
		Events:  a.events,
		Metrics: a.metrics,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.service = svc
	return a, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source, err := reaper.NewRedisSource(ctx, a.client, a.db, cfg.ConfigureKeyspaceEvents)
	if err != nil {
		return fmt.Errorf("subscribe keyspace events: %w", err)
	}
	defer source.Close()

	sweepLock, err := locks.NewLease(a.client, cfg.StoragePrefix+"-lease:sweep", sweepLeaseTTL(cfg.SweepInterval))
	if err != nil {
		return err
	}
	gc := reaper.New(reaper.Options{
		Source:    source,
		Records:   a.store,
		Files:     a.files,
		Prefix:    cfg.StoragePrefix,
		Metrics:   a.metrics,
		Events:    a.events,
		SweepLock: sweepLock,
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := gc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("reaper: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		gc.StartSweeper(ctx, cfg.SweepInterval)
	}()

	metricsSrv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      metricsMux(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.MetricsAddr != "" {
		go func() {
			logging.Info(serviceName, "metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error(serviceName, "metrics server error", "error", err)
			}
		}()
	}

	apiSrv := gateway.NewServer(cfg.ListenAddr(), gateway.NewHandler(a.service, metrics.NewGatewayProm(serviceName)))
	go func() {
		logging.Info(serviceName, "http listening", "addr", apiSrv.Addr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info(serviceName, "shutting down")
	case runErr = <-errCh:
		logging.Error(serviceName, "component failed", "error", runErr)
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warn(serviceName, "http shutdown", "error", err)
	}
	if cfg.MetricsAddr != "" {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	_ = source.Close()
	wg.Wait()
	return runErr
}

// sweepLeaseTTL outlives one sweep so a crashed holder frees it eventually.
func sweepLeaseTTL(interval time.Duration) time.Duration {
	if interval <= 0 || interval > 10*time.Minute {
		return 10 * time.Minute
	}
	return interval
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
