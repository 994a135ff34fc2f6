// Package app wires the service components from configuration. The api,
// engine and solve binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"routeopt/internal/assemble"
	"routeopt/internal/cache"
	"routeopt/internal/config"
	"routeopt/internal/events"
	"routeopt/internal/geo"
	"routeopt/internal/metrics"
	"routeopt/internal/queue"
	"routeopt/internal/search"
	"routeopt/internal/solver"
	"routeopt/internal/store"
	"routeopt/internal/worker"
)

// Deps holds the wired components. Queue and Redis are nil without
// REDIS_URL.
type Deps struct {
	Config *config.AppConfig
	Log    *zap.Logger

	Redis  *redis.Client
	Store  store.Store
	Queue  *queue.Redis
	Broker *events.Broker
	// Events publishes to the broker and, when configured, Redis and the
	// webhook.
	Events events.Publisher
	// Follow streams events to API clients: Redis pub/sub when available,
	// otherwise the in-process broker.
	Follow events.Follower
	Runner *solver.Runner

	closers []func() error
}

// Build connects every backing service named by cfg. Close releases them.
func Build(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*Deps, error) {
	if log == nil {
		log = zap.NewNop()
	}
	metrics.RegisterDefault()
	d := &Deps{Config: cfg, Log: log, Broker: events.NewBroker()}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		d.Redis = redis.NewClient(opts)
		d.closers = append(d.closers, d.Redis.Close)
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		d.Queue = queue.NewRedisFromClient(d.Redis, cfg.Queue.Name)
		d.Queue.MaxDeliveries = cfg.Queue.MaxDeliveries
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Store = st
	if c, ok := st.(interface{ Close() error }); ok {
		d.closers = append(d.closers, c.Close)
	}

	sinks := events.Multi{d.Broker}
	d.Follow = d.Broker
	if d.Redis != nil {
		rp := events.NewRedisPublisherFromClient(d.Redis, log)
		sinks = append(sinks, rp)
		d.Follow = rp
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, events.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.MaxAttempts, log))
	}
	d.Events = sinks

	var distances cache.Cache
	if d.Redis != nil {
		distances = cache.NewRedisAdapterFromClient(d.Redis)
	}
	d.Runner = solver.NewRunner(
		assemble.New(assemble.DefaultValues, Providers(cfg.Routing, distances, log), log),
		search.NewALNS(log),
		solver.Options{MaxIterations: cfg.SearchMaxIterations, Seed: cfg.SearchSeed},
		log,
	)

	log.Info("components ready",
		zap.Bool("redis", d.Redis != nil),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.Bool("road_distance", cfg.Routing.BaseURL != ""),
		zap.Bool("webhook", cfg.Webhook.URL != ""),
	)
	return d, nil
}

// Worker returns a queue consumer, or nil without a queue.
func (d *Deps) Worker() *worker.Worker {
	if d.Queue == nil {
		return nil
	}
	return &worker.Worker{
		Queue:     d.Queue,
		Runner:    d.Runner,
		Store:     d.Store,
		Events:    d.Events,
		Source:    d.Config.ServiceName,
		Wait:      d.Config.Queue.Wait,
		Heartbeat: d.Config.Queue.LeaseTimeout / 3,
		Log:       d.Log.Named("worker"),
	}
}

// Close releases connections in reverse order of opening.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Providers builds the distance factory. ROAD_DISTANCE is only available
// with a routing base URL; every routed provider shares one limiter.
func Providers(cfg config.RoutingConfig, distances cache.Cache, log *zap.Logger) geo.Factory {
	if cfg.BaseURL == "" {
		return geo.Factory{}
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), max(cfg.Burst, 1))
	return geo.Factory{Road: func(avoidTolls bool) (geo.Provider, error) {
		client, err := geo.NewORSClient(geo.ORSOptions{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Profile:    cfg.Profile,
			Timeout:    cfg.Timeout,
			AvoidTolls: avoidTolls,
		})
		if err != nil {
			return nil, err
		}
		return geo.NewRouted(client, geo.RoutedOptions{
			Limiter:     limiter,
			BlockSize:   cfg.BlockSize,
			Concurrency: cfg.Concurrency,
			CallTimeout: cfg.Timeout,
			Filler:      cfg.DistanceFiller,
			Cache:       distances,
			CacheTTL:    cfg.CacheTTL,
			CacheScope:  fmt.Sprintf("%s:%t", cfg.Profile, avoidTolls),
			Logger:      log,
		}), nil
	}}
}

func openStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL not set, results are kept in memory")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pg.Ping(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	migrate := pg.Migrate
	if fi, serr := os.Stat(cfg.MigrationsDir); serr == nil && fi.IsDir() {
		migrate = func(ctx context.Context) error { return pg.MigrateDir(ctx, cfg.MigrationsDir) }
	}
	if err := migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return pg, nil
}
