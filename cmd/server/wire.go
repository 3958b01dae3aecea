package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"zahori/internal/enrichment/cache"
	enrichhandler "zahori/internal/enrichment/handler"
	enrichmetrics "zahori/internal/enrichment/metrics"
	"zahori/internal/enrichment/orchestrator"
	"zahori/internal/enrichment/providers"
	"zahori/internal/enrichment/providers/abuseipdb"
	"zahori/internal/enrichment/providers/dnsrecords"
	"zahori/internal/enrichment/providers/hunter"
	"zahori/internal/enrichment/providers/ipapi"
	"zahori/internal/enrichment/providers/numverify"
	"zahori/internal/enrichment/providers/rdap"
	"zahori/internal/enrichment/providers/shodan"
	enrichservice "zahori/internal/enrichment/service"
	"zahori/internal/expansion"
	"zahori/internal/graph/events"
	graphhandler "zahori/internal/graph/handler"
	"zahori/internal/graph/lock"
	"zahori/internal/graph/merge"
	graphmetrics "zahori/internal/graph/metrics"
	graphservice "zahori/internal/graph/service"
	"zahori/internal/graph/store"
	"zahori/internal/platform/config"
	"zahori/internal/platform/kafka"
	httpmetrics "zahori/internal/platform/metrics"
	platformredis "zahori/internal/platform/redis"
	"zahori/internal/plugins"
	"zahori/internal/plugins/builtin"
	pluginhandler "zahori/internal/plugins/handler"
	pluginmetrics "zahori/internal/plugins/metrics"
	"zahori/internal/ratelimit"
	httptransport "zahori/internal/transport/http"
)

type app struct {
	router  http.Handler
	closers []func(context.Context)
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

// build wires every component. On error, resources opened so far are released.
func build(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()
	checks := map[string]httptransport.HealthCheck{}
	reg := prometheus.DefaultRegisterer

	graphStore, err := openStore(ctx, cfg, a, checks)
	if err != nil {
		return nil, err
	}

	var redisClient redis.Cmdable
	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		redisClient = rc.Client
		checks["redis"] = rc.Health
		a.closers = append(a.closers, func(context.Context) { _ = rc.Close() })
	}

	publisher, err := openPublisher(ctx, cfg, log, a, checks)
	if err != nil {
		return nil, err
	}

	// Providers.
	enrichMetrics := enrichmetrics.NewWithRegisterer(reg)
	httpClient := &http.Client{}
	guard := func(ad providers.Adapter) *providers.Guard {
		return providers.Guarded(ad,
			providers.WithTimeout(cfg.ProviderTimeout),
			providers.WithLogger(log),
			providers.WithMetrics(enrichMetrics),
		)
	}
	urls := cfg.ProviderURLs
	dnsAdapter := dnsrecords.New(nil)
	geoAdapter := ipapi.New(urls["ipapi"], httpClient)
	rdapAdapter := rdap.New(urls["rdap"], httpClient)
	shodanAdapter := shodan.New(urls["shodan"], httpClient)
	// Plugins share these guards, and with them the breakers.
	dnsGuard, geoGuard := guard(dnsAdapter), guard(geoAdapter)
	rdapGuard, shodanGuard := guard(rdapAdapter), guard(shodanAdapter)

	orch, err := orchestrator.New([]orchestrator.Pipeline{
		orchestrator.IPPipeline(shodanGuard, guard(abuseipdb.New(urls["abuseipdb"], httpClient)), geoGuard),
		orchestrator.DomainPipeline(dnsGuard, rdapGuard),
		orchestrator.EmailPipeline(guard(hunter.New(urls["hunter"], httpClient))),
		orchestrator.PhonePipeline(guard(numverify.New(urls["numverify"], httpClient))),
	}, orchestrator.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	// Graph.
	var locker lock.Locker = lock.NewInProcess()
	if redisClient != nil {
		locker = lock.NewRedis(redisClient, cfg.LockTTL, lock.WithLogger(log))
	}
	engine := merge.New(graphStore,
		merge.WithLocker(locker),
		merge.WithPublisher(publisher),
		merge.WithLogger(log),
		merge.WithMetrics(graphmetrics.NewWithRegisterer(reg)),
	)
	cases := graphservice.New(graphStore, engine, graphservice.WithLogger(log))

	var recordCache cache.Store = cache.NewInMemoryCache(cfg.CacheTTL)
	if redisClient != nil {
		recordCache = cache.NewRedisCache(redisClient, cfg.CacheTTL)
	}
	enricher := enrichservice.New(orch,
		enrichservice.WithCache(recordCache),
		enrichservice.WithDefaultCredentials(cfg.DefaultCredentials),
		enrichservice.WithLogger(log),
		enrichservice.WithMetrics(enrichMetrics),
		enrichservice.WithGraph(graphStore, engine),
	)

	// Plugins.
	registry := plugins.NewRegistry(plugins.WithMetrics(pluginmetrics.NewWithRegisterer(reg)))
	pluginDeps := builtin.Deps{
		DNS: dnsAdapter, Geo: geoAdapter, RDAP: rdapAdapter, Shodan: shodanAdapter,
		Guards: map[string]*providers.Guard{
			dnsrecords.Name: dnsGuard,
			ipapi.Name:      geoGuard,
			rdap.Name:       rdapGuard,
			shodan.Name:     shodanGuard,
		},
	}
	for _, p := range builtin.All(pluginDeps) {
		if err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("register plugin: %w", err)
		}
	}
	expander, err := expansion.New(graphStore, registry, engine,
		expansion.WithTimeout(cfg.ProviderTimeout),
		expansion.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	routerCfg := httptransport.Config{
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        httpmetrics.NewWithRegisterer(reg),
		Checks:         checks,
	}
	if cfg.RateLimit > 0 {
		var limits ratelimit.Store
		if redisClient != nil {
			limits = ratelimit.NewRedisStore(redisClient)
		} else {
			mem := ratelimit.NewInMemoryStore()
			stop := mem.StartSweeper(cfg.RateWindow, cfg.RateWindow)
			a.closers = append(a.closers, func(context.Context) { stop() })
			limits = mem
		}
		routerCfg.Throttle = ratelimit.NewLimiter(limits, cfg.RateLimit, cfg.RateWindow, log).Middleware
	}
	a.router = httptransport.NewRouter(routerCfg,
		[]httptransport.Routes{graphhandler.New(cases, log)},
		[]httptransport.Routes{enrichhandler.New(enricher, log), pluginhandler.New(registry, expander, log)},
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.Server, a *app, checks map[string]httptransport.HealthCheck) (store.Store, error) {
	var (
		sqlStore *store.SQLStore
		err      error
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		sqlStore, err = store.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.StoreSQLite:
		sqlStore, err = store.OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return store.NewInMemoryStore(), nil
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) { _ = sqlStore.Close() })
	if err := sqlStore.Migrate(ctx); err != nil {
		return nil, err
	}
	checks["store"] = sqlStore.DB().PingContext
	return sqlStore, nil
}

// openPublisher returns a Kafka-backed async publisher when brokers are
// configured, else a no-op one.
func openPublisher(ctx context.Context, cfg config.Server, log *slog.Logger, a *app, checks map[string]httptransport.HealthCheck) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NopPublisher{}, nil
	}
	cl, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) { cl.Close() })
	if err := kafka.EnsureTopic(ctx, cl, cfg.KafkaTopic, 3, 1); err != nil {
		return nil, err
	}
	checks["kafka"] = func(ctx context.Context) error { return kafka.Ping(ctx, cl) }

	async := events.NewAsync(events.NewKafkaPublisher(cl, cfg.KafkaTopic), events.WithLogger(log))
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := async.Close(ctx); err != nil {
			log.Warn("event publisher did not drain", "error", err)
		}
	})
	return async, nil
}
