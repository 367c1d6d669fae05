// Command webhookd runs the outbound webhook engine: the admin API, the
// delivery worker pool, the retry scheduler and the retention purge.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/oficinapro/backend/modules/webhooks"
	"github.com/oficinapro/backend/pkg/config"
	"github.com/oficinapro/backend/pkg/email"
	"github.com/oficinapro/backend/pkg/feature"
	"github.com/oficinapro/backend/pkg/httpserver"
	"github.com/oficinapro/backend/pkg/logger"
	"github.com/oficinapro/backend/pkg/pg"
	"github.com/oficinapro/backend/pkg/queue"
	"github.com/oficinapro/backend/pkg/ratelimiter"
	"github.com/oficinapro/backend/pkg/redis"
	"github.com/oficinapro/backend/pkg/requestid"
	"github.com/oficinapro/backend/pkg/webhook"
)

const serviceName = "webhookd"

type appConfig struct {
	AppEnv           string `env:"APP_ENV" envDefault:"development"`
	FeatureFlagsFile string `env:"FEATURE_FLAGS_FILE"`
	StorageDriver    string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	RedisEnabled     bool   `env:"REDIS_ENABLED" envDefault:"true"`
}

type store interface {
	webhooks.EndpointStore
	webhooks.AttemptStore
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.AppEnv, serviceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("webhookd stopped with error", logger.Error(err))
		stop()
		os.Exit(1)
	}
	log.Info("webhookd stopped")
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	var (
		pgCfg     pg.Config
		redisCfg  redis.Config
		httpCfg   httpserver.Config
		emailCfg  email.Config
		engineCfg webhooks.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&pgCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&emailCfg) },
		func() error { return config.Load(&engineCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	var checks []httpserver.Check

	st, storeCheck, closeStore, err := openStore(ctx, cfg, pgCfg, engineCfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if storeCheck != nil {
		checks = append(checks, storeCheck)
	}

	var rdb *goredis.Client
	if cfg.RedisEnabled {
		if rdb, err = redis.Connect(ctx, redisCfg); err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("failed to close redis client", logger.Error(err))
			}
		}()
		checks = append(checks, redis.Healthcheck(rdb))
	} else {
		log.Warn("redis disabled, feature flags and rate limits are kept in memory")
	}

	flags, err := openFlags(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := flags.Close(); err != nil {
			log.Error("failed to close feature flag provider", logger.Error(err))
		}
	}()

	var limiterStore ratelimiter.Store = ratelimiter.NewMemoryStore()
	if rdb != nil {
		limiterStore = ratelimiter.NewRedisStore(rdb, serviceName)
	}
	testLimiter, err := ratelimiter.NewBucket(limiterStore, engineCfg.TestRateLimiter())
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := append(engineCfg.Options(),
		webhooks.WithLogger(log),
		webhooks.WithMetrics(webhooks.NewMetrics(registry, "oficinapro")),
		webhooks.WithNotifier(newNotifier(emailCfg, engineCfg.AlertEmail, log)),
	)

	client := webhook.NewClient()
	pool := queue.NewPool(
		queue.WithWorkers(engineCfg.Workers),
		queue.WithQueueSize(engineCfg.QueueSize),
		// Jobs must finish before their attempt lease runs out.
		queue.WithJobTimeout(min(webhooks.MaxTimeout+time.Minute, engineCfg.ClaimLease)),
		queue.WithPoolLogger(log),
	)

	deliverer := webhooks.NewDeliverer(st, st, client, opts...)
	dispatcher := webhooks.NewDispatcher(st, st, deliverer, pool, flags, opts...)
	retries := webhooks.NewRetryScheduler(st, st, deliverer, pool, opts...)
	service := webhooks.NewService(st, st, client, opts...)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(log, checks...))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Mount("/api/v1", webhooks.NewHandler(service, log, webhooks.WithTestLimiter(testLimiter)).Routes())
	r.Mount("/internal", webhooks.NewEventHandler(dispatcher, log).Routes())

	srv := httpserver.New(httpCfg, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(pool.Run(gctx))
	g.Go(queue.NewPeriodic("webhook-retries", engineCfg.RetryInterval, retries.Tick,
		queue.WithPeriodicLogger(log),
	).Run(gctx))
	g.Go(queue.NewPeriodic("webhook-purge", engineCfg.PurgeInterval, service.PurgeExpired,
		queue.WithPeriodicLogger(log),
		queue.WithoutImmediateRun(),
	).Run(gctx))
	g.Go(func() error { return srv.Run(gctx, r) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg appConfig, pgCfg pg.Config, engineCfg webhooks.Config, log *slog.Logger) (store, httpserver.Check, func(), error) {
	switch cfg.StorageDriver {
	case "memory":
		log.Warn("using in-memory webhook storage, attempts are lost on restart")
		return webhooks.NewMemoryStore(), nil, func() {}, nil
	case "postgres", "":
		cipher, err := engineCfg.SecretCipher()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("WEBHOOK_SECRET_KEY: %w", err)
		}
		var opts []webhooks.PostgresOption
		if cipher != nil {
			opts = append(opts, webhooks.WithSecretCipher(cipher))
		} else {
			log.Warn("WEBHOOK_SECRET_KEY not set, endpoint secrets are stored in plaintext")
		}

		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.Migrate(ctx, pool, pgCfg, webhooks.Migrations, log); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return webhooks.NewPostgresStore(pool, opts...), pg.Healthcheck(pool), pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

func openFlags(ctx context.Context, cfg appConfig, rdb *goredis.Client, log *slog.Logger) (feature.Provider, error) {
	var provider feature.Provider = feature.NewMemoryProvider()
	if rdb != nil {
		provider = feature.NewRedisProvider(rdb)
	}

	if cfg.FeatureFlagsFile != "" {
		seed, err := feature.LoadSeedFile(cfg.FeatureFlagsFile)
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
		if err := seed.Apply(ctx, provider); err != nil {
			_ = provider.Close()
			return nil, err
		}
		log.Info("feature flags seeded", slog.String("file", cfg.FeatureFlagsFile))
	}
	return provider, nil
}

func newNotifier(cfg email.Config, alertEmail string, log *slog.Logger) webhooks.Notifier {
	notifiers := webhooks.Notifiers{webhooks.NewLogNotifier(log)}
	if alertEmail == "" {
		return notifiers
	}

	var sender email.Sender = email.NewLogSender(log)
	if cfg.PostmarkServerToken != "" {
		postmark, err := email.NewPostmarkSender(cfg)
		if err != nil {
			log.Error("postmark disabled, falling back to log sender", logger.Error(err))
		} else {
			sender = postmark
		}
	}
	return append(notifiers, webhooks.NewEmailNotifier(sender, alertEmail))
}
