// crediflow is the consumer credit application service. main assembles the
// infrastructure from configuration, wires the domain services and runs the
// HTTP server alongside the queue workers until shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"crediflow/internal/application"
	apphandler "crediflow/internal/application/handler"
	appmetrics "crediflow/internal/application/metrics"
	"crediflow/internal/audit"
	"crediflow/internal/auth"
	authhandler "crediflow/internal/auth/handler"
	"crediflow/internal/evaluation"
	webhookhandler "crediflow/internal/evaluation/handler"
	evalmetrics "crediflow/internal/evaluation/metrics"
	"crediflow/internal/notification"
	"crediflow/internal/platform/broadcast"
	"crediflow/internal/platform/cache"
	"crediflow/internal/platform/config"
	"crediflow/internal/platform/crypto"
	"crediflow/internal/platform/httpserver"
	"crediflow/internal/platform/logger"
	"crediflow/internal/platform/queue"
	redisplatform "crediflow/internal/platform/redis"
	"crediflow/internal/rules"
	httptransport "crediflow/internal/transport/http"
	"crediflow/internal/transport/ws"
)

// jobQueue is what both the Redis and in-process queues provide.
type jobQueue interface {
	queue.Enqueuer
	Consume(ctx context.Context, queueName string, handler queue.Handler) error
}

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]func(context.Context) error{}

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	var (
		appCache    cache.Cache
		jobs        jobQueue
		broadcaster broadcast.Broadcaster
	)
	if redisClient != nil {
		defer redisClient.Close()
		appCache = cache.NewRedis(redisClient.Client)
		jobs = queue.NewRedis(redisClient.Client, log)
		broadcaster = broadcast.NewRedis(redisClient.Client, log)
		health["redis"] = redisClient.Health
		log.Info("redis connected")
	} else {
		appCache = cache.NewMemory()
		jobs = queue.NewMemory(log)
		broadcaster = broadcast.NewMemory()
		log.Warn("redis not configured, using in-process cache, queue and broadcast")
	}

	var (
		appStore   application.Store
		auditStore audit.Store
		outbox     audit.OutboxStore
	)
	if cfg.Postgres.DSN != "" {
		if cfg.Crypto.EncryptionKey == "" {
			return errors.New("ENCRYPTION_KEY is required when DATABASE_URL is set")
		}
		encryptor, err := crypto.NewAESEncryptor(cfg.Crypto.EncryptionKey)
		if err != nil {
			return fmt.Errorf("init encryptor: %w", err)
		}

		db, err := sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		appStore = application.NewPostgres(db, encryptor)
		auditPG := audit.NewPostgres(db)
		auditStore = auditPG
		outbox = auditPG
		health["postgres"] = db.PingContext
		log.Info("postgres connected")
	} else {
		appStore = application.NewInMemory()
		auditStore = audit.NewMemory()
		log.Warn("postgres not configured, using in-memory stores")
	}

	recorder := audit.NewRecorder(jobs, log)

	authService, err := auth.NewService(cfg.Server.JWTSigningKey, cfg.Server.TokenTTL, recorder, log)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	appService := application.NewService(appStore, appCache, jobs, rules.Validator{},
		recorder, broadcaster, log, appmetrics.New())
	evalService := evaluation.NewService(appStore, evaluation.DefaultProviders(), appService,
		broadcaster, jobs, recorder, log, evalmetrics.New())

	evalWorker := evaluation.NewWorker(evalService, log)
	auditWorker := audit.NewWorker(auditStore, log)
	notifWorker := notification.NewWorker(log)
	hub := ws.NewHub(broadcaster, log)

	router := httptransport.NewRouter(httptransport.Deps{
		Auth:         authhandler.New(authService, log),
		Applications: apphandler.New(appService, log),
		Webhooks:     webhookhandler.New(evalService, recorder, log),
		Hub:          hub,
		Tokens:       authService,
		Health:       health,
		Logger:       log,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return untilShutdown(jobs.Consume(ctx, queue.RiskEvaluation, evalWorker.Handle))
	})
	g.Go(func() error {
		return untilShutdown(jobs.Consume(ctx, queue.Audit, auditWorker.Handle))
	})
	g.Go(func() error {
		return untilShutdown(jobs.Consume(ctx, queue.Notification, notifWorker.Handle))
	})
	g.Go(func() error {
		return untilShutdown(hub.Run(ctx))
	})

	if outbox != nil && len(cfg.Kafka.Brokers) > 0 {
		relay, err := audit.NewRelay(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, outbox, log)
		if err != nil {
			return fmt.Errorf("init audit relay: %w", err)
		}
		defer relay.Close()
		g.Go(func() error {
			return untilShutdown(relay.Run(ctx))
		})
		log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic)
	}

	g.Go(func() error {
		log.Info("starting crediflow", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// untilShutdown treats the cancellation that ends a worker loop as a clean
// exit so it does not mask real failures in the errgroup.
func untilShutdown(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
