package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ashish12meena/aigreentick-microservices/internal/api"
	"github.com/Ashish12meena/aigreentick-microservices/internal/broker"
	"github.com/Ashish12meena/aigreentick-microservices/internal/config"
	"github.com/Ashish12meena/aigreentick-microservices/internal/dispatch"
	"github.com/Ashish12meena/aigreentick-microservices/internal/notify"
	"github.com/Ashish12meena/aigreentick-microservices/internal/outbox"
	"github.com/Ashish12meena/aigreentick-microservices/internal/provider"
	"github.com/Ashish12meena/aigreentick-microservices/internal/store"
	"github.com/Ashish12meena/aigreentick-microservices/internal/template"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
)

// defaultTemplates seeds the resolver. In production these would come from a
// template service; the codes match what upstream callers send today.
var defaultTemplates = map[string]string{
	"WELCOME":        "Hi {name}, welcome aboard! Your account {recipient} is ready.",
	"ORDER_SHIPPED":  "Hi {name}, your order {order_id} has shipped.",
	"PASSWORD_RESET": "Hi {name}, use code {code} to reset your password.",
	"GENERIC":        "{message}",
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	brokerClient, err := broker.Connect(ctx, broker.DefaultConfig(cfg.NatsURL), logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer brokerClient.Close()
	logger.Info("connected to NATS JetStream")

	// Provider client shared by both delivery paths.
	httpClient := provider.NewHTTPClient(cfg.Provider.Endpoint, cfg.Provider.SecretKey, logger)
	client := provider.NewBreaker(httpClient, redisStore.Client(), logger)

	// Broadcast dispatch path.
	limiter := dispatch.NewLimiter(cfg.Broadcast.MaxConcurrent)
	flusher := dispatch.NewFlusher(pgStore, cfg.Broadcast.BatchSize, logger)
	pool := dispatch.NewPool(cfg.Broadcast.NumWorkers, limiter, client, flusher, logger)
	pool.Start(ctx)
	defer pool.Stop()

	coordinator := dispatch.NewCoordinator(pgStore, pool, flusher, cfg.Broadcast.ChunkSize, logger)

	// Queue-based notification path.
	resolver := template.NewResolver(defaultTemplates)
	idem := store.NewIdempotencyStore(redisStore.Client(), cfg.IdempotencyTTL, logger)
	producer := notify.NewProducer(brokerClient, logger)
	scheduler := notify.NewScheduler(brokerClient, cfg.Retry, logger)
	consumer := notify.NewConsumer(idem, resolver, client, scheduler, brokerClient, pgStore, logger)
	retryConsumer := notify.NewRetryConsumer(consumer, scheduler, clockwork.NewRealClock(), logger)
	dlqConsumer := notify.NewDLQConsumer(pgStore, logger)
	auditConsumer := notify.NewAuditConsumer(pgStore, logger)

	consumeContexts := startConsumers(ctx, brokerClient, logger, []consumerEntry{
		{name: "notifications-main", subject: broker.SubjectMain, start: consumer.Start},
		{name: "notifications-retry", subject: broker.SubjectRetry, start: retryConsumer.Start},
		{name: "notifications-dlq", subject: broker.SubjectDLQ, start: dlqConsumer.Start},
		{name: "notifications-audit", subject: broker.SubjectAudit, start: auditConsumer.Start},
	})
	defer func() {
		for _, cc := range consumeContexts {
			cc.Stop()
		}
		retryConsumer.Wait()
	}()

	// Outbox relay publishing audit events.
	relay := outbox.NewRelay(pgStore, brokerClient, cfg.Outbox, logger)
	if err := relay.Start(ctx); err != nil {
		logger.Error("failed to start outbox relay", "error", err)
		os.Exit(1)
	}
	defer relay.Stop()

	dlqAdmin := notify.NewDLQAdmin(pgStore, producer, logger)

	router := api.NewRouter(
		api.NewBroadcastHandler(coordinator, resolver, pgStore),
		api.NewNotificationHandler(producer),
		api.NewDeadLetterHandler(dlqAdmin),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

type consumerEntry struct {
	name    string
	subject string
	start   func(ctx context.Context, consumer jetstream.Consumer) (jetstream.ConsumeContext, error)
}

func startConsumers(ctx context.Context, client *broker.Client, logger *slog.Logger, entries []consumerEntry) []jetstream.ConsumeContext {
	contexts := make([]jetstream.ConsumeContext, 0, len(entries))
	for _, e := range entries {
		consumer, err := client.EnsureConsumer(ctx, e.name, e.subject)
		if err != nil {
			logger.Error("failed to create consumer", "name", e.name, "error", err)
			os.Exit(1)
		}
		cc, err := e.start(ctx, consumer)
		if err != nil {
			logger.Error("failed to start consumer", "name", e.name, "error", err)
			os.Exit(1)
		}
		logger.Info("consumer started", "name", e.name, "subject", e.subject)
		contexts = append(contexts, cc)
	}
	return contexts
}
