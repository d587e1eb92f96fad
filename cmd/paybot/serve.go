package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/paybot/internal/processor"
	"github.com/sakashimaa/paybot/internal/receipt"
	"github.com/sakashimaa/paybot/internal/repository"
	"github.com/sakashimaa/paybot/internal/service"
	"github.com/sakashimaa/paybot/internal/session"
	httpTransport "github.com/sakashimaa/paybot/internal/transport/http"
	"github.com/sakashimaa/paybot/internal/transport/http/handler"
	"github.com/sakashimaa/paybot/internal/transport/telegram"
	"github.com/sakashimaa/paybot/pkg/config"
	"github.com/sakashimaa/paybot/pkg/db"
	"github.com/sakashimaa/paybot/pkg/kafka"
	"github.com/sakashimaa/paybot/pkg/metrics"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	outboxRepo "github.com/sakashimaa/paybot/pkg/outbox/repository"
	"github.com/sakashimaa/paybot/pkg/outbox/worker"
	"github.com/sakashimaa/paybot/pkg/storage"
	"github.com/sakashimaa/paybot/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the outbox relay and the health server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, sync, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, "paybot", cfg.Env, cfg.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}

	maxAmount, err := decimal.NewFromString(cfg.Payments.MaxAmount)
	if err != nil {
		return fmt.Errorf("invalid payments.max_amount: %w", err)
	}

	if cfg.Postgres.AutoMigrate {
		if err := db.MigrateUp(cfg.Postgres.URL); err != nil {
			return err
		}
		logger.Info("Migrations applied")
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := metrics.New()

	checkers := []handler.Checker{
		handler.CheckFunc{Label: "postgres", Fn: pool.Ping},
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	if cfg.Conversation.Store == "redis" {
		checkers = append(checkers, handler.CheckFunc{Label: "redis", Fn: sessions.ping})
	}

	artifacts, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	provider, err := newProvider(cfg.Processor)
	if err != nil {
		return err
	}
	proc := processor.NewClient(provider, cfg.Processor.Timeout, logger)

	outbox := outboxRepo.NewOutboxRepository(logger)
	store := service.NewPaymentStore(
		pool,
		repository.NewPaymentRepository(pool, logger),
		outbox,
		cfg.Kafka.Topic,
		logger,
	)

	bot, err := telegram.NewBot(cfg.Telegram, logger)
	if err != nil {
		return err
	}

	engine := service.NewConversationEngine(
		sessions.Store,
		store,
		proc,
		receipt.NewGenerator(artifacts, logger),
		bot,
		maxAmount,
		logger,
		service.WithRecorder(m),
	)

	// Handlers keep running after a shutdown signal so queued events drain.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	dispatcher := service.NewDispatcher(engine, cfg.Telegram.Workers, 64, logger, service.WithEventObserver(m))
	dispatcher.Start(workCtx)

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warn("Error closing kafka producer", zap.Error(err))
			}
		}()

		go worker.NewOutboxProcessor(pool, outbox, producer, logger, worker.WithObserver(m)).Start(ctx)
	} else {
		logger.Warn("No kafka brokers configured, outbox events stay in postgres")
	}

	app := httpTransport.NewApp(&httpTransport.Handlers{
		Health:  handler.NewHealthHandler(2*time.Second, logger, checkers...),
		Metrics: m.Handler(),
	})

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		bot.Run(ctx, dispatcher)
	}()

	mylogger.Info(
		ctx,
		logger,
		"paybot started",
		zap.String("provider", proc.Provider()),
		zap.String("conversation_store", cfg.Conversation.Store),
		zap.String("storage", cfg.Storage.Driver),
	)

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	<-pollDone
	dispatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.Timeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("Error shutting down HTTP app", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error shutting down telemetry", zap.Error(err))
	}

	return nil
}

type sessionStore struct {
	session.Store
	ping func(ctx context.Context) error
}

func newSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sessionStore, func(), error) {
	if cfg.Conversation.Store == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}

		return &sessionStore{
				Store: session.NewRedisStore(rdb, cfg.Conversation.TTL),
				ping:  func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			}, func() {
				if err := rdb.Close(); err != nil {
					logger.Warn("Error closing redis", zap.Error(err))
				}
			}, nil
	}

	mem := session.NewMemoryStore(cfg.Conversation.TTL, logger)
	janitorCtx, cancel := context.WithCancel(ctx)
	go mem.Run(janitorCtx, time.Minute)

	return &sessionStore{
		Store: mem,
		ping:  func(context.Context) error { return nil },
	}, cancel, nil
}

func newProvider(cfg config.Processor) (processor.Provider, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout + 5*time.Second}

	switch cfg.Provider {
	case "paypal":
		return processor.NewPayPalProvider(processor.PayPalConfig{
			ClientID:  cfg.PayPal.ClientID,
			Secret:    cfg.PayPal.Secret,
			Sandbox:   cfg.PayPal.Sandbox,
			ReturnURL: cfg.PayPal.ReturnURL,
			CancelURL: cfg.PayPal.CancelURL,
		}, httpClient)
	default:
		return processor.NewStripeProvider(processor.StripeConfig{
			APIKey:     cfg.Stripe.APIKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		}, httpClient), nil
	}
}
