// Package main запускает HTTP-сервер сервиса заявок.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/orderbot/internal/config"
	"github.com/mmeshcher/orderbot/internal/events"
	"github.com/mmeshcher/orderbot/internal/handler"
	"github.com/mmeshcher/orderbot/internal/logger"
	"github.com/mmeshcher/orderbot/internal/metrics"
	"github.com/mmeshcher/orderbot/internal/middleware"
	"github.com/mmeshcher/orderbot/internal/notify"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/scheduler"
	"github.com/mmeshcher/orderbot/internal/service"
)

const shutdownTimeout = 5 * time.Second

type eventPublisher interface {
	service.EventPublisher
	Close() error
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	var repo service.Repository
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, orders are kept in memory and lost on restart")
		repo = repository.NewMemoryRepository()
	} else {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			log.Fatal("database initialization error", zap.Error(err))
		}
	}

	var notifier service.Notifier
	if cfg.BotToken == "" {
		sugar.Warn("BOT_TOKEN is empty, notifications are written to the log")
		notifier = notify.NewLogNotifier(log)
	} else {
		notifier = notify.NewTelegramNotifier(cfg.TelegramAPIURL, cfg.BotToken, cfg.AdminIDs, log)
	}

	var publisher eventPublisher = events.NopPublisher{}
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		sugar.Infow("publishing order events", "brokers", brokers, "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sched := scheduler.New(log)
	m.TrackArmedTimers(sched.Len)

	svc := service.NewService(repo, sched, notifier, service.Config{
		PaymentTimeout:     cfg.PaymentTimeout,
		InitialOrderNumber: cfg.InitialOrderNumber,
		AdminIDs:           cfg.AdminIDs,
	},
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithEvents(publisher),
	)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := svc.RestorePending(ctx); err != nil {
		log.Fatal("restore pending orders error", zap.Error(err))
	}

	if cfg.GatewayToken == "" {
		sugar.Warn("GATEWAY_TOKEN is empty, user registration is disabled")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.SecretKey)
	h := handler.NewHandler(svc, log, authMiddleware, cfg.GatewayToken)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(m, metrics.Handler(reg)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Таймеры истечения срока оплаты
	g.Go(func() error {
		return sched.Run(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting orderbot server",
			"addr", cfg.RunAddress,
			"payment_timeout", cfg.PaymentTimeout.String(),
			"admins", len(cfg.AdminIDs),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("application terminated with error", zap.Error(err))
	}
}
