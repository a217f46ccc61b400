// Package main запускает HTTP-сервер сервиса бонусов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bonus-payroll/internal/cache"
	"github.com/mmeshcher/bonus-payroll/internal/config"
	"github.com/mmeshcher/bonus-payroll/internal/events"
	"github.com/mmeshcher/bonus-payroll/internal/handler"
	"github.com/mmeshcher/bonus-payroll/internal/middleware"
	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/payrollsys"
	"github.com/mmeshcher/bonus-payroll/internal/period"
	"github.com/mmeshcher/bonus-payroll/internal/repository"
	"github.com/mmeshcher/bonus-payroll/internal/service"
	"github.com/mmeshcher/bonus-payroll/internal/validation"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	store, closeStore := newCacheStore(cfg, logger)
	defer closeStore()

	publisher := newPublisher(cfg, logger)

	resolver := period.NewResolver(period.SystemClock{}, cfg.Location())
	svc := service.NewService(repo, payrollsys.NewClient(cfg.PayrollSystemAddress), validation.New(resolver), service.Options{
		Cache:     cache.New(store, cfg.StaleTimes(), nil),
		Events:    publisher,
		BatchMode: model.BatchMode(cfg.BatchMode),
		Logger:    logger,
	})
	defer svc.Close()

	actorMiddleware := middleware.NewActorMiddleware(cfg.ActorSecret, cfg.RequireActor)
	h := handler.NewHandler(svc, logger, actorMiddleware, cfg.CORSOrigins)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Генерация бонусов завершившегося периода по расписанию
	if cfg.SchedulerEnabled {
		scheduler := service.NewScheduler(svc, cfg.GenerationSchedule, logger)
		if err := scheduler.Start(); err != nil {
			sugar.Fatalw("scheduler initialization error", "error", err.Error())
		}
		g.Go(func() error {
			<-ctx.Done()
			<-scheduler.Stop().Done()
			sugar.Info("scheduler stopped")
			return nil
		})
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting bonus server", "addr", cfg.RunAddress, "batch_mode", cfg.BatchMode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// newCacheStore выбирает хранилище кэша: Redis, если адрес задан и доступен, иначе память процесса.
func newCacheStore(cfg *config.Config, logger *zap.Logger) (cache.Store, func()) {
	if cfg.RedisAddress == "" {
		return cache.NewMemoryStore(), func() {}
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddress},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := cache.NewRedisStore(client, cfg.CachePrefix, cfg.CacheTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, falling back to in-memory cache", zap.String("addr", cfg.RedisAddress), zap.Error(err))
		_ = client.Close()
		return cache.NewMemoryStore(), func() {}
	}

	logger.Info("using redis query cache", zap.String("addr", cfg.RedisAddress))
	return store, func() { _ = client.Close() }
}

// newPublisher подключает публикацию событий в AMQP. Без брокера события только логируются.
func newPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.NewNopPublisher(logger)
	}

	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange, logger)
	if err != nil {
		logger.Warn("amqp unavailable, bonus events are disabled", zap.Error(err))
		return events.NewNopPublisher(logger)
	}
	return p
}
