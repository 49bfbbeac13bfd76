// cmd/inventory-service/main.go
package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"lager/internal/pkg/bootstrap"
	"lager/internal/pkg/logger"
	"lager/internal/pkg/mq"
	"lager/internal/pkg/redis"

	"lager/internal/inventory/application"
	"lager/internal/inventory/infrastructure"
	"lager/internal/inventory/interfaces"
	"lager/internal/inventory/port"
)

const serviceName = "inventory-service"

// main 是应用的"组装根" (Composition Root)：
// 创建并组装所有依赖项，然后把控制权交给 bootstrap。
func main() {
	cfg := bootstrap.Init()

	var (
		redisClient *redis.Client
		publisher   *infrastructure.KafkaEventPublisher
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			db, err := infrastructure.NewDB(cfg.Infra.MySQL.DSN)
			if err != nil {
				logger.Logger.Fatal().Err(err).Msg("failed to initialize mysql")
			}
			repo := infrastructure.NewGormRepository(db)

			// Redis 与 Kafka 是可选增强：连不上只降级，不阻止服务启动
			var (
				cache   port.AvailabilityCache
				tracker port.ContentionTracker
			)
			redisClient, err = redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
			if err != nil {
				logger.Logger.Warn().Err(err).Msg("redis unavailable, running without availability cache")
				redisClient = nil
			} else {
				cache = infrastructure.NewRedisAvailabilityCache(redisClient, cfg.App.AvailabilityCacheTTL.Std())
				if t, err := infrastructure.NewRedisContentionTracker(redisClient, 5*time.Minute); err != nil {
					logger.Logger.Warn().Err(err).Msg("failed to load contention script")
				} else {
					tracker = t
				}
			}

			var eventPublisher port.EventPublisher
			if len(cfg.Infra.Kafka.Brokers) > 0 && cfg.Infra.Kafka.Topic != "" {
				publisher = infrastructure.NewKafkaEventPublisher(
					mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topic))
				eventPublisher = publisher
			}

			service := application.NewStockService(repo, application.Config{
				Strategy:                cfg.App.ReserveStrategy,
				FallbackPessimistic:     cfg.App.FallbackPessimistic,
				DefaultTTL:              cfg.App.ReservationTTL.Std(),
				MaxRetries:              cfg.App.OptimisticMaxRetries,
				BackoffBase:             cfg.App.OptimisticBackoffBase.Std(),
				SweepBatchSize:          cfg.App.SweepBatchSize,
				HighContentionThreshold: cfg.App.HighContentionThreshold,
				CriticalStockThreshold:  cfg.App.CriticalStockThreshold,
			}, otel.Tracer(serviceName), cache, eventPublisher, tracker)

			interfaces.NewStockHandler(service).RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			if publisher != nil {
				if err := publisher.Close(); err != nil {
					logger.Logger.Error().Err(err).Msg("error closing kafka writer")
				}
			}
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					logger.Logger.Error().Err(err).Msg("error closing redis client")
				}
			}
		},
	})
}
