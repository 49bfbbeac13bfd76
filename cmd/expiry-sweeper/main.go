// cmd/expiry-sweeper/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"lager/internal/pkg/bootstrap"
	"lager/internal/pkg/logger"
	"lager/internal/pkg/redis"
	"lager/internal/pkg/tracing"

	"lager/internal/inventory/application"
	"lager/internal/inventory/infrastructure"
	"lager/internal/inventory/port"
)

const serviceName = "expiry-sweeper"

// expiry-sweeper 是独立的清理进程：按固定间隔轮询过期而仍为
// pending 的预占并释放其额度。引擎本身不自调度，过期只有经由
// 这里（或显式取消）才会实际归还库存。
func main() {
	logger.Init(serviceName)
	cfg := bootstrap.Init()

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	db, err := infrastructure.NewDB(cfg.Infra.MySQL.DSN)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize mysql")
	}
	repo := infrastructure.NewGormRepository(db)

	// 清理器释放额度后同样要让可用性缓存失效，否则主服务的缓存
	// 视图要等 TTL 到期才会看到归还的库存
	var cache port.AvailabilityCache
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("redis unavailable, sweeping without cache invalidation")
		redisClient = nil
	} else {
		cache = infrastructure.NewRedisAvailabilityCache(redisClient, cfg.App.AvailabilityCacheTTL.Std())
	}

	service := application.NewStockService(repo, application.Config{
		SweepBatchSize: cfg.App.SweepBatchSize,
	}, otel.Tracer(serviceName), cache, nil, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := cfg.App.SweepInterval.Std()
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Logger.Info().Dur("interval", interval).Msg("expiry sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := service.SweepExpired(ctx)
			if err != nil {
				logger.Logger.Error().Err(err).Msg("sweep run failed")
				continue
			}
			if result.ReleasedCount > 0 {
				logger.Logger.Info().Int("released", result.ReleasedCount).Msg("sweep run finished")
			}
		case <-ctx.Done():
			logger.Logger.Info().Msg("shutting down expiry sweeper")
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					logger.Logger.Error().Err(err).Msg("error closing redis client")
				}
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Logger.Error().Err(err).Msg("error shutting down tracer provider")
			}
			cancel()
			return
		}
	}
}
