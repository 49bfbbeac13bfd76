// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger 是全局的 zerolog 实例。
// 各服务统一使用 zerolog 替代标准 log，保证结构化输出。
var Logger zerolog.Logger

func init() {
	// 配置 zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 设置服务名和日志级别，在每个服务的启动阶段调用一次。
func Init(serviceName string) {
	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && os.Getenv("LOG_LEVEL") != "" {
		level = lvl
	}
	Logger = zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个附带了链路追踪信息的 logger。
// 如果 ctx 中存在有效的 span，会自动注入 trace_id，方便和 Jaeger 里的 trace 对齐。
func Ctx(ctx context.Context) *zerolog.Logger {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		l := Logger.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Logger()
		return &l
	}
	return &Logger
}
