package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Init()
	require.Equal(t, "pessimistic", cfg.App.ReserveStrategy)
	require.True(t, cfg.App.FallbackPessimistic)
	require.Equal(t, 30*time.Minute, cfg.App.ReservationTTL.Std())
	require.Equal(t, 3, cfg.App.OptimisticMaxRetries)
	require.Equal(t, 100*time.Millisecond, cfg.App.OptimisticBackoffBase.Std())
	require.Equal(t, 200, cfg.App.SweepBatchSize)
	require.Same(t, cfg, GetCurrentConfig())
}

func TestInitFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  reserve_strategy: optimistic
  optimistic_max_retries: 7
  sweep_interval: 15s
infra:
  kafka:
    topic: stock-events-test
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)
	// 环境变量优先于文件
	t.Setenv("RESERVE_STRATEGY", "adaptive")
	t.Setenv("MYSQL_DSN", "user:pw@tcp(db:3306)/lager")

	cfg := Init()
	require.Equal(t, "adaptive", cfg.App.ReserveStrategy)
	require.Equal(t, 7, cfg.App.OptimisticMaxRetries)
	require.Equal(t, 15*time.Second, cfg.App.SweepInterval.Std())
	require.Equal(t, "stock-events-test", cfg.Infra.Kafka.Topic)
	require.Equal(t, "user:pw@tcp(db:3306)/lager", cfg.Infra.MySQL.DSN)
	// 文件没写的字段保持默认
	require.Equal(t, 200, cfg.App.SweepBatchSize)
}
