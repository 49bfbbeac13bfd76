// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 让 yaml 里可以写 "30m"、"15s" 这类人类可读的时长。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std 转回标准库的 time.Duration。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 是整个进程的配置根。
// App 部分是引擎的业务参数，Infra 部分是外部依赖的连接信息。
// 数值型默认值（重试次数、TTL、退避基数）都是可调参数，不是算法契约。
type Config struct {
	App struct {
		// ReserveStrategy 预占策略: pessimistic / optimistic / adaptive
		ReserveStrategy string `yaml:"reserve_strategy"`
		// FallbackPessimistic 乐观重试耗尽后是否回退到悲观路径再试一次
		FallbackPessimistic bool `yaml:"fallback_pessimistic"`
		// ReservationTTL 预占的默认有效期
		ReservationTTL Duration `yaml:"reservation_ttl"`
		// OptimisticMaxRetries 乐观策略的最大重试次数
		OptimisticMaxRetries int `yaml:"optimistic_max_retries"`
		// OptimisticBackoffBase 乐观重试的退避基数（指数退避）
		OptimisticBackoffBase Duration `yaml:"optimistic_backoff_base"`
		// SweepInterval 清理器的轮询间隔
		SweepInterval Duration `yaml:"sweep_interval"`
		// SweepBatchSize 单次清理最多处理的过期预占数
		SweepBatchSize int `yaml:"sweep_batch_size"`
		// HighContentionThreshold 五分钟窗口内的预占次数超过该值视为高竞争
		HighContentionThreshold int64 `yaml:"high_contention_threshold"`
		// CriticalStockThreshold 可用库存低于该值时倾向悲观锁
		CriticalStockThreshold int64 `yaml:"critical_stock_threshold"`
		// AvailabilityCacheTTL 可用库存缓存的存活时间
		AvailabilityCacheTTL Duration `yaml:"availability_cache_ttl"`
	} `yaml:"app"`
	Infra struct {
		MySQL struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
	} `yaml:"infra"`
}

var currentConfig atomic.Pointer[Config]

// GetCurrentConfig 返回当前生效的配置。必须在 Init 之后调用。
func GetCurrentConfig() *Config {
	return currentConfig.Load()
}

// Init 加载配置文件并应用环境变量覆盖。
// 配置路径由 CONFIG_PATH 指定，默认 config.yaml；文件缺失时退回纯默认值，
// 方便本地直接跑起来。
func Init() *Config {
	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			panic("bootstrap: invalid config file " + path + ": " + err.Error())
		}
	}

	// 环境变量优先于文件，用于容器注入连接信息
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		cfg.Infra.MySQL.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Infra.Redis.Addr = addr
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if ep := os.Getenv("JAEGER_ENDPOINT"); ep != "" {
		cfg.Infra.Jaeger.Endpoint = ep
	}
	if strategy := os.Getenv("RESERVE_STRATEGY"); strategy != "" {
		cfg.App.ReserveStrategy = strategy
	}

	currentConfig.Store(cfg)
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.ReserveStrategy = "pessimistic"
	cfg.App.FallbackPessimistic = true
	cfg.App.ReservationTTL = Duration(30 * time.Minute)
	cfg.App.OptimisticMaxRetries = 3
	cfg.App.OptimisticBackoffBase = Duration(100 * time.Millisecond)
	cfg.App.SweepInterval = Duration(time.Minute)
	cfg.App.SweepBatchSize = 200
	cfg.App.HighContentionThreshold = 5
	cfg.App.CriticalStockThreshold = 10
	cfg.App.AvailabilityCacheTTL = Duration(30 * time.Second)
	cfg.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/lager?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.Topic = "stock-events"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	return cfg
}

// getEnv 从环境变量中读取配置，带默认值。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
