// Package config 提供了统一的配置加载与管理能力 (TOML + 环境变量覆盖 + 热更新).
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/wyfcoding/optionpricer/logging"
	"github.com/wyfcoding/optionpricer/validator"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// Config 全局顶级配置结构.
type Config struct {
	Version string         `mapstructure:"version" toml:"version"`
	Log     logging.Config `mapstructure:"log"     toml:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics" toml:"metrics"`
	Tracing TracingConfig  `mapstructure:"tracing" toml:"tracing"`
	Engine  EngineConfig   `mapstructure:"engine"  toml:"engine"`
	Pool    PoolConfig     `mapstructure:"pool"    toml:"pool"`
	Cache   BigCacheConfig `mapstructure:"cache"   toml:"cache"`
	Server  ServerConfig   `mapstructure:"server"  toml:"server"`
	IDGen   IDGenConfig    `mapstructure:"idgen"   toml:"idgen"`
	Breaker BreakerConfig  `mapstructure:"breaker" toml:"breaker"`
}

// MetricsConfig Prometheus 暴露配置.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"`
}

// TracingConfig OpenTelemetry 链路追踪配置，未启用时 Span 为空操作.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  toml:"sample_ratio"  validate:"gte=0,lte=1"`
}

// EngineConfig 定价引擎参数.
type EngineConfig struct {
	MonteCarlo          MonteCarloConfig `mapstructure:"monte_carlo"            toml:"monte_carlo"`
	Greeks              GreeksConfig     `mapstructure:"greeks"                 toml:"greeks"`
	Compare             CompareConfig    `mapstructure:"compare"                toml:"compare"`
	DefaultRiskFreeRate float64          `mapstructure:"default_risk_free_rate" toml:"default_risk_free_rate" validate:"gte=0"`
	DefaultVolatility   float64          `mapstructure:"default_volatility"     toml:"default_volatility"     validate:"gt=0"`
}

// MonteCarloConfig 蒙特卡洛默认参数，Seed 为 0 表示不固定种子.
// MaxSimulations 与 MaxSteps 是请求可指定的上限，引擎按路径数一次性分配收益切片.
type MonteCarloConfig struct {
	Simulations    int    `mapstructure:"simulations"     toml:"simulations"     validate:"gt=0,ltefield=MaxSimulations"`
	Steps          int    `mapstructure:"steps"           toml:"steps"           validate:"gt=0,ltefield=MaxSteps"`
	Seed           uint64 `mapstructure:"seed"            toml:"seed"`
	Workers        int    `mapstructure:"workers"         toml:"workers"         validate:"gte=0"`
	ChunkSize      int    `mapstructure:"chunk_size"      toml:"chunk_size"      validate:"gt=0"`
	MaxSimulations int    `mapstructure:"max_simulations" toml:"max_simulations" validate:"gt=0"`
	MaxSteps       int    `mapstructure:"max_steps"       toml:"max_steps"       validate:"gt=0"`
}

// GreeksConfig 有限差分步长.
type GreeksConfig struct {
	DeltaBump float64 `mapstructure:"delta_bump" toml:"delta_bump" validate:"gt=0"`
	VegaBump  float64 `mapstructure:"vega_bump"  toml:"vega_bump"  validate:"gt=0"`
	ThetaDays float64 `mapstructure:"theta_days" toml:"theta_days" validate:"gt=0"`
	RhoBump   float64 `mapstructure:"rho_bump"   toml:"rho_bump"   validate:"gt=0"`
}

// CompareConfig 方法比对参数.
type CompareConfig struct {
	Simulations int     `mapstructure:"simulations" toml:"simulations" validate:"gt=0"`
	Seed        uint64  `mapstructure:"seed"        toml:"seed"`
	Threshold   float64 `mapstructure:"threshold"   toml:"threshold"   validate:"gt=0"`
}

// PoolConfig 情景扫描使用的协程池.
type PoolConfig struct {
	Size      int `mapstructure:"size"       toml:"size"       validate:"gt=0"`
	QueueSize int `mapstructure:"queue_size" toml:"queue_size" validate:"gte=0"`
}

// BigCacheConfig 高性能本地内存缓存参数.
type BigCacheConfig struct {
	LifeWindow       time.Duration `mapstructure:"life_window"         toml:"life_window"         validate:"gt=0"`
	HardMaxCacheSize int           `mapstructure:"hard_max_cache_size" toml:"hard_max_cache_size" validate:"gte=0"`
}

// ServerConfig HTTP 定价接口.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             toml:"addr"             validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" toml:"shutdown_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  toml:"request_timeout"  validate:"gte=0"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"   toml:"slow_threshold"   validate:"gte=0"`
	RateLimit       float64       `mapstructure:"rate_limit"       toml:"rate_limit"       validate:"gte=0"` // 每秒请求数，0 不限流
	RateBurst       int           `mapstructure:"rate_burst"       toml:"rate_burst"       validate:"gte=0"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"   toml:"max_body_bytes"   validate:"gte=0"`
	MaxSweepPoints  int           `mapstructure:"max_sweep_points" toml:"max_sweep_points" validate:"gt=0"`
}

// IDGenConfig 请求 ID 生成器，Type 为 snowflake 或 sonyflake.
type IDGenConfig struct {
	Type      string `mapstructure:"type"       toml:"type"       validate:"omitempty,oneof=snowflake sonyflake"`
	StartTime string `mapstructure:"start_time" toml:"start_time"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id" validate:"gte=0,lte=65535"`
}

// BreakerConfig 行情源熔断参数 (gobreaker).
type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"       toml:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"  toml:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"      toml:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"       toml:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio" toml:"failure_ratio" validate:"gte=0,lte=1"`
	MinRequests  uint32        `mapstructure:"min_requests"  toml:"min_requests"`
}

// Default 返回内置默认配置，Load 在其基础上覆盖.
func Default() *Config {
	return &Config{
		Version: "dev",
		Log: logging.Config{
			Service: "optionpricer",
			Module:  "pricer",
			Level:   "info",
		},
		Metrics: MetricsConfig{Port: ":9090", Path: "/metrics"},
		Tracing: TracingConfig{
			ServiceName:  "optionpricer",
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1.0,
		},
		Engine: EngineConfig{
			MonteCarlo: MonteCarloConfig{
				Simulations:    10000,
				Steps:          252,
				ChunkSize:      4096,
				MaxSimulations: 5_000_000,
				MaxSteps:       10_000,
			},
			Greeks: GreeksConfig{
				DeltaBump: 0.01,
				VegaBump:  0.001,
				ThetaDays: 1,
				RhoBump:   0.0001,
			},
			Compare: CompareConfig{
				Simulations: 50000,
				Seed:        42,
				Threshold:   1.0,
			},
			DefaultRiskFreeRate: 0.05,
			DefaultVolatility:   0.25,
		},
		Pool:  PoolConfig{Size: 8, QueueSize: 256},
		Cache: BigCacheConfig{LifeWindow: 5 * time.Minute, HardMaxCacheSize: 64},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  30 * time.Second,
			SlowThreshold:   time.Second,
			MaxBodyBytes:    1 << 20,
			MaxSweepPoints:  1000,
		},
		IDGen: IDGenConfig{Type: "snowflake", StartTime: "2024-01-01", MachineID: 1},
		Breaker: BreakerConfig{
			Enabled:      true,
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			FailureRatio: 0.5,
			MinRequests:  5,
		},
	}
}

var (
	mu        sync.RWMutex
	vInstance = viper.New()
	onReload  []func(*Config)
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	onReload = append(onReload, hook)
	mu.Unlock()
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Read 读取并校验配置文件，不监听变更。conf 中已有的值作为缺省值保留.
func Read(path string, conf any) error {
	_, err := read(path, conf)
	return err
}

func read(path string, conf any) (*viper.Viper, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := validator.Struct(conf); err != nil {
		return nil, xerrors.ErrInvalidConfig.WithCause(err)
	}
	return v, nil
}

// Load 读取配置并开启文件监听，变更后重新校验并触发回调.
func Load(path string, conf *Config) error {
	v, err := read(path, conf)
	if err != nil {
		return err
	}

	mu.Lock()
	vInstance = v
	mu.Unlock()

	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		next := *conf
		if err := v.Unmarshal(&next); err != nil {
			slog.Error("reload config unmarshal failed", "error", err)
			return
		}
		if err := applyReload(conf, &next); err != nil {
			slog.Error("reload config validation failed", "error", err)
		}
	})
	v.WatchConfig()
	return nil
}

// applyReload 校验通过后替换当前配置，同步日志级别并依次调用回调.
func applyReload(cur, next *Config) error {
	if err := validator.Struct(next); err != nil {
		return err
	}
	mu.Lock()
	*cur = *next
	hooks := append([]func(*Config){}, onReload...)
	mu.Unlock()

	logging.SetLevel(cur.Log.Level)
	slog.Info("config hot-reloaded and validated successfully")
	for _, hook := range hooks {
		hook(cur)
	}
	return nil
}

// GetViper 返回最近一次 Load 使用的 Viper 实例.
func GetViper() *viper.Viper {
	mu.RLock()
	defer mu.RUnlock()
	return vInstance
}
