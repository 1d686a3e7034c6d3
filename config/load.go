package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Executor ExecutorConfig `yaml:"executor"`
	Signals  SignalsConfig  `yaml:"signals"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type GatewayConfig struct {
	BaseURL        string `yaml:"baseURL"`
	KeyPath        string `yaml:"keyPath"` // 两行文件：key、base64 secret
	TimeoutSeconds int    `yaml:"timeoutSeconds"`

	// 限流器选择：decay（默认，按交易所计数衰减模型）或 token（令牌桶）
	Limiter    string  `yaml:"limiter"`
	RatePerSec float64 `yaml:"ratePerSec"` // 仅 token 生效
	Burst      int     `yaml:"burst"`      // 仅 token 生效
}

// ExecutorConfig 执行进程参数：策略标识、结清容差与持久化路径。
type ExecutorConfig struct {
	StrategyID    int     `yaml:"strategyID"`
	Pair          string  `yaml:"pair"`
	Tolerance     float64 `yaml:"tolerance"`
	IDScheme      string  `yaml:"idScheme"` // time / counter
	IDStatePath   string  `yaml:"idStatePath"`
	SnapshotPath  string  `yaml:"snapshotPath"`
	StatePath     string  `yaml:"statePath"`
	JournalPath   string  `yaml:"journalPath"` // 留空则不记执行回报

	MaxIterations int     `yaml:"maxIterations"`
	PollMs        int     `yaml:"pollMs"`
}

// SignalsConfig 信号通道：监听策略端连接，或主动拨向策略端。
type SignalsConfig struct {
	Mode       string `yaml:"mode"` // listen / dial
	ListenAddr string `yaml:"listenAddr"`
	URL        string `yaml:"url"`
	Buffer     int    `yaml:"buffer"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 留空则关闭
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"` // json / console
}

// Timeout 返回私有请求超时。
func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// PollInterval 返回成交轮询间隔。
func (e ExecutorConfig) PollInterval() time.Duration {
	if e.PollMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(e.PollMs) * time.Millisecond
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("EXEC_GATEWAY_BASEURL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("EXEC_GATEWAY_KEYPATH"); v != "" {
		cfg.Gateway.KeyPath = v
	}
	if v := os.Getenv("EXEC_STRATEGY_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse EXEC_STRATEGY_ID: %w", err)
		}
		cfg.Executor.StrategyID = id
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.baseURL is required")
	}
	if cfg.Gateway.KeyPath == "" {
		return errors.New("gateway.keyPath is required (or EXEC_GATEWAY_KEYPATH)")
	}
	switch cfg.Gateway.Limiter {
	case "", "decay":
	case "token":
		if cfg.Gateway.RatePerSec <= 0 {
			return errors.New("gateway.ratePerSec must be positive with the token limiter")
		}
	default:
		return fmt.Errorf("gateway.limiter must be decay or token, got %q", cfg.Gateway.Limiter)
	}
	if cfg.Executor.Pair == "" {
		return errors.New("executor.pair is required")
	}
	if cfg.Executor.StrategyID < 0 || cfg.Executor.StrategyID > 999 {
		return fmt.Errorf("executor.strategyID must be in [0, 999], got %d", cfg.Executor.StrategyID)
	}
	if cfg.Executor.Tolerance < 0 || cfg.Executor.Tolerance >= 1 {
		return fmt.Errorf("executor.tolerance must be in [0, 1), got %g", cfg.Executor.Tolerance)
	}
	switch cfg.Executor.IDScheme {
	case "", "time", "counter":
	default:
		return fmt.Errorf("executor.idScheme must be time or counter, got %q", cfg.Executor.IDScheme)
	}
	if cfg.Executor.IDStatePath == "" {
		return errors.New("executor.idStatePath is required")
	}
	if cfg.Executor.SnapshotPath == "" || cfg.Executor.StatePath == "" {
		return errors.New("executor.snapshotPath and executor.statePath are required")
	}
	switch cfg.Signals.Mode {
	case "listen":
		if cfg.Signals.ListenAddr == "" {
			return errors.New("signals.listenAddr is required in listen mode")
		}
	case "dial":
		if cfg.Signals.URL == "" {
			return errors.New("signals.url is required in dial mode")
		}
	default:
		return fmt.Errorf("signals.mode must be listen or dial, got %q", cfg.Signals.Mode)
	}
	return nil
}
