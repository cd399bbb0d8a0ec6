// config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config 主配置结构
type Config struct {
	Signer     SignerConfig     `json:"signer"`
	Aggregator AggregatorConfig `json:"aggregator"`
	Storage    StorageConfig    `json:"storage"`
	Network    NetworkConfig    `json:"network"`
	ChainNet   string           `json:"chainNet"` // mainnet|testnet|signet|regtest，用于 taproot 地址
	LogLevel   string           `json:"logLevel"` // trace|debug|info|warn|error
}

// StorageConfig 存储配置
type StorageConfig struct {
	Backend string `json:"backend"` // "memory" | "badger"
	Path    string `json:"path"`    // badger 数据目录
}

// NetworkConfig HTTP/3 服务配置
type NetworkConfig struct {
	ListenAddr         string   `json:"listenAddr"` // ":7443"
	CertFile           string   `json:"certFile"`   // 为空时生成自签名证书
	KeyFile            string   `json:"keyFile"`
	CAFile             string   `json:"caFile"`             // 客户端信任的对端证书（PEM），为空时使用系统根证书
	InsecureSkipVerify bool     `json:"insecureSkipVerify"` // 客户端跳过证书校验（仅测试网）
	KeepAlivePeriod    Duration `json:"keepAlivePeriod"`    // 10s
	MaxIdleTimeout     Duration `json:"maxIdleTimeout"`     // 5m
	MaxRequestBodySize int64    `json:"maxRequestBodySize"` // 4 << 20
	RateLimit          int      `json:"rateLimit"`          // 每个 IP 每秒请求上限，0 表示不限制
}

const (
	StorageMemory = "memory"
	StorageBadger = "badger"
)

// 支持的比特币网络
const (
	ChainMainNet = "mainnet"
	ChainTestNet = "testnet"
	ChainSigNet  = "signet"
	ChainRegTest = "regtest"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Signer:     DefaultSignerConfig(),
		Aggregator: DefaultAggregatorConfig(),
		Storage: StorageConfig{
			Backend: StorageMemory,
			Path:    "data/frost",
		},
		Network: NetworkConfig{
			ListenAddr:         ":7443",
			KeepAlivePeriod:    Duration(10 * time.Second),
			MaxIdleTimeout:     Duration(5 * time.Minute),
			MaxRequestBodySize: 4 << 20,
		},
		ChainNet: ChainMainNet,
		LogLevel: "info",
	}
}

// LoadFromFile 从 JSON 文件加载配置，未出现的字段保留默认值
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if err := c.Signer.Validate(); err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	if err := c.Aggregator.Validate(); err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage: badger backend requires a path")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	switch c.ChainNet {
	case ChainMainNet, ChainTestNet, ChainSigNet, ChainRegTest:
	default:
		return fmt.Errorf("unknown chainNet %q", c.ChainNet)
	}
	if c.Network.MaxRequestBodySize <= 0 {
		return fmt.Errorf("network: MaxRequestBodySize must be positive")
	}
	if c.Network.RateLimit < 0 {
		return fmt.Errorf("network: RateLimit must not be negative")
	}
	return nil
}

// Duration JSON 中以 "150ms" 形式出现的时长
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// 兼容纳秒整数
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("invalid duration %s", string(b))
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std 转为 time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }
