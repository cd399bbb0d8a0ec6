package config

import (
	"encoding/hex"
	"fmt"
	"time"
)

// SignerConfig 本节点作为 FROST 参与者的配置
type SignerConfig struct {
	Identifier        uint16       `json:"identifier"`        // 1..=TotalParticipants
	Threshold         uint16       `json:"threshold"`         // 门限 t
	TotalParticipants uint16       `json:"totalParticipants"` // n
	IdentityKeyHex    string       `json:"identityKey"`       // 32 字节身份私钥（解密 round-2 share）
	Peers             []PeerConfig `json:"peers"`             // 全部参与者（含自己）
}

// PeerConfig 参与者地址簿条目
type PeerConfig struct {
	Identifier           uint16 `json:"identifier"`
	IdentityPublicKeyHex string `json:"identityPublicKey"` // 33 字节压缩公钥
	URL                  string `json:"url"`               // https://host:port
}

// AggregatorConfig 聚合者配置
type AggregatorConfig struct {
	Threshold       int      `json:"threshold"`
	SessionTimeout  Duration `json:"sessionTimeout"`  // 会话 TTL（默认 10m）
	CleanupInterval Duration `json:"cleanupInterval"` // 清理周期（默认 1m）
	RPCTimeout      Duration `json:"rpcTimeout"`      // 单次签名者调用超时（默认 30s）
	CacheSize       int      `json:"cacheSize"`       // key 状态 LRU 容量（默认 1024）
}

// DefaultSignerConfig 返回默认参与者配置
func DefaultSignerConfig() SignerConfig {
	return SignerConfig{
		Identifier:        1,
		Threshold:         2,
		TotalParticipants: 3,
	}
}

// DefaultAggregatorConfig 返回默认聚合者配置
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Threshold:       2,
		SessionTimeout:  Duration(10 * time.Minute),
		CleanupInterval: Duration(time.Minute),
		RPCTimeout:      Duration(30 * time.Second),
		CacheSize:       1024,
	}
}

// Validate 检查门限参数与地址簿
func (c *SignerConfig) Validate() error {
	if c.Threshold < 2 || c.TotalParticipants < c.Threshold {
		return fmt.Errorf("invalid threshold %d of %d", c.Threshold, c.TotalParticipants)
	}
	if c.Identifier == 0 || c.Identifier > c.TotalParticipants {
		return fmt.Errorf("identifier %d out of range 1..%d", c.Identifier, c.TotalParticipants)
	}
	if c.IdentityKeyHex != "" {
		if b, err := hex.DecodeString(c.IdentityKeyHex); err != nil || len(b) != 32 {
			return fmt.Errorf("identityKey must be 32 hex-encoded bytes")
		}
	}
	seen := make(map[uint16]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.Identifier == 0 || p.Identifier > c.TotalParticipants {
			return fmt.Errorf("peer identifier %d out of range", p.Identifier)
		}
		if seen[p.Identifier] {
			return fmt.Errorf("duplicate peer identifier %d", p.Identifier)
		}
		seen[p.Identifier] = true
		if b, err := hex.DecodeString(p.IdentityPublicKeyHex); err != nil || len(b) != 33 {
			return fmt.Errorf("peer %d: identityPublicKey must be 33 hex-encoded bytes", p.Identifier)
		}
	}
	if len(c.Peers) > 0 && len(c.Peers) != int(c.TotalParticipants) {
		return fmt.Errorf("got %d peers, want %d", len(c.Peers), c.TotalParticipants)
	}
	return nil
}

// Validate 检查超时与门限
func (c *AggregatorConfig) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("threshold must be positive")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("sessionTimeout must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanupInterval must be positive")
	}
	if c.RPCTimeout < 0 {
		return fmt.Errorf("rpcTimeout must not be negative")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cacheSize must not be negative")
	}
	return nil
}
