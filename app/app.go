// app/app.go
package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"frostsign/config"
	"frostsign/crt"
	"frostsign/frost/core/frost"
	"frostsign/frost/runtime"
	frostnet "frostsign/frost/runtime/net"
	"frostsign/frost/runtime/session"
	"frostsign/logs"
	"frostsign/metrics"
	"frostsign/middleware"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/prometheus/client_golang/prometheus"
)

// Container 由配置构造各组件，共享同一个存储 backend
type Container struct {
	Config  *config.Config
	Backend session.Backend
	Metrics *metrics.Collector
}

// NewContainer 打开存储；reg 为 nil 时不注册指标
func NewContainer(cfg *config.Config, reg prometheus.Registerer) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logs.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	backend, err := OpenBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}
	return &Container{Config: cfg, Backend: backend, Metrics: metrics.NewCollector(reg)}, nil
}

// Close 关闭存储
func (c *Container) Close() error {
	return c.Backend.Close()
}

// OpenBackend memory 或 badger
func OpenBackend(cfg config.StorageConfig) (session.Backend, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return session.NewMemoryBackend(), nil
	case config.StorageBadger:
		return session.OpenBadger(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ChainParams 按名称返回比特币网络参数
func ChainParams(name string) (*chaincfg.Params, error) {
	switch name {
	case config.ChainMainNet, "":
		return &chaincfg.MainNetParams, nil
	case config.ChainTestNet:
		return &chaincfg.TestNet3Params, nil
	case config.ChainSigNet:
		return &chaincfg.SigNetParams, nil
	case config.ChainRegTest:
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown chain %q", name)
}

// ParseIdentityKey 32 字节 hex 私钥
func ParseIdentityKey(hexKey string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("identity key must be 32 hex-encoded bytes")
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// PeerIdentities 地址簿中的身份公钥
func (c *Container) PeerIdentities() (map[frost.Identifier]*btcec.PublicKey, error) {
	peers := c.Config.Signer.Peers
	out := make(map[frost.Identifier]*btcec.PublicKey, len(peers))
	for _, p := range peers {
		b, err := hex.DecodeString(p.IdentityPublicKeyHex)
		if err != nil {
			return nil, fmt.Errorf("peer %d: %w", p.Identifier, err)
		}
		pub, err := btcec.ParsePubKey(b)
		if err != nil {
			return nil, fmt.Errorf("peer %d: %w", p.Identifier, err)
		}
		out[frost.Identifier(p.Identifier)] = pub
	}
	return out, nil
}

// Signer 本节点的 FrostSigner
func (c *Container) Signer() (*runtime.FrostSigner, error) {
	sc := c.Config.Signer
	priv, err := ParseIdentityKey(sc.IdentityKeyHex)
	if err != nil {
		return nil, err
	}
	peers, err := c.PeerIdentities()
	if err != nil {
		return nil, err
	}
	return runtime.NewFrostSignerWithBackend(runtime.SignerConfig{
		Identifier:     frost.Identifier(sc.Identifier),
		Threshold:      sc.Threshold,
		Total:          sc.TotalParticipants,
		IdentityKey:    priv,
		PeerIdentities: peers,
	}, c.Backend)
}

// HTTPClient 访问其他签名者的 HTTP/3 客户端
func (c *Container) HTTPClient() (*http.Client, error) {
	nc := c.Config.Network
	if nc.CAFile == "" {
		return frostnet.NewHTTP3Client(nc, nil), nil
	}
	pool, err := crt.LoadPool(nc.CAFile)
	if err != nil {
		return nil, err
	}
	return frostnet.NewHTTP3Client(nc, pool), nil
}

// SignerClients 每个有 URL 的对端一个远程客户端
func (c *Container) SignerClients(httpClient *http.Client) (map[frost.Identifier]runtime.SignerClient, error) {
	out := make(map[frost.Identifier]runtime.SignerClient, len(c.Config.Signer.Peers))
	for _, p := range c.Config.Signer.Peers {
		if p.URL == "" {
			return nil, fmt.Errorf("peer %d has no url", p.Identifier)
		}
		out[frost.Identifier(p.Identifier)] = frostnet.NewClient(p.URL, httpClient)
	}
	return out, nil
}

// Aggregator 以 signers 为签名者集合的 FrostAggregator
func (c *Container) Aggregator(signers map[frost.Identifier]runtime.SignerClient) (*runtime.FrostAggregator, error) {
	ac := c.Config.Aggregator
	return runtime.NewFrostAggregatorWithBackend(runtime.AggregatorConfig{
		Threshold:       uint16(ac.Threshold),
		SessionTimeout:  ac.SessionTimeout.Std(),
		CleanupInterval: ac.CleanupInterval.Std(),
		RPCTimeout:      ac.RPCTimeout.Std(),
		Metrics:         c.Metrics,
	}, signers, c.Backend, ac.CacheSize)
}

// ========== App ==========

// App 签名者节点：HTTP/3 服务 + 过期会话清理
type App struct {
	container *Container
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewApp 创建应用实例
func NewApp(container *Container) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{container: container, ctx: ctx, cancel: cancel}
}

// Start 构造签名者并在后台启动服务
func (a *App) Start() error {
	cfg := a.container.Config
	signer, err := a.container.Signer()
	if err != nil {
		return fmt.Errorf("failed to build signer: %w", err)
	}
	params, err := ChainParams(cfg.ChainNet)
	if err != nil {
		return err
	}
	priv, err := ParseIdentityKey(cfg.Signer.IdentityKeyHex)
	if err != nil {
		return err
	}
	cert, err := crt.LoadOrGenerate(cfg.Network.CertFile, cfg.Network.KeyFile, nil, priv.PubKey(), params)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	limiter := middleware.NewRateLimiter(cfg.Network.RateLimit, time.Second)
	handler := middleware.AccessLog(limiter.Wrap(frostnet.NewHandler(signer, cfg.Network.MaxRequestBodySize)))
	server := frostnet.NewServer(cfg.Network, frostnet.ServerTLSConfig(cert), handler)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		limiter.Run(a.ctx, 2*time.Minute)
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := server.ListenAndServe(a.ctx); err != nil {
			a.fail(fmt.Errorf("server: %w", err))
		}
	}()
	logs.Info("Service signer %d started on %s", signer.Identifier(), cfg.Network.ListenAddr)

	ttl := cfg.Aggregator.SessionTimeout.Std()
	sweeper := session.NewSweeper(ttl, cfg.Aggregator.CleanupInterval.Std(), session.SweepableFunc(signer.CleanupSessions))
	sweeper.OnEvicted = a.container.Metrics.AddEvicted
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sweeper.Run(a.ctx)
	}()
	logs.Info("Service session sweeper started, ttl=%s", ttl)
	return nil
}

func (a *App) fail(err error) {
	a.mu.Lock()
	first := a.err == nil
	if first {
		a.err = err
	}
	a.mu.Unlock()
	if first {
		logs.Error("%v", err)
		a.cancel()
	}
}

// Err 运行期间的第一个错误
func (a *App) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Done 服务失败或 Stop 后关闭
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Stop 停止应用并等待后台 goroutine 退出，返回运行期间的第一个错误
func (a *App) Stop() error {
	a.cancel()
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logs.Warn("timed out waiting for services to stop")
	}
	return a.Err()
}

// GetContainer 获取容器（用于测试或特殊场景）
func (a *App) GetContainer() *Container {
	return a.container
}
