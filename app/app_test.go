package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"frostsign/config"
	"frostsign/frost/core/frost"
	"frostsign/frost/runtime"
	"frostsign/frost/runtime/types"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusterConfigs 3 个签名者的配置，共用同一张地址簿
func clusterConfigs(t *testing.T) []*config.Config {
	t.Helper()
	var (
		keys  []string
		peers []config.PeerConfig
	)
	for i := uint16(1); i <= 3; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		keys = append(keys, hex.EncodeToString(priv.Serialize()))
		peers = append(peers, config.PeerConfig{
			Identifier:           i,
			IdentityPublicKeyHex: hex.EncodeToString(priv.PubKey().SerializeCompressed()),
			URL:                  "https://127.0.0.1:7443",
		})
	}

	out := make([]*config.Config, 0, 3)
	for i := range keys {
		cfg := config.DefaultConfig()
		cfg.Signer.Identifier = uint16(i + 1)
		cfg.Signer.IdentityKeyHex = keys[i]
		cfg.Signer.Peers = peers
		out = append(out, cfg)
	}
	return out
}

func TestOpenBackend(t *testing.T) {
	mem, err := OpenBackend(config.StorageConfig{Backend: config.StorageMemory})
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	db, err := OpenBackend(config.StorageConfig{Backend: config.StorageBadger, Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenBackend(config.StorageConfig{Backend: "redis"})
	assert.Error(t, err)
}

func TestChainParams(t *testing.T) {
	p, err := ChainParams(config.ChainRegTest)
	require.NoError(t, err)
	assert.Equal(t, chaincfg.RegressionNetParams.Name, p.Name)

	p, err = ChainParams("")
	require.NoError(t, err)
	assert.Equal(t, chaincfg.MainNetParams.Name, p.Name)

	_, err = ChainParams("litecoin")
	assert.Error(t, err)
}

func TestParseIdentityKey(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	got, err := ParseIdentityKey(hex.EncodeToString(priv.Serialize()))
	require.NoError(t, err)
	assert.True(t, got.PubKey().IsEqual(priv.PubKey()))

	_, err = ParseIdentityKey("abcd")
	assert.Error(t, err)
}

func TestContainerDkgAndSign(t *testing.T) {
	ctx := context.Background()
	cfgs := clusterConfigs(t)

	signers := make(map[frost.Identifier]runtime.SignerClient, len(cfgs))
	for _, cfg := range cfgs {
		c, err := NewContainer(cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		s, err := c.Signer()
		require.NoError(t, err)
		signers[s.Identifier()] = s
	}

	aggCfg := config.DefaultConfig()
	aggContainer, err := NewContainer(aggCfg, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = aggContainer.Close() })
	agg, err := aggContainer.Aggregator(signers)
	require.NoError(t, err)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	id, err := types.NewUserID(priv.PubKey().SerializeCompressed(), "")
	require.NoError(t, err)

	pub, err := agg.RunDkgFlow(ctx, id)
	require.NoError(t, err)
	msg := sha256.Sum256([]byte("test"))
	sig, err := agg.RunSigningFlow(ctx, id, msg[:], types.SigningMetadata{Purpose: types.PurposeMessage}, nil)
	require.NoError(t, err)
	assert.NoError(t, frost.VerifySignature(sig, msg[:], pub.VerifyingKey))
}

func TestSignerClients(t *testing.T) {
	cfgs := clusterConfigs(t)
	c, err := NewContainer(cfgs[0], nil)
	require.NoError(t, err)
	defer c.Close()

	httpClient, err := c.HTTPClient()
	require.NoError(t, err)
	clients, err := c.SignerClients(httpClient)
	require.NoError(t, err)
	assert.Len(t, clients, 3)

	c.Config.Signer.Peers[1].URL = ""
	_, err = c.SignerClients(httpClient)
	assert.Error(t, err)
}

func TestNewContainerRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "loud"
	_, err := NewContainer(cfg, nil)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Storage.Backend = "redis"
	_, err = NewContainer(cfg, nil)
	assert.Error(t, err)
}

func TestAppStartStop(t *testing.T) {
	cfg := clusterConfigs(t)[0]
	cfg.Network.ListenAddr = "127.0.0.1:0"
	c, err := NewContainer(cfg, nil)
	require.NoError(t, err)
	defer c.Close()

	a := NewApp(c)
	require.NoError(t, a.Start())
	assert.NoError(t, a.Stop())
	<-a.Done()
}

func TestAppStopReturnsFirstFailure(t *testing.T) {
	c, err := NewContainer(clusterConfigs(t)[0], nil)
	require.NoError(t, err)
	defer c.Close()

	a := NewApp(c)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		a.wg.Add(1)
		wg.Add(1)
		go func(i int) {
			defer a.wg.Done()
			defer wg.Done()
			a.fail(fmt.Errorf("worker %d", i))
		}(i)
	}
	err = a.Stop()
	wg.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker")
	assert.Equal(t, err, a.Err(), "first failure is kept")
	<-a.Done()
}
