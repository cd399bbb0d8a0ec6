package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"frostsign/config"
	"frostsign/frost/runtime/types"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPubKey = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"

func TestParseMusigID(t *testing.T) {
	id, err := parseMusigID(testPubKey, "840000:3", false)
	require.NoError(t, err)
	assert.Equal(t, types.MusigKindUser, id.Kind)
	assert.Equal(t, "840000:3", id.RuneID)

	id, err = parseMusigID(testPubKey, "", true)
	require.NoError(t, err)
	assert.Equal(t, types.MusigKindIssuer, id.Kind)

	_, err = parseMusigID("zz", "", false)
	assert.Error(t, err)
	_, err = parseMusigID("02", "", false)
	assert.Error(t, err)
}

func TestParsePurpose(t *testing.T) {
	for in, want := range map[string]types.SigningPurpose{
		"":                  types.PurposeMessage,
		"message":           types.PurposeMessage,
		"AUTH":              types.PurposeAuthorization,
		"token_transaction": types.PurposeTokenTransaction,
	} {
		got, err := parsePurpose(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parsePurpose("payment")
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frost.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"logLevel": "debug", "network": {"listenAddr": ":9000"}}`), 0o600))

	vp := viper.New()
	cfg, err := loadConfig(path, vp)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.Network.ListenAddr)

	vp.Set("network.listenAddr", ":9100")
	vp.Set("storage.backend", config.StorageBadger)
	vp.Set("storage.path", "/tmp/frostd")
	vp.Set("chainNet", config.ChainRegTest)
	cfg, err = loadConfig(path, vp)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Network.ListenAddr)
	assert.Equal(t, config.StorageBadger, cfg.Storage.Backend)
	assert.Equal(t, config.ChainRegTest, cfg.ChainNet)

	vp.Set("storage.backend", "redis")
	_, err = loadConfig(path, vp)
	assert.Error(t, err)
}

func TestLoadConfigIdentityFromEnv(t *testing.T) {
	key := strings.Repeat("11", 32)
	t.Setenv("FROSTD_SIGNER_IDENTITYKEY", key)

	vp := viper.New()
	vp.SetEnvPrefix("FROSTD")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	cfg, err := loadConfig("", vp)
	require.NoError(t, err)
	assert.Equal(t, key, cfg.Signer.IdentityKeyHex)
}

func TestKeygenCommand(t *testing.T) {
	var out bytes.Buffer
	keygenCmd.SetOut(&out)
	require.NoError(t, keygenCmd.RunE(keygenCmd, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "identityKey:"))
	assert.Len(t, strings.TrimSpace(strings.TrimPrefix(lines[1], "identityPublicKey:")), 66)
}
