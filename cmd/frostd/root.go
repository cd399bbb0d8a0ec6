package main

import (
	"fmt"
	"strings"

	"frostsign/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// v 命令行与 FROSTD_* 环境变量，覆盖配置文件
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "frostd",
	Short: "FROST threshold signing node",
	Long: `frostd runs a FROST (secp256k1, BIP-340) signer node and drives
distributed key generation and two-round signing across a set of signers.

Use 'frostd keygen' to create a signer identity key.
Use 'frostd signer' to serve the signer API over HTTP/3.
Use 'frostd dkg' to run key generation for an account.
Use 'frostd sign' to sign a message hash with an account's group key.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("listen", "", "signer listen address")
	rootCmd.PersistentFlags().String("storage", "", "storage backend (memory, badger)")
	rootCmd.PersistentFlags().String("data", "", "badger data directory")
	rootCmd.PersistentFlags().String("chain", "", "bitcoin network (mainnet, testnet, signet, regtest)")

	mustBind("logLevel", "log-level")
	mustBind("network.listenAddr", "listen")
	mustBind("storage.backend", "storage")
	mustBind("storage.path", "data")
	mustBind("chainNet", "chain")

	v.SetEnvPrefix("FROSTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(signerCmd, dkgCmd, signCmd, keygenCmd)
}

func mustBind(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flag, err))
	}
}

// loadConfig 配置文件 < 环境变量/命令行
func loadConfig(path string, v *viper.Viper) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	override := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	override("logLevel", &cfg.LogLevel)
	override("chainNet", &cfg.ChainNet)
	override("network.listenAddr", &cfg.Network.ListenAddr)
	override("storage.backend", &cfg.Storage.Backend)
	override("storage.path", &cfg.Storage.Path)
	// 身份私钥可以只放在环境变量里
	override("signer.identityKey", &cfg.Signer.IdentityKeyHex)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
