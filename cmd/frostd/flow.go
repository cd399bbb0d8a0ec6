package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"frostsign/app"
	"frostsign/frost/runtime"
	"frostsign/frost/runtime/types"
)

// 账户参数：dkg 与 sign 共用
var (
	userKeyHex string
	runeID     string
	issuer     bool
)

func parseMusigID(keyHex, rid string, asIssuer bool) (types.MusigID, error) {
	pub, err := hex.DecodeString(keyHex)
	if err != nil {
		return types.MusigID{}, fmt.Errorf("user key: %w", err)
	}
	if asIssuer {
		return types.NewIssuerID(pub, rid)
	}
	return types.NewUserID(pub, rid)
}

func parsePurpose(s string) (types.SigningPurpose, error) {
	switch strings.ToLower(s) {
	case "message", "":
		return types.PurposeMessage, nil
	case "authorization", "auth":
		return types.PurposeAuthorization, nil
	case "token_transaction", "token":
		return types.PurposeTokenTransaction, nil
	}
	return types.PurposeUnspecified, fmt.Errorf("unknown purpose %q", s)
}

// withAggregator 按配置中的地址簿连接所有签名者
func withAggregator(fn func(ctx context.Context, c *app.Container, agg *runtime.FrostAggregator) error) error {
	cfg, err := loadConfig(cfgFile, v)
	if err != nil {
		return err
	}
	container, err := app.NewContainer(cfg, nil)
	if err != nil {
		return err
	}
	defer container.Close()

	httpClient, err := container.HTTPClient()
	if err != nil {
		return err
	}
	clients, err := container.SignerClients(httpClient)
	if err != nil {
		return err
	}
	agg, err := container.Aggregator(clients)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, container, agg)
}
