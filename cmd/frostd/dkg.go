package main

import (
	"context"
	"fmt"

	"frostsign/app"
	"frostsign/frost/core/curve"
	"frostsign/frost/runtime"

	"github.com/spf13/cobra"
)

var dkgCmd = &cobra.Command{
	Use:   "dkg",
	Short: "Run distributed key generation for an account",
	Long: `Run the three DKG rounds across every signer in the config's peer list.
All signers must be reachable. The aggregator state is kept in the configured
storage so that later 'frostd sign' calls can use the key.

Examples:
  frostd dkg --config aggregator.json --storage badger --data ./agg \
    --user-key 02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5`,
	RunE: runDkg,
}

func init() {
	dkgCmd.Flags().StringVar(&userKeyHex, "user-key", "", "account public key (33-byte compressed, hex)")
	dkgCmd.Flags().StringVar(&runeID, "rune", "", "rune id (optional)")
	dkgCmd.Flags().BoolVar(&issuer, "issuer", false, "account is a token issuer")
	if err := dkgCmd.MarkFlagRequired("user-key"); err != nil {
		panic(fmt.Sprintf("failed to mark user-key flag as required: %v", err))
	}
}

func runDkg(cmd *cobra.Command, args []string) error {
	id, err := parseMusigID(userKeyHex, runeID, issuer)
	if err != nil {
		return err
	}
	return withAggregator(func(ctx context.Context, c *app.Container, agg *runtime.FrostAggregator) error {
		pub, err := agg.RunDkgFlow(ctx, id)
		if err != nil {
			return err
		}
		params, err := app.ChainParams(c.Config.ChainNet)
		if err != nil {
			return err
		}
		addr, err := curve.TaprootAddress(pub.VerifyingKey, params)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "account:   %s\n", id)
		fmt.Fprintf(out, "group key: %x\n", pub.VerifyingKey.Bytes())
		fmt.Fprintf(out, "address:   %s\n", addr)
		for _, sid := range agg.Signers() {
			fmt.Fprintf(out, "share %d:   %x\n", sid, pub.VerifyingShares[sid].Bytes())
		}
		return nil
	})
}
