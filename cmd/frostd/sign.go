package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"frostsign/app"
	"frostsign/frost/core/frost"
	"frostsign/frost/runtime"
	"frostsign/frost/runtime/types"

	"github.com/spf13/cobra"
)

var (
	messageHex string
	tweakHex   string
	purpose    string
	detail     string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a message hash with an account's group key",
	Long: `Run both signing rounds across every signer and print a BIP-340
signature. With --tweak the signature verifies against the BIP-341
tweaked key for that merkle root.

Examples:
  frostd sign --config aggregator.json --user-key 02c6... --message 9f86d081...
  frostd sign --config aggregator.json --user-key 02c6... --message 9f86d081... \
    --tweak 1111111111111111111111111111111111111111111111111111111111111111`,
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&userKeyHex, "user-key", "", "account public key (33-byte compressed, hex)")
	signCmd.Flags().StringVar(&runeID, "rune", "", "rune id (optional)")
	signCmd.Flags().BoolVar(&issuer, "issuer", false, "account is a token issuer")
	signCmd.Flags().StringVar(&messageHex, "message", "", "message hash to sign (hex)")
	signCmd.Flags().StringVar(&tweakHex, "tweak", "", "taproot merkle root (32 bytes, hex)")
	signCmd.Flags().StringVar(&purpose, "purpose", "message", "signing purpose (message, authorization, token_transaction)")
	signCmd.Flags().StringVar(&detail, "detail", "", "audit detail recorded with the session")
	for _, f := range []string{"user-key", "message"} {
		if err := signCmd.MarkFlagRequired(f); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", f, err))
		}
	}
}

func runSign(cmd *cobra.Command, args []string) error {
	id, err := parseMusigID(userKeyHex, runeID, issuer)
	if err != nil {
		return err
	}
	msg, err := hex.DecodeString(messageHex)
	if err != nil || len(msg) == 0 {
		return fmt.Errorf("message must be non-empty hex")
	}
	p, err := parsePurpose(purpose)
	if err != nil {
		return err
	}
	var tweak *types.TweakBytes
	if tweakHex != "" {
		raw, err := hex.DecodeString(tweakHex)
		if err != nil {
			return fmt.Errorf("tweak: %w", err)
		}
		if tweak, err = types.ParseTweak(raw); err != nil {
			return err
		}
	}

	return withAggregator(func(ctx context.Context, _ *app.Container, agg *runtime.FrostAggregator) error {
		sig, err := agg.RunSigningFlow(ctx, id, msg, types.SigningMetadata{Purpose: p, Detail: detail}, tweak)
		if err != nil {
			return err
		}
		pub, err := agg.PublicKeyPackage(ctx, id, tweak)
		if err != nil {
			return err
		}
		if err := frost.VerifySignature(sig, msg, pub.VerifyingKey); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "signature: %x\n", sig.Bytes())
		fmt.Fprintf(out, "key:       %x\n", pub.VerifyingKey.XBytes())
		return nil
	})
}
