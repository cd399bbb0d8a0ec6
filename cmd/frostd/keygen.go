package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signer identity key",
	Long: `Generate a secp256k1 identity key for a signer. The private key goes
into the signer's config (signer.identityKey) or FROSTD_SIGNER_IDENTITYKEY;
the public key goes into every peer list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "identityKey:       %s\n", hex.EncodeToString(priv.Serialize()))
		fmt.Fprintf(out, "identityPublicKey: %x\n", priv.PubKey().SerializeCompressed())
		return nil
	},
}
