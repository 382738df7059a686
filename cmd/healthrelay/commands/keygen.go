package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"healthrelay/internal/crypto"
)

func keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the consumer key and store it encrypted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if wire.KeyStore.HasKey() && !force {
				return errors.New("a consumer key already exists (use --force to replace it)")
			}
			key, err := wire.Keys.Generate()
			if err != nil {
				return err
			}
			fp, err := crypto.Fingerprint(key.Public)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Consumer key created.\nFingerprint: %s\n", fp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key")
	return cmd
}
