package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"healthrelay/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the consumer key fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := wire.Keys.PublicJWK()
			if err != nil {
				return err
			}
			fp, err := wire.Keys.Fingerprint()
			if err != nil {
				return err
			}
			thumb, err := crypto.Thumbprint(pub)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\nThumbprint:  %s\n", fp, thumb)
			return nil
		},
	}
}
