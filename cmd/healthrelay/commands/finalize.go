package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"healthrelay/internal/domain"
)

func finalizeCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "finalize <session-id>",
		Short: "Mark a session complete so the consumer can collect it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("--token required")
			}
			count, err := wire.Upload.FinalizeSession(cmd.Context(), domain.SessionID(args[0]), token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Finalized with %d providers\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "finalize token used when sending")
	return cmd
}
