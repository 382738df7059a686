package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"healthrelay/internal/domain"
)

// createSessionCmd opens a session for the consumer key and records it in the
// local connection cache.
func createSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-session",
		Short: "Create a collection session on the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			pub, err := wire.Keys.PublicJWK()
			if err != nil {
				return err
			}
			ticket, err := wire.Relay.CreateSession(cmd.Context(), pub)
			if err != nil {
				return fmt.Errorf("creating session: %w", err)
			}

			now := time.Now().UTC()
			if err := wire.Connections.UpsertConnection(domain.Connection{
				ID:        uuid.NewString(),
				SessionID: ticket.SessionID,
				RelayURL:  relayURL,
				UserURL:   ticket.UserURL,
				PollURL:   ticket.PollURL,
				Status:    domain.StatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session: %s\n", ticket.SessionID)
			fmt.Fprintf(out, "User URL: %s\n", ticket.UserURL)
			fmt.Fprintf(out, "Poll URL: %s\n", ticket.PollURL)
			return nil
		},
	}
}
