package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"healthrelay/internal/domain"
)

// receiveCmd waits for a session, decrypts every provider and writes one
// JSON file per provider, or prints them when --out is empty.
func receiveCmd() *cobra.Command {
	var (
		outDir string
		remove bool
	)
	cmd := &cobra.Command{
		Use:   "receive <session-id>",
		Short: "Wait for a session, then fetch and decrypt its payloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			ctx := cmd.Context()
			id := domain.SessionID(args[0])
			out := cmd.OutOrStdout()

			payloads, err := wire.Receive.CollectSession(ctx, id)
			if err != nil {
				return err
			}

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o700); err != nil {
					return err
				}
			}
			for _, p := range payloads {
				if outDir == "" {
					fmt.Fprintf(out, "# provider %d (version %d)\n%s\n", p.Index, p.Version, p.Data)
					continue
				}
				path := filepath.Join(outDir, fmt.Sprintf("provider-%02d.json", p.Index))
				if err := os.WriteFile(path, p.Data, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", path)
			}

			if err := markReceived(id, len(payloads)); err != nil {
				return err
			}
			if remove {
				if err := wire.Relay.DeleteSession(ctx, id); err != nil {
					return fmt.Errorf("deleting session: %w", err)
				}
				fmt.Fprintln(out, "Session deleted from relay")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for decrypted payloads (default stdout)")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the session from the relay after receiving")
	return cmd
}

// markReceived updates the cached connection for id, if there is one.
func markReceived(id domain.SessionID, providers int) error {
	conns, err := wire.Connections.ListConnections()
	if err != nil {
		return err
	}
	for _, c := range conns {
		if c.SessionID != id {
			continue
		}
		c.Status = domain.StatusFinalized
		c.ProviderCount = providers
		c.UpdatedAt = time.Now().UTC()
		return wire.Connections.UpsertConnection(c)
	}
	return nil
}
