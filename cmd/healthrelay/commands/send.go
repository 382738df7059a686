package commands

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"healthrelay/internal/domain"
)

// sendCmd plays the browser's part: each JSON file becomes one provider.
func sendCmd() *cobra.Command {
	var (
		token         string
		legacyVersion int
		finalize      bool
	)
	cmd := &cobra.Command{
		Use:   "send <session-id> <payload.json>...",
		Short: "Encrypt JSON payloads for a session and upload them",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := domain.SessionID(args[0])
			out := cmd.OutOrStdout()

			if token == "" {
				var err error
				if token, err = newToken(); err != nil {
					return err
				}
				fmt.Fprintf(out, "Finalize token: %s\n", token)
			}

			info, err := wire.Relay.GetSessionInfo(ctx, id)
			if err != nil {
				return fmt.Errorf("looking up session %s: %w", id, err)
			}

			for _, path := range args[1:] {
				raw, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				if !json.Valid(raw) {
					return fmt.Errorf("%s: not valid JSON", path)
				}
				payload := json.RawMessage(raw)

				var count int
				if legacyVersion != 0 {
					count, err = wire.Upload.SendEnvelope(ctx, id, info.PublicKey, token, payload,
						domain.EnvelopeVersion(legacyVersion))
				} else {
					count, err = wire.Upload.SendPayload(ctx, id, info.PublicKey, token, payload)
				}
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(out, "Sent %s (providers: %d)\n", path, count)
			}

			if finalize {
				count, err := wire.Upload.FinalizeSession(ctx, id, token)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Finalized with %d providers\n", count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "finalize token (default: generate one)")
	cmd.Flags().IntVar(&legacyVersion, "legacy-version", 0, "send a single version 1 or 2 envelope instead of chunks")
	cmd.Flags().BoolVar(&finalize, "finalize", false, "finalize the session after sending")
	return cmd
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
