package commands

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"healthrelay/internal/app"
	"healthrelay/internal/log"
)

var (
	home       string
	passphrase string
	relayURL   string
	logLevel   string
	logFile    string

	wire *app.Wire
)

// Execute runs the CLI with the process arguments.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var backend *log.Backend
	root := &cobra.Command{
		Use:           "healthrelay",
		Short:         "End-to-end encrypted health record relay client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".healthrelay")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			var err error
			backend, err = log.New(logFile, logLevel, false)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(app.Config{
				Home:       home,
				RelayURL:   relayURL,
				Passphrase: passphrase,
			}, backend)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if backend != nil {
				return backend.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.healthrelay)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the consumer key")
	root.PersistentFlags().StringVar(&relayURL, "relay", "http://127.0.0.1:8080", "relay base URL")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "WARNING", "ERROR, WARNING, NOTICE, INFO or DEBUG")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "log file (default stdout)")

	root.AddCommand(
		keygenCmd(),
		fingerprintCmd(),
		createSessionCmd(),
		sendCmd(),
		finalizeCmd(),
		receiveCmd(),
		sessionsCmd(),
	)
	return root
}

func requirePassphrase() error {
	if passphrase == "" {
		return errors.New("passphrase required (-p)")
	}
	return nil
}
