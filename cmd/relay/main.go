package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"healthrelay/internal/app"
	"healthrelay/internal/log"
)

// Config holds the command line configuration.
type Config struct {
	ConfigFile string
	ListenAddr string
	DBFile     string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "End-to-end encrypted health record relay",
		Long: `The relay accepts encrypted provider envelopes from a browser and holds
them until the consumer that created the session collects them. It only ever
sees ciphertext, envelope counts and sizes.`,
		Example: `  # Start with built-in defaults on 127.0.0.1:8080
  relay

  # Start with a configuration file
  relay --config /etc/healthrelay/relay.toml

  # Override the listen address and database file
  relay --listen 0.0.0.0:8080 --db /var/lib/healthrelay/relay.db`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "", "path to the relay configuration file (TOML format)")
	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", "", "listen address, overrides Server.ListenAddr")
	cmd.Flags().StringVar(&cfg.DBFile, "db", "", "database file, overrides Storage.DBFile")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "", "log level, overrides Logging.Level")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the file, if any, and applies flag overrides.
func loadConfig(cfg Config) (*app.RelayConfig, error) {
	relayCfg := new(app.RelayConfig)
	if cfg.ConfigFile != "" {
		var err error
		if relayCfg, err = app.LoadFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
		}
	} else if err := relayCfg.FixupAndValidate(); err != nil {
		return nil, err
	}

	if cfg.ListenAddr != "" {
		if relayCfg.Server.PublicURL == "http://"+relayCfg.Server.ListenAddr {
			relayCfg.Server.PublicURL = ""
		}
		relayCfg.Server.ListenAddr = cfg.ListenAddr
	}
	if cfg.DBFile != "" {
		relayCfg.Storage.DBFile = cfg.DBFile
	}
	if cfg.LogLevel != "" {
		relayCfg.Logging.Level = cfg.LogLevel
	}
	if err := relayCfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return relayCfg, nil
}

func runRelay(cfg Config) error {
	relayCfg, err := loadConfig(cfg)
	if err != nil {
		return err
	}

	backend, err := log.New(relayCfg.Logging.File, relayCfg.Logging.Level, relayCfg.Logging.Disable)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %v", err)
	}
	defer backend.Close()
	logger := backend.GetLogger("main")

	// Setup the signal handling.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)
	defer signal.Stop(haltCh)
	defer signal.Stop(rotateCh)

	relay, err := app.NewRelay(relayCfg, backend)
	if err != nil {
		return fmt.Errorf("failed to start relay: %v", err)
	}
	errCh := relay.Start()

	for {
		select {
		case sig := <-haltCh:
			logger.Noticef("received %v, shutting down", sig)
			relay.Shutdown()
			return nil
		case <-rotateCh:
			if err := backend.Rotate(); err != nil {
				logger.Errorf("log rotation failed: %v", err)
			}
		case err, ok := <-errCh:
			relay.Shutdown()
			if ok && err != nil {
				return err
			}
			return nil
		}
	}
}
