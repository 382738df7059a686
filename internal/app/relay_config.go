package app

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"healthrelay/internal/log"
	"healthrelay/internal/services/poll"
	"healthrelay/internal/services/session"
)

const (
	defaultListenAddr      = "127.0.0.1:8080"
	defaultReadTimeoutSec  = 30
	defaultShutdownSec     = 10
	defaultDBFile          = "relay.db"
	defaultLogLevel        = "NOTICE"
	defaultMaxRequestBytes = 16 << 20
)

// Server is the relay HTTP configuration.
type Server struct {
	// ListenAddr is the host:port the relay listens on.
	ListenAddr string

	// PublicURL is the externally visible base URL used in session tickets.
	// Defaults to http://ListenAddr.
	PublicURL string

	// AllowedOrigins are the browser origins allowed by CORS. Empty allows any.
	AllowedOrigins []string

	// ReadTimeoutSec bounds reading one request.
	ReadTimeoutSec int

	// ShutdownTimeoutSec bounds draining in-flight requests on shutdown.
	ShutdownTimeoutSec int
}

func (sCfg *Server) validate() error {
	if sCfg.ListenAddr == "" {
		sCfg.ListenAddr = defaultListenAddr
	}
	if _, _, err := net.SplitHostPort(sCfg.ListenAddr); err != nil {
		return fmt.Errorf("config: Server: ListenAddr '%v' is invalid: %v", sCfg.ListenAddr, err)
	}
	if sCfg.PublicURL == "" {
		sCfg.PublicURL = "http://" + sCfg.ListenAddr
	}
	sCfg.PublicURL = strings.TrimRight(sCfg.PublicURL, "/")
	if sCfg.ReadTimeoutSec <= 0 {
		sCfg.ReadTimeoutSec = defaultReadTimeoutSec
	}
	if sCfg.ShutdownTimeoutSec <= 0 {
		sCfg.ShutdownTimeoutSec = defaultShutdownSec
	}
	return nil
}

// Storage is the session database configuration.
type Storage struct {
	// DataDir holds the database file.
	DataDir string

	// DBFile is the bbolt file name, relative to DataDir unless absolute.
	DBFile string
}

// Path returns the database path.
func (stCfg *Storage) Path() string {
	if filepath.IsAbs(stCfg.DBFile) {
		return stCfg.DBFile
	}
	return filepath.Join(stCfg.DataDir, stCfg.DBFile)
}

func (stCfg *Storage) validate() error {
	if stCfg.DataDir == "" {
		stCfg.DataDir = "."
	}
	if stCfg.DBFile == "" {
		stCfg.DBFile = defaultDBFile
	}
	return nil
}

// Session is the session lifecycle configuration.
type Session struct {
	// TTLSec is how long a session lives after creation.
	TTLSec int

	// SweepIntervalSec is how often expired sessions are deleted.
	SweepIntervalSec int

	// PollMaxWaitSec caps the wait a poll may request.
	PollMaxWaitSec int

	// PollIntervalMs is how often a held poll re-checks the session.
	PollIntervalMs int
}

// TTL returns the session lifetime.
func (sCfg *Session) TTL() time.Duration { return time.Duration(sCfg.TTLSec) * time.Second }

// SweepInterval returns the sweep period.
func (sCfg *Session) SweepInterval() time.Duration {
	return time.Duration(sCfg.SweepIntervalSec) * time.Second
}

// PollMaxWait returns the longest poll hold.
func (sCfg *Session) PollMaxWait() time.Duration {
	return time.Duration(sCfg.PollMaxWaitSec) * time.Second
}

// PollInterval returns the poll re-check period.
func (sCfg *Session) PollInterval() time.Duration {
	return time.Duration(sCfg.PollIntervalMs) * time.Millisecond
}

func (sCfg *Session) validate() error {
	if sCfg.TTLSec <= 0 {
		sCfg.TTLSec = int(session.DefaultTTL / time.Second)
	}
	if sCfg.SweepIntervalSec <= 0 {
		sCfg.SweepIntervalSec = int(session.DefaultSweepInterval / time.Second)
	}
	if sCfg.PollMaxWaitSec <= 0 {
		sCfg.PollMaxWaitSec = int(poll.DefaultMaxWait / time.Second)
	}
	if sCfg.PollIntervalMs <= 0 {
		sCfg.PollIntervalMs = int(poll.DefaultInterval / time.Millisecond)
	}
	if sCfg.PollIntervalMs > sCfg.PollMaxWaitSec*1000 {
		return errors.New("config: Session: PollIntervalMs exceeds PollMaxWaitSec")
	}
	return nil
}

// Limits bounds the resources one session may use. Zero values take the
// session service defaults.
type Limits struct {
	MinTokenLength  int
	MaxProviders    int
	MaxChunkBytes   int
	MaxChunks       int
	MaxRequestBytes int
	MaxUploads      int
	MaxStagedBytes  int64
}

func (lCfg *Limits) validate() error {
	def := session.DefaultLimits()
	if lCfg.MinTokenLength <= 0 {
		lCfg.MinTokenLength = def.MinTokenLength
	}
	if lCfg.MaxProviders <= 0 {
		lCfg.MaxProviders = def.MaxProviders
	}
	if lCfg.MaxChunkBytes <= 0 {
		lCfg.MaxChunkBytes = def.MaxChunkBytes
	}
	if lCfg.MaxChunks <= 0 {
		lCfg.MaxChunks = def.Envelope.MaxChunks
	}
	if lCfg.MaxRequestBytes <= 0 {
		lCfg.MaxRequestBytes = defaultMaxRequestBytes
	}
	if lCfg.MaxUploads <= 0 {
		lCfg.MaxUploads = def.MaxUploads
	}
	if lCfg.MaxStagedBytes <= 0 {
		lCfg.MaxStagedBytes = def.MaxStagedBytes
	}
	if int64(lCfg.MaxChunkBytes) > lCfg.MaxStagedBytes {
		return errors.New("config: Limits: MaxChunkBytes exceeds MaxStagedBytes")
	}
	if lCfg.MaxChunkBytes > lCfg.MaxRequestBytes {
		return errors.New("config: Limits: MaxChunkBytes exceeds MaxRequestBytes")
	}
	return nil
}

// Logging is the relay logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch {
	case lvl == "":
		lvl = defaultLogLevel
	case !log.ValidLevel(lvl):
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl
	return nil
}

// Metrics is the prometheus configuration.
type Metrics struct {
	// Enable serves /metrics on the relay listener.
	Enable bool
}

// RelayConfig is the top level relay configuration.
type RelayConfig struct {
	Server  *Server
	Storage *Storage
	Session *Session
	Limits  *Limits
	Logging *Logging
	Metrics *Metrics
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration. Every section is optional.
func (cfg *RelayConfig) FixupAndValidate() error {
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Storage == nil {
		cfg.Storage = &Storage{}
	}
	if cfg.Session == nil {
		cfg.Session = &Session{}
	}
	if cfg.Limits == nil {
		cfg.Limits = &Limits{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}

	if err := cfg.Server.validate(); err != nil {
		return err
	}
	if err := cfg.Storage.validate(); err != nil {
		return err
	}
	if err := cfg.Session.validate(); err != nil {
		return err
	}
	if err := cfg.Limits.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// Load parses and validates the provided buffer b as a config file body and
// returns the RelayConfig.
func Load(b []byte) (*RelayConfig, error) {
	cfg := new(RelayConfig)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// RelayConfig.
func LoadFile(f string) (*RelayConfig, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// DefaultRelayConfig returns a validated configuration with every default.
func DefaultRelayConfig() *RelayConfig {
	cfg := new(RelayConfig)
	if err := cfg.FixupAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}
