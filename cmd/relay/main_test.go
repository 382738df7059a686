package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := loadConfig(Config{ListenAddr: "0.0.0.0:9999", DBFile: "/tmp/r.db", LogLevel: "debug"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.ListenAddr != "0.0.0.0:9999" {
		t.Fatalf("listen = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.PublicURL != "http://0.0.0.0:9999" {
		t.Fatalf("public url = %q", cfg.Server.PublicURL)
	}
	if cfg.Storage.Path() != "/tmp/r.db" {
		t.Fatalf("db = %q", cfg.Storage.Path())
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestLoadConfig_FileKeepsPublicURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	body := "[Server]\nPublicURL = \"https://relay.example.org\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(Config{ConfigFile: path, ListenAddr: "127.0.0.1:7000"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.PublicURL != "https://relay.example.org" {
		t.Fatalf("public url = %q", cfg.Server.PublicURL)
	}

	if _, err := loadConfig(Config{ConfigFile: filepath.Join(t.TempDir(), "none.toml")}); err == nil {
		t.Fatal("missing config file accepted")
	}
	if _, err := loadConfig(Config{LogLevel: "chatty"}); err == nil {
		t.Fatal("bad level accepted")
	}
}
