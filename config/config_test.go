package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

const devConfigYAML = `environment: development
server:
  port: 9090
  enable_cors: true
wallet:
  base_url: http://wallet.internal
session:
  idle_timeout: 10m
logging:
  level: debug
games_dir: testgames
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "app.yaml", devConfigYAML)

	cfg, err := Load(filepath.Join(dir, "app.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Wallet.BaseURL != "http://wallet.internal" {
		t.Fatalf("wallet base url = %q", cfg.Wallet.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadByEnvDefaultsToDevelopment(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config-development.yaml", devConfigYAML)

	cfg, err := LoadByEnv(dir)
	if err != nil {
		t.Fatalf("LoadByEnv: %v", err)
	}

	if !cfg.IsDevelopment() {
		t.Fatalf("environment = %q, want development", cfg.Environment)
	}
	if cfg.IsProduction() {
		t.Fatal("development config reported as production")
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Session.IdleTimeout != 10*time.Minute {
		t.Fatalf("idle timeout = %s, want 10m", cfg.Session.IdleTimeout)
	}

	// Unset values fall back to defaults.
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Fatalf("read timeout default = %s", cfg.Server.ReadTimeout)
	}
	if cfg.Session.WalletTimeout != 5*time.Second {
		t.Fatalf("wallet timeout default = %s", cfg.Session.WalletTimeout)
	}
	if cfg.Session.JackpotFlushInterval != 5*time.Second {
		t.Fatalf("jackpot flush default = %s", cfg.Session.JackpotFlushInterval)
	}
	if cfg.Redis.PoolSize != 10 {
		t.Fatalf("redis pool size default = %d", cfg.Redis.PoolSize)
	}
}
