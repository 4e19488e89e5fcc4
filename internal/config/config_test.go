package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Fatalf("Port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Chain.WaitRounds != 4 {
		t.Fatalf("WaitRounds = %d, want 4", cfg.Chain.WaitRounds)
	}
	if cfg.Sync.Interval != 30*time.Second {
		t.Fatalf("Interval = %v, want 30s", cfg.Sync.Interval)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: 9000
  allowed_origins: ["http://localhost:3000"]
chain:
  algod_url: http://localhost:4001
  indexer_url: http://localhost:8980
redis:
  addr: localhost:6379
  ttl: 90s
sync:
  interval: 10s
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Chain.AlgodURL != "http://localhost:4001" {
		t.Fatalf("AlgodURL = %q", cfg.Chain.AlgodURL)
	}
	if cfg.Redis.TTL != 90*time.Second {
		t.Fatalf("TTL = %v, want 90s", cfg.Redis.TTL)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Fatalf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ALGOD_URL", "http://algod.internal:4001")
	t.Setenv("GAIUS_OPERATOR_MNEMONIC", "abandon abandon ...")
	t.Setenv("SUPABASE_JWT_SECRET", "super-secret")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Chain.AlgodURL != "http://algod.internal:4001" {
		t.Fatalf("AlgodURL = %q", cfg.Chain.AlgodURL)
	}
	if cfg.Chain.OperatorMnemonic != "abandon abandon ..." {
		t.Fatalf("mnemonic not applied")
	}
	if cfg.Supabase.JWTSecret != "super-secret" {
		t.Fatalf("jwt secret not applied")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected validation error")
	}
}
