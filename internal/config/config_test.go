package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("WRITEPAD_DEV_LOGIN", "")
	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %v", cfg.AccessTTL)
	}
	if cfg.DevLogin {
		t.Fatal("dev login must default to off")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WRITEPAD_ACCESS_TTL_SECONDS", "60")
	t.Setenv("WRITEPAD_DEV_LOGIN", "true")
	t.Setenv("MINIO_USE_SSL", "not-a-bool")
	cfg := Load()
	if cfg.AccessTTL != time.Minute {
		t.Fatalf("unexpected access ttl %v", cfg.AccessTTL)
	}
	if !cfg.DevLogin {
		t.Fatal("expected dev login enabled")
	}
	if cfg.MinioUseSSL {
		t.Fatal("invalid bool must fall back to default")
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("WRITEPAD_API_URL", "http://api.test/")
	t.Setenv("WRITEPAD_AUTOSAVE_MS", "250")
	cfg := LoadClient()
	if cfg.APIURL != "http://api.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.APIURL)
	}
	if cfg.AutosaveWait != 250*time.Millisecond {
		t.Fatalf("unexpected autosave wait %v", cfg.AutosaveWait)
	}
}
