package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLitePath != "vmscore.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != "fs" || cfg.Blob.FSRoot != "./evidence" {
		t.Fatalf("blob = %+v", cfg.Blob)
	}
	if cfg.Assist.Timeout != 5*time.Second {
		t.Fatalf("assist timeout = %v", cfg.Assist.Timeout)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `listen: ":9090"
storage:
  driver: postgres
  postgres_dsn: postgres://qa@db/vmscore
blob:
  driver: s3
  s3:
    bucket: evidence
    region: eu-west-1
    path_style: true
assist:
  timeout: 30s
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.PostgresDSN != "postgres://qa@db/vmscore" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Blob.S3.Bucket != "evidence" || !cfg.Blob.S3.PathStyle {
		t.Fatalf("s3 = %+v", cfg.Blob.S3)
	}
	if cfg.Assist.Timeout != 30*time.Second {
		t.Fatalf("assist timeout = %v", cfg.Assist.Timeout)
	}
	// Fields the file leaves unset keep their defaults.
	if cfg.Storage.SQLitePath != "vmscore.db" {
		t.Fatalf("sqlite path = %q", cfg.Storage.SQLitePath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VMSCORE_LISTEN", ":7070")
	t.Setenv("VMSCORE_STORAGE_DRIVER", "memory")
	t.Setenv("VMSCORE_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("VMSCORE_ASSIST_TIMEOUT", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Fatalf("listen = %q, want env override", cfg.Listen)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	if !cfg.Blob.S3.PathStyle {
		t.Fatal("path style override not applied")
	}
	if cfg.Assist.Timeout != 250*time.Millisecond {
		t.Fatalf("assist timeout = %v", cfg.Assist.Timeout)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing explicit config file not reported")
	}
}
