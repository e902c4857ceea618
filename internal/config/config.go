// Package config loads server configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage selects the persistent store backend.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobS3 holds S3 / MinIO settings for the evidence store.
type BlobS3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Blob selects the evidence blob store backend.
type Blob struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fs_root"`
	S3     BlobS3 `yaml:"s3"`
}

// Assist configures the advisory assistant.
type Assist struct {
	Timeout time.Duration `yaml:"timeout"`
}

// UnmarshalYAML accepts the timeout as a duration string ("5s", "250ms").
func (a *Assist) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Timeout string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parse assist timeout: %w", err)
		}
		a.Timeout = d
	}
	return nil
}

// Config is the full server configuration.
type Config struct {
	Listen  string  `yaml:"listen"`
	Storage Storage `yaml:"storage"`
	Blob    Blob    `yaml:"blob"`
	Assist  Assist  `yaml:"assist"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Listen: ":8080",
		Storage: Storage{
			Driver:     "sqlite",
			SQLitePath: "vmscore.db",
		},
		Blob: Blob{
			Driver: "fs",
			FSRoot: "./evidence",
		},
		Assist: Assist{
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads the YAML file at path (when non-empty) on top of the defaults,
// then applies environment overrides. A missing file at an explicitly given
// path is an error; an empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Listen, "VMSCORE_LISTEN")
	setString(&c.Storage.Driver, "VMSCORE_STORAGE_DRIVER")
	setString(&c.Storage.SQLitePath, "VMSCORE_SQLITE_PATH")
	setString(&c.Storage.PostgresDSN, "VMSCORE_POSTGRES_DSN")
	setString(&c.Blob.Driver, "VMSCORE_BLOB_DRIVER")
	setString(&c.Blob.FSRoot, "VMSCORE_BLOB_FS_ROOT")
	setString(&c.Blob.S3.Bucket, "VMSCORE_BLOB_S3_BUCKET")
	setString(&c.Blob.S3.Region, "VMSCORE_BLOB_S3_REGION")
	setString(&c.Blob.S3.Endpoint, "VMSCORE_BLOB_S3_ENDPOINT")
	setBool(&c.Blob.S3.PathStyle, "VMSCORE_BLOB_S3_PATH_STYLE")
	if v := os.Getenv("VMSCORE_ASSIST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Assist.Timeout = d
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
