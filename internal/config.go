package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/quillmark/quill/internal/model"
)

// Config represents the application configuration. The agent and the hub
// share one file; each binary reads the sections it needs.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Hub    HubConfig         `yaml:"hub"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Blob   BlobConfig        `yaml:"blob"`
	Sync   SyncConfig        `yaml:"sync"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Hub.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Blob.Validate(); err != nil {
		return err
	}
	return c.Sync.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the hub's HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// HubConfig tells the agent where the hub lives.
type HubConfig struct {
	BaseURL               string `yaml:"base_url"`
	WSURL                 string `yaml:"ws_url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the REST request timeout.
func (c *HubConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Validate validates the hub endpoint configuration.
func (c *HubConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.WSURL, validation.Required),
		validation.Field(&c.RequestTimeoutSeconds, validation.Min(1)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// BlobConfig holds the directory PDFs are kept in.
type BlobConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the blob configuration.
func (c *BlobConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SyncConfig holds the agent's identity and reconciliation settings.
type SyncConfig struct {
	UserID               string              `yaml:"user_id"`
	MergeStrategy        model.MergeStrategy `yaml:"merge_strategy"`
	ProbeIntervalSeconds int                 `yaml:"probe_interval_seconds"`
}

// ProbeInterval returns how often connectivity is probed.
func (c *SyncConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// Validate validates the sync configuration. UserID may be empty here; the
// agent refuses to start without one, the hub never needs it.
func (c *SyncConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ProbeIntervalSeconds, validation.Min(1)),
	); err != nil {
		return err
	}
	if !c.MergeStrategy.Valid() {
		return fmt.Errorf("sync: unknown merge strategy %q", c.MergeStrategy)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Hub: HubConfig{
			BaseURL:               "http://localhost:8080",
			WSURL:                 "ws://localhost:8080",
			RequestTimeoutSeconds: 15,
		},
		SQLite: SQLiteConfig{
			Path: "./quill.db",
		},
		Blob: BlobConfig{
			Path: "./blobs",
		},
		Sync: SyncConfig{
			MergeStrategy:        model.MergeKeepServer,
			ProbeIntervalSeconds: 5,
		},
	}
}
