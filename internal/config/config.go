package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Defaults applied by Load and LoadFromFile.
const (
	DefaultServerPort     = "8080"
	DefaultUserAgent      = "ChannelVault/1.0"
	DefaultTimeout        = 30 * time.Second
	DefaultAuditLogDir    = "storage/logs/imports"
	DefaultMaxUploadBytes = 50 << 20
)

// Config holds application configuration.
type Config struct {
	DatabaseURL string        `yaml:"database_url" env:"DATABASE_URL" validate:"required"`
	ServerPort  string        `yaml:"server_port" env:"SERVER_PORT" validate:"required,numeric"`
	RedisURL    string        `yaml:"redis_url" env:"REDIS_URL" validate:"omitempty,url"`
	UserAgent   string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout     time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT" validate:"gt=0"`

	AuditLogDir    string `yaml:"audit_log_dir" env:"AUDIT_LOG_DIR" validate:"required"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" validate:"gt=0"`

	// WatchDir enables the drop-folder importer; files are imported as WatchUserID.
	WatchDir    string `yaml:"watch_dir" env:"WATCH_DIR"`
	WatchUserID int64  `yaml:"watch_user_id" env:"WATCH_USER_ID" validate:"required_with=WatchDir"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" validate:"omitempty,oneof=json text logfmt"`

	// ArchiveBucket enables uploading finished audit logs to S3.
	ArchiveBucket string `yaml:"archive_bucket" env:"ARCHIVE_BUCKET"`
	ArchivePrefix string `yaml:"archive_prefix" env:"ARCHIVE_PREFIX"`
	ArchiveRegion string `yaml:"archive_region" env:"ARCHIVE_REGION"`
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from the current directory.
// DATABASE_URL is required; everything else has a default or is optional.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		RedisURL:      os.Getenv("REDIS_URL"),
		UserAgent:     os.Getenv("FETCHER_USER_AGENT"),
		AuditLogDir:   os.Getenv("AUDIT_LOG_DIR"),
		WatchDir:      os.Getenv("WATCH_DIR"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		LogFormat:     os.Getenv("LOG_FORMAT"),
		ArchiveBucket: os.Getenv("ARCHIVE_BUCKET"),
		ArchivePrefix: os.Getenv("ARCHIVE_PREFIX"),
		ArchiveRegion: os.Getenv("ARCHIVE_REGION"),
	}
	if s := os.Getenv("FETCHER_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("FETCHER_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if s := os.Getenv("MAX_UPLOAD_BYTES"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if s := os.Getenv("WATCH_USER_ID"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("WATCH_USER_ID: %w", err)
		}
		c.WatchUserID = n
	}
	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = DefaultServerPort
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.AuditLogDir == "" {
		c.AuditLogDir = DefaultAuditLogDir
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
