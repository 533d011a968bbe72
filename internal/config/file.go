package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL    string `yaml:"database_url"`
	ServerPort     string `yaml:"server_port"`
	RedisURL       string `yaml:"redis_url"`
	UserAgent      string `yaml:"user_agent"`
	Timeout        string `yaml:"timeout"`
	AuditLogDir    string `yaml:"audit_log_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	WatchDir       string `yaml:"watch_dir"`
	WatchUserID    int64  `yaml:"watch_user_id"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	ArchiveBucket  string `yaml:"archive_bucket"`
	ArchivePrefix  string `yaml:"archive_prefix"`
	ArchiveRegion  string `yaml:"archive_region"`
}

// LoadFromFile loads config from a YAML file. database_url is required.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	c := &Config{
		DatabaseURL:    f.DatabaseURL,
		ServerPort:     f.ServerPort,
		RedisURL:       f.RedisURL,
		UserAgent:      f.UserAgent,
		AuditLogDir:    f.AuditLogDir,
		MaxUploadBytes: f.MaxUploadBytes,
		WatchDir:       f.WatchDir,
		WatchUserID:    f.WatchUserID,
		LogLevel:       f.LogLevel,
		LogFormat:      f.LogFormat,
		ArchiveBucket:  f.ArchiveBucket,
		ArchivePrefix:  f.ArchivePrefix,
		ArchiveRegion:  f.ArchiveRegion,
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
