// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authcore settings from defaults, an optional YAML
// file and command-line flags, in that order of precedence.
package config

import (
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// DatabaseURLEnv is consulted when no database URL is configured.
const DatabaseURLEnv = "DATABASE_URL"

// Config holds runtime settings for the authcore server.
type Config struct {
	HTTPAddr      string   `koanf:"http_addr"`
	MetricsAddr   string   `koanf:"metrics_addr"`
	Store         string   `koanf:"store"`
	DatabaseURL   string   `koanf:"database_url"`
	RedisAddr     string   `koanf:"redis_addr"`
	RedisPrefix   string   `koanf:"redis_prefix"`
	Hasher        string   `koanf:"hasher"`
	BcryptCost    int      `koanf:"bcrypt_cost"`
	LogFormat     string   `koanf:"log_format"`
	LogLevel      string   `koanf:"log_level"`
	ExcludedPaths []string `koanf:"excluded_paths"`
	CookieName    string   `koanf:"cookie_name"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTPAddr:    "127.0.0.1:5000",
		MetricsAddr: "127.0.0.1:9100",
		Store:       StorePostgres,
		RedisAddr:   "127.0.0.1:6379",
		RedisPrefix: "authcore:",
		Hasher:      "argon2id",
		BcryptCost:  bcrypt.DefaultCost,
		LogFormat:   "json",
		LogLevel:    "info",
		CookieName:  "session_id",
	}
}

// RegisterFlags adds one flag per setting, defaulting to Default().
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http_addr", d.HTTPAddr, "HTTP listen address")
	fs.String("metrics_addr", d.MetricsAddr, "metrics and health listen address (empty disables)")
	fs.String("store", d.Store, "credential store backend (postgres or redis)")
	fs.String("database_url", d.DatabaseURL, "PostgreSQL connection URL (or "+DatabaseURLEnv+")")
	fs.String("redis_addr", d.RedisAddr, "Redis address")
	fs.String("redis_prefix", d.RedisPrefix, "Redis key prefix")
	fs.String("hasher", d.Hasher, "password hasher (argon2id or bcrypt)")
	fs.Int("bcrypt_cost", d.BcryptCost, "bcrypt cost factor")
	fs.String("log_format", d.LogFormat, "log format (json or text)")
	fs.String("log_level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.StringSlice("excluded_paths", d.ExcludedPaths, "paths exempt from Basic authentication (globs allowed)")
	fs.String("cookie_name", d.CookieName, "session cookie name")
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and any flags explicitly set on fs (may be nil).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	d := Default()
	defaults := map[string]any{
		"http_addr":      d.HTTPAddr,
		"metrics_addr":   d.MetricsAddr,
		"store":          d.Store,
		"database_url":   d.DatabaseURL,
		"redis_addr":     d.RedisAddr,
		"redis_prefix":   d.RedisPrefix,
		"hasher":         d.Hasher,
		"bcrypt_cost":    d.BcryptCost,
		"log_format":     d.LogFormat,
		"log_level":      d.LogLevel,
		"excluded_paths": []string{},
		"cookie_name":    d.CookieName,
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		// Unchanged flags only fill keys that are still missing, so file values win over flag defaults.
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv(DatabaseURLEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key string, value any, msg string) error {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf("%s", msg)
	}

	if strings.TrimSpace(c.HTTPAddr) == "" {
		return invalid("http_addr", c.HTTPAddr, "http_addr is required")
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return invalid("database_url", "", "database_url or "+DatabaseURLEnv+" is required for the postgres store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr", "", "redis_addr is required for the redis store")
		}
	default:
		return invalid("store", c.Store, "store must be postgres or redis")
	}
	if !slices.Contains([]string{"argon2id", "bcrypt"}, c.Hasher) {
		return invalid("hasher", c.Hasher, "hasher must be argon2id or bcrypt")
	}
	if c.Hasher == "bcrypt" && (c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost) {
		return invalid("bcrypt_cost", c.BcryptCost, "bcrypt_cost out of range")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", c.LogFormat, "log_format must be json or text")
	}
	if c.CookieName == "" {
		return invalid("cookie_name", "", "cookie_name is required")
	}
	for _, p := range c.ExcludedPaths {
		if !strings.HasPrefix(p, "/") {
			return invalid("excluded_paths", p, "excluded paths must start with /")
		}
	}
	return nil
}
