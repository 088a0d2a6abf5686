// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

// Package config loads InternHub configuration from, in increasing priority,
// built-in defaults, a YAML file, the legacy environment variable names,
// INTERNHUB_-prefixed environment variables and command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/internhub/internhub/internal/auth"
	"github.com/internhub/internhub/internal/xdg"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// key segments: INTERNHUB_AUTH__JWT_SECRET sets auth.jwt_secret.
const EnvPrefix = "INTERNHUB_"

// Store drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Config is the complete runtime configuration.
type Config struct {
	Environment string        `koanf:"environment"`
	HTTP        HTTPConfig    `koanf:"http"`
	Metrics     MetricsConfig `koanf:"metrics"`
	Log         LogConfig     `koanf:"log"`
	Auth        AuthConfig    `koanf:"auth"`
	Store       StoreConfig   `koanf:"store"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
	// PublicURL is the externally reachable base URL, used in approval links.
	PublicURL       string        `koanf:"public_url"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuthConfig configures hashing and token issuance.
type AuthConfig struct {
	JWTSecret        string        `koanf:"jwt_secret"`
	ApprovalSecret   string        `koanf:"approval_secret"`
	Issuer           string        `koanf:"issuer"`
	Audience         string        `koanf:"audience"`
	ApprovalAudience string        `koanf:"approval_audience"`
	AccessTTL        time.Duration `koanf:"access_ttl"`
	RefreshTTL       time.Duration `koanf:"refresh_ttl"`
	ApprovalTTL      time.Duration `koanf:"approval_ttl"`
	BcryptCost       int           `koanf:"bcrypt_cost"`
	// PurgeInterval is how often expired refresh tokens are deleted. Zero disables the sweeper.
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// StoreConfig selects and configures the account and refresh-token store.
type StoreConfig struct {
	Driver      string `koanf:"driver"`
	Path        string `koanf:"path"`
	DatabaseURL string `koanf:"database_url"`
}

// TokenConfig converts the auth section for auth.NewTokenService.
func (c AuthConfig) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:           c.JWTSecret,
		ApprovalSecret:   c.ApprovalSecret,
		Issuer:           c.Issuer,
		Audience:         c.Audience,
		ApprovalAudience: c.ApprovalAudience,
		AccessTTL:        c.AccessTTL,
		RefreshTTL:       c.RefreshTTL,
		ApprovalTTL:      c.ApprovalTTL,
	}
}

func defaults() map[string]any {
	return map[string]any{
		"environment":            "development",
		"http.addr":              ":3000",
		"http.public_url":        "http://localhost:3000",
		"http.read_timeout":      15 * time.Second,
		"http.write_timeout":     15 * time.Second,
		"http.shutdown_timeout":  10 * time.Second,
		"metrics.addr":           "127.0.0.1:9100",
		"log.level":              "info",
		"log.format":             "json",
		"auth.issuer":            auth.DefaultIssuer,
		"auth.audience":          auth.DefaultAudience,
		"auth.approval_audience": auth.DefaultApprovalAudience,
		"auth.access_ttl":        auth.DefaultAccessTTL,
		"auth.refresh_ttl":       auth.DefaultRefreshTTL,
		"auth.approval_ttl":      auth.DefaultApprovalTTL,
		"auth.bcrypt_cost":       auth.DefaultBcryptCost,
		"auth.purge_interval":    time.Hour,
		"store.driver":           DriverFile,
		"store.path":             xdg.StorePath(),
		"store.database_url":     "",
	}
}

// legacyEnv maps the environment names of the previous deployment to keys.
var legacyEnv = map[string]string{
	"NODE_ENV":                  "environment",
	"PORT":                      "http.addr",
	"BACKEND_URL":               "http.public_url",
	"JWT_SECRET":                "auth.jwt_secret",
	"APPROVAL_TOKEN_SECRET":     "auth.approval_secret",
	"JWT_EXPIRES_IN":            "auth.access_ttl",
	"APPROVAL_TOKEN_EXPIRES_IN": "auth.approval_ttl",
	"DATABASE_URL":              "store.database_url",
}

// flagKeys maps command-line flag names to keys. Flags not listed are ignored.
var flagKeys = map[string]string{
	"env":          "environment",
	"addr":         "http.addr",
	"public-url":   "http.public_url",
	"metrics-addr": "metrics.addr",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"store":        "store.driver",
	"store-path":   "store.path",
	"database-url": "store.database_url",
	"bcrypt-cost":  "auth.bcrypt_cost",
}

// RegisterFlags adds the configuration override flags to fs. Their defaults
// are empty so that only flags set on the command line take effect.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("env", "", "deployment environment (development, test, staging, production)")
	fs.String("addr", "", "API listen address")
	fs.String("public-url", "", "externally reachable base URL")
	fs.String("metrics-addr", "", "metrics/health HTTP address")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("store", "", "store driver (file or postgres)")
	fs.String("store-path", "", "JSON store path for the file driver")
	fs.String("database-url", "", "PostgreSQL URL for the postgres driver")
	fs.Int("bcrypt-cost", 0, "bcrypt work factor")
}

// LoadOptions controls Load.
type LoadOptions struct {
	// File is an explicit config path. When empty the XDG config file is read
	// if it exists.
	File string
	// Flags holds overrides registered with RegisterFlags. May be nil.
	Flags *pflag.FlagSet
	// SkipValidation returns the merged configuration without running
	// Validate. Maintenance commands that never sign tokens use it.
	SkipValidation bool
}

// Load assembles and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if err := loadFile(k, opts.File); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyValue), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "legacy env").Wrap(err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", prefixedValue), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		p := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	if opts.SkipValidation {
		return &cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_FILE_NOT_FOUND").With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
	}
	return nil
}

func legacyValue(name, value string) (string, any) {
	key, ok := legacyEnv[name]
	if !ok || value == "" {
		return "", nil
	}
	switch key {
	case "http.addr":
		if _, err := strconv.Atoi(value); err == nil {
			value = ":" + value
		}
	case "auth.access_ttl", "auth.approval_ttl":
		value = expandDays(value)
	}
	return key, value
}

func prefixedValue(name, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if strings.HasSuffix(key, "_ttl") || strings.HasSuffix(key, "_interval") {
		value = expandDays(value)
	}
	return key, value
}

// expandDays rewrites a whole-day duration such as "7d" into hours, the
// largest unit time.ParseDuration accepts. Other values pass through.
func expandDays(v string) string {
	days, ok := strings.CutSuffix(strings.TrimSpace(v), "d")
	if !ok {
		return v
	}
	n, err := strconv.Atoi(days)
	if err != nil || n < 0 {
		return v
	}
	return strconv.Itoa(n*24) + "h"
}
