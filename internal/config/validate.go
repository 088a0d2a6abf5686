// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/internhub/internhub/internal/logging"
	"github.com/internhub/internhub/pkg/errutil"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// Environments lists the accepted deployment environments.
var Environments = []string{"development", "test", "staging", "production"}

// defaultSecretWords betray a placeholder secret copied from an example file.
var defaultSecretWords = []string{
	"secret", "mysecret", "jwt_secret", "your_secret_key",
	"change_me", "default", "123456", "password",
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !slices.Contains(Environments, c.Environment) {
		add("environment must be one of %s, got %q", strings.Join(Environments, ", "), c.Environment)
	}

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if c.Environment == "production" {
		if err := checkPublicURL(c.HTTP.PublicURL); err != "" {
			add("http.public_url %s", err)
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		add("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}

	if c.Auth.JWTSecret == "" {
		add("auth.jwt_secret is required")
	} else if reason := SecretWeakness(c.Auth.JWTSecret); reason != "" {
		add("auth.jwt_secret %s", reason)
	}
	if c.Auth.ApprovalSecret != "" {
		if reason := SecretWeakness(c.Auth.ApprovalSecret); reason != "" {
			add("auth.approval_secret %s", reason)
		}
	}
	for name, d := range map[string]time.Duration{
		"auth.access_ttl":   c.Auth.AccessTTL,
		"auth.refresh_ttl":  c.Auth.RefreshTTL,
		"auth.approval_ttl": c.Auth.ApprovalTTL,
	} {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}
	if c.Auth.PurgeInterval < 0 {
		add("auth.purge_interval cannot be negative")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		add("auth.bcrypt_cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.Auth.BcryptCost)
	}

	switch c.Store.Driver {
	case DriverFile:
		if c.Store.Path == "" {
			add("store.path is required for the file driver")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres driver")
		}
	default:
		add("store.driver must be %q or %q, got %q", DriverFile, DriverPostgres, c.Store.Driver)
	}

	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return oops.Code("CONFIG_INVALID").
		With(errutil.ProblemsKey, problems).
		Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// SecretWeakness explains why a signing secret is unacceptable, or returns ""
// when it is fine.
func SecretWeakness(secret string) string {
	if len(secret) < MinSecretLength {
		return fmt.Sprintf("must be at least %d characters, got %d", MinSecretLength, len(secret))
	}
	if isPredictable(secret) {
		return "is too predictable; generate one with `openssl rand -hex 32`"
	}
	lower := strings.ToLower(secret)
	for _, w := range defaultSecretWords {
		if strings.Contains(lower, w) {
			return "looks like a default or placeholder value"
		}
	}
	return ""
}

// isPredictable flags secrets made of one repeated character or pair, common
// keyboard sequences, or fewer than half distinct characters.
func isPredictable(s string) bool {
	if repeatsUnit(s, 1) || repeatsUnit(s, 2) {
		return true
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "123456") || strings.Contains(lower, "abcdef") || strings.Contains(lower, "qwerty") {
		return true
	}
	distinct := make(map[rune]struct{})
	n := 0
	for _, r := range s {
		distinct[r] = struct{}{}
		n++
	}
	return float64(len(distinct))/float64(n) < 0.5
}

func repeatsUnit(s string, size int) bool {
	if len(s) < 2*size || len(s)%size != 0 {
		return false
	}
	return strings.Repeat(s[:size], len(s)/size) == s
}

func checkPublicURL(raw string) string {
	if raw == "" {
		return "is required in production"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "must be an absolute URL"
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return "cannot point at localhost in production"
	}
	return ""
}
