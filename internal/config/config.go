// Package config loads application configuration from environment
// variables. Required variables halt startup when missing; policy
// knobs carry defaults.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Token TTLs are policy:
// the only invariant the code relies on is access < refresh for both
// the plain and the remember-me pair.
type Config struct {
	Env    string
	Port   string
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	AccessTTL          time.Duration
	RememberAccessTTL  time.Duration
	RefreshTTL         time.Duration
	RememberRefreshTTL time.Duration

	BcryptCost   int
	InviteSecret string
	InviteTTL    time.Duration

	LockOnRead bool
}

// Load reads configuration from the environment. Missing required
// variables are fatal.
func Load() Config {
	return Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		AccessTTL:          time.Duration(envIntDefault("ACCESS_TOKEN_TTL_MIN", 60)) * time.Minute,
		RememberAccessTTL:  time.Duration(envIntDefault("ACCESS_TOKEN_REMEMBER_TTL_MIN", 7*24*60)) * time.Minute,
		RefreshTTL:         time.Duration(envIntDefault("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
		RememberRefreshTTL: time.Duration(envIntDefault("REFRESH_TOKEN_REMEMBER_TTL_DAYS", 30)) * 24 * time.Hour,

		BcryptCost:   envIntDefault("BCRYPT_COST", 12),
		InviteSecret: must("INVITE_SECRET"),
		InviteTTL:    time.Duration(envIntDefault("INVITE_TTL_DAYS", 14)) * 24 * time.Hour,

		LockOnRead: envBool("DB_LOCK_ON_READ", true),
	}
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envIntDefault(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
