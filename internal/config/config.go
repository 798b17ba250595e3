package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/c-f-an/tov-nextjs-sub002/internal/audit"
)

const envPrefix = "TOV_"

// Session store drivers.
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
	SessionStoreMemory   = "memory"
)

// Config contains runtime configuration values.
type Config struct {
	Env      string
	HTTPAddr string
	PGDSN    string
	LogLevel string

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string

	CookieSecure   bool
	CookieDomain   string
	CORSOrigins    []string
	TrustedProxies []netip.Prefix

	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LoginRatePerSec int
	LoginRateBurst  int
	AuditTimeout    time.Duration
}

// Load reads a .env file when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from the lookup function and validates it.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{
		Env:             e.str("ENV", "development"),
		HTTPAddr:        e.str("HTTP_ADDR", ":8080"),
		PGDSN:           e.str("PG_DSN", ""),
		LogLevel:        e.str("LOG_LEVEL", "info"),
		AccessSecret:    e.str("ACCESS_SECRET", ""),
		RefreshSecret:   e.str("REFRESH_SECRET", ""),
		AccessTTL:       e.duration("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      e.duration("REFRESH_TTL", 7*24*time.Hour),
		Issuer:          e.str("ISSUER", "tov"),
		CookieSecure:    e.boolean("COOKIE_SECURE", true),
		CookieDomain:    e.str("COOKIE_DOMAIN", ""),
		CORSOrigins:     e.list("CORS_ORIGINS", nil),
		TrustedProxies:  e.prefixes("TRUSTED_PROXIES"),
		SessionStore:    strings.ToLower(e.str("SESSION_STORE", SessionStorePostgres)),
		RedisAddr:       e.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   e.str("REDIS_PASSWORD", ""),
		RedisDB:         e.integer("REDIS_DB", 0),
		LoginRatePerSec: e.integer("LOGIN_RATE_PER_SEC", 5),
		LoginRateBurst:  e.integer("LOGIN_RATE_BURST", 10),
		AuditTimeout:    e.duration("AUDIT_TIMEOUT", 3*time.Second),
	}
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.AccessSecret == "" {
		errs = append(errs, fmt.Errorf("%sACCESS_SECRET is required", envPrefix))
	}
	if c.RefreshSecret == "" {
		errs = append(errs, fmt.Errorf("%sREFRESH_SECRET is required", envPrefix))
	}
	if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	} else if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("access token lifetime must be shorter than refresh token lifetime"))
	}
	switch c.SessionStore {
	case SessionStorePostgres, SessionStoreRedis, SessionStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported session store %q", c.SessionStore))
	}
	return errors.Join(errs...)
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return d
}

func (e *env) integer(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return b
}

func (e *env) list(key string, def []string) []string {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// prefixes reads a comma-separated list of CIDR ranges or addresses.
func (e *env) prefixes(key string) []netip.Prefix {
	p, err := audit.ParseTrustedProxies(e.list(key, nil))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return nil
	}
	return p
}
