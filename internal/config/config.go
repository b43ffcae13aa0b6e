package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	pkgconfig "github.com/kulsmauinformatics/sumatin/pkg/config"
)

const defaultCookieSecret = "change-me-sumatin-session-secret"

// Token store backends.
const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

// Config holds all configuration for the portal.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"PORTAL_HTTP_PORT" envDefault:"8080"`

	// Backend
	APIBaseURL string        `env:"SUMATIN_API_BASE_URL" envDefault:"http://localhost:5000/api"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"30s"`

	// Token persistence
	TokenStore    string `env:"TOKEN_STORE" envDefault:"memory"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Portal session cookie
	SessionTTLHours     int    `env:"SESSION_TTL_HOURS" envDefault:"168"`
	SessionCookieSecret string `env:"SESSION_COOKIE_SECRET" envDefault:"change-me-sumatin-session-secret"`
	SessionCookieSecure bool   `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	// SessionReadyWait bounds how long a guarded request waits for a
	// restoring session before it is answered as loading.
	SessionReadyWait time.Duration `env:"SESSION_READY_WAIT" envDefault:"2s"`

	// Kafka; empty disables session events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Rate limiting of the credential endpoints
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
	// TrustedProxies lists the addresses or CIDR ranges whose forwarding
	// headers name the real client. Empty means none are trusted.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Circuit breaker around the backend
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load portal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SessionTTL is the lifetime of the session cookie and of persisted tokens.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address becomes a
// single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, e := range c.TrustedProxies {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", e, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("SUMATIN_API_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("invalid SUMATIN_API_BASE_URL %q: %w", c.APIBaseURL, err)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive, got %s", c.APITimeout)
	}
	switch c.TokenStore {
	case TokenStoreMemory, TokenStoreRedis:
	default:
		return fmt.Errorf("TOKEN_STORE must be %q or %q, got %q", TokenStoreMemory, TokenStoreRedis, c.TokenStore)
	}
	if c.SessionTTLHours < 1 {
		return fmt.Errorf("SESSION_TTL_HOURS must be at least 1, got %d", c.SessionTTLHours)
	}
	if c.SessionCookieSecret == "" {
		return fmt.Errorf("SESSION_COOKIE_SECRET is required")
	}
	if c.Environment != "development" && c.SessionCookieSecret == defaultCookieSecret {
		return fmt.Errorf("SESSION_COOKIE_SECRET must be changed from default value in %s environment", c.Environment)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}
