package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	// DefaultSecret is only acceptable outside production.
	DefaultSecret = "corpsite-dev-secret-change-me"
)

type Config struct {
	Env        string `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	GRPC       `yaml:"grpc"`
	JWT        `yaml:"jwt"`
	DB         `yaml:"db"`
	Redis      `yaml:"redis"`
	Monitor    `yaml:"monitor"`
	RateLimit  `yaml:"rate_limit"`
	Bootstrap  `yaml:"bootstrap"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES" env-default:"1048576"`
	AllowQueryToken bool          `yaml:"allow_query_token" env:"ALLOW_QUERY_TOKEN" env-default:"false"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"CORS_ORIGINS" env-separator:","`
	// Peers allowed to set X-Forwarded-For, as CIDRs or bare addresses.
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-separator:","`
}

type GRPC struct {
	Address string `yaml:"address" env:"GRPC_ADDR" env-default:":9090"`
}

type JWT struct {
	Secret     string        `yaml:"secret" env:"JWT_SECRET" env-default:"corpsite-dev-secret-change-me"`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL" env-default:"168h"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"JWT_REFRESH_TTL" env-default:"720h"`
	Issuer     string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"corpsite"`
	Audience   string        `yaml:"audience" env:"JWT_AUDIENCE" env-default:"corpsite-users"`
}

type DB struct {
	DSN string `yaml:"dsn" env:"PG_DSN"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Timeout  time.Duration `yaml:"timeout" env:"REDIS_TIMEOUT" env-default:"2s"`
}

type Monitor struct {
	SampleInterval time.Duration `yaml:"sample_interval" env:"METRICS_SAMPLE_INTERVAL" env-default:"30s"`
}

type RateLimit struct {
	Burst     int `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"20"`
	PerSecond int `yaml:"per_second" env:"RATE_LIMIT_PER_SEC" env-default:"5"`
}

// Bootstrap seeds an administrator into the in-memory user store in local mode.
type Bootstrap struct {
	AdminUsername string `yaml:"admin_username" env:"SEED_ADMIN_USERNAME" env-default:"admin"`
	AdminEmail    string `yaml:"admin_email" env:"SEED_ADMIN_EMAIL" env-default:"admin@corpsite.local"`
	AdminPassword string `yaml:"admin_password" env:"SEED_ADMIN_PASSWORD" env-default:"admin12345"`
}

// Load reads configuration from the YAML file at path (when non-empty) and the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if strings.TrimSpace(path) != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load that panics on failure.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("config: unsupported env %q", c.Env)
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret is required")
	}
	if c.IsProduction() && c.JWT.Secret == DefaultSecret {
		return errors.New("config: JWT_SECRET must be set in production")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		return errors.New("config: rate limit must be positive")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses HTTPServer.TrustedProxies.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, e := range c.HTTPServer.TrustedProxies {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("config: trusted proxy %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("config: trusted proxy %q: %w", e, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (c *Config) IsProduction() bool { return c.Env == EnvProd }

// QueryTokenAllowed reports whether tokens may be read from the query string.
func (c *Config) QueryTokenAllowed() bool {
	return c.HTTPServer.AllowQueryToken && !c.IsProduction()
}
