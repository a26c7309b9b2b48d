package apiclient

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envConfig is the environment view of Config. Unset variables keep DefaultConfig values.
type envConfig struct {
	BaseURL          string        `env:"STOREFRONT_API_URL"`
	Timeout          time.Duration `env:"STOREFRONT_API_TIMEOUT" envDefault:"10s"`
	LoginEndpoint    string        `env:"STOREFRONT_LOGIN_ENDPOINT" envDefault:"/login"`
	RegisterEndpoint string        `env:"STOREFRONT_REGISTER_ENDPOINT" envDefault:"/register"`
	RefreshEndpoint  string        `env:"STOREFRONT_REFRESH_ENDPOINT" envDefault:"/refresh"`
	LogoutEndpoint   string        `env:"STOREFRONT_LOGOUT_ENDPOINT" envDefault:"/logout"`
	TokenKey         string        `env:"STOREFRONT_TOKEN_KEY" envDefault:"token"`
	RememberMeKey    string        `env:"STOREFRONT_REMEMBER_ME_KEY" envDefault:"rememberMe"`
	LogLevel         string        `env:"STOREFRONT_LOG_LEVEL" envDefault:"info"`
	RateLimitRPS     float64       `env:"STOREFRONT_RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst   int           `env:"STOREFRONT_RATE_LIMIT_BURST" envDefault:"10"`
	MetricsEnabled   bool          `env:"STOREFRONT_METRICS_ENABLED" envDefault:"false"`
}

// LoadConfigFromEnv builds a Config from STOREFRONT_* environment variables. Files in
// dotenvFiles are loaded first; a missing file is skipped and never overrides variables
// already set in the process environment.
func LoadConfigFromEnv(dotenvFiles ...string) (Config, error) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	ec, err := env.ParseAs[envConfig]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg := defaultConfig()
	cfg.BaseURL = ec.BaseURL
	cfg.Timeout = ec.Timeout
	cfg.Endpoints = EndpointsConfig{
		Login:    ec.LoginEndpoint,
		Register: ec.RegisterEndpoint,
		Refresh:  ec.RefreshEndpoint,
		Logout:   ec.LogoutEndpoint,
	}
	cfg.Session.TokenKey = ec.TokenKey
	cfg.Session.RememberMeKey = ec.RememberMeKey
	cfg.Logging.Level = ec.LogLevel
	if ec.RateLimitRPS > 0 {
		cfg.RateLimit = RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: ec.RateLimitRPS,
			Burst:             ec.RateLimitBurst,
		}
	}
	cfg.Metrics.Enabled = ec.MetricsEnabled

	return cfg, cfg.Validate()
}
