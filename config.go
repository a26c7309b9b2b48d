package apiclient

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every HTTP attempt, including the refresh call.
const DefaultTimeout = 10 * time.Second

// Config holds everything a Client needs besides its collaborators.
//
// Config values are copied into the Client at Build time and treated as immutable.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders map[string]string
	Endpoints      EndpointsConfig
	Session        SessionConfig
	Errors         ErrorConfig
	RateLimit      RateLimitConfig
	Events         EventsConfig
	Metrics        MetricsConfig
	Logging        LoggingConfig
}

/*
====================================
ENDPOINTS CONFIG
====================================
*/

// EndpointsConfig names the auth endpoints of the remote API, relative to BaseURL.
type EndpointsConfig struct {
	Login    string
	Register string
	Refresh  string
	Logout   string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls how the session token is persisted.
type SessionConfig struct {
	TokenKey      string
	RememberMeKey string
	// LogoutRemote calls the logout endpoint before clearing the local session.
	LogoutRemote bool
}

// ErrorConfig controls translation of non-2xx responses.
type ErrorConfig struct {
	MaxTextLength int
	LogBodies     bool
}

// RateLimitConfig throttles outbound attempts on the client side.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// EventsConfig controls the asynchronous session event dispatcher.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the call latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// LoggingConfig sets the minimum level applied to the configured logger.
type LoggingConfig struct {
	Level string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		DefaultHeaders: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		Endpoints: EndpointsConfig{
			Login:    "/login",
			Register: "/register",
			Refresh:  "/refresh",
			Logout:   "/logout",
		},
		Session: SessionConfig{
			TokenKey:      "token",
			RememberMeKey: "rememberMe",
			LogoutRemote:  true,
		},
		Errors: ErrorConfig{
			MaxTextLength: 200,
			LogBodies:     true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 20,
			Burst:             10,
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.DefaultHeaders != nil {
		out.DefaultHeaders = make(map[string]string, len(cfg.DefaultHeaders))
		for k, v := range cfg.DefaultHeaders {
			out.DefaultHeaders[k] = v
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("BaseURL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.New("BaseURL is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("BaseURL scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("BaseURL must include a host")
	}
	if c.Timeout <= 0 {
		return errors.New("Timeout must be > 0")
	}

	// Endpoints
	for name, ep := range map[string]string{
		"Login":    c.Endpoints.Login,
		"Register": c.Endpoints.Register,
		"Refresh":  c.Endpoints.Refresh,
		"Logout":   c.Endpoints.Logout,
	} {
		if !strings.HasPrefix(ep, "/") {
			return errors.New("Endpoints " + name + " must start with '/'")
		}
	}

	// Session
	if c.Session.TokenKey == "" {
		return errors.New("Session TokenKey is required")
	}
	if c.Session.RememberMeKey == "" {
		return errors.New("Session RememberMeKey is required")
	}
	if c.Session.TokenKey == c.Session.RememberMeKey {
		return errors.New("Session TokenKey and RememberMeKey must differ")
	}

	if c.Errors.MaxTextLength <= 0 {
		return errors.New("Errors MaxTextLength must be > 0")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return errors.New("RateLimit RequestsPerSecond must be > 0 when enabled")
		}
		if c.RateLimit.Burst <= 0 {
			return errors.New("RateLimit Burst must be > 0 when enabled")
		}
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when events are enabled")
	}

	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
			return errors.New("Logging Level is invalid")
		}
	}

	return nil
}
