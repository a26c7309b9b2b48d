package apiclient

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/storefront-mobile/apiclient/tokenstore"
)

// Builder assembles a Client. A Builder can be used for one Build only.
type Builder struct {
	config     Config
	store      tokenstore.Store
	httpClient *http.Client
	logger     *zerolog.Logger
	eventSink  EventSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL overrides Config.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithTokenStore sets where the session token is persisted. Defaults to tokenstore.Memory.
func (b *Builder) WithTokenStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

// WithHTTPClient replaces the transport. Its Timeout, if any, applies on top of
// Config.Timeout.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = &l
	return b
}

// WithEventSink enables session events and routes them to sink.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	b.config.Events.Enabled = sink != nil
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		store = tokenstore.NewMemory()
	}

	hc := b.httpClient
	if hc == nil {
		hc = &http.Client{}
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}
	if cfg.Logging.Level != "" {
		lvl, _ := zerolog.ParseLevel(cfg.Logging.Level)
		logger = logger.Level(lvl)
	}

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		store:   store,
		logger:  logger.With().Str("component", "apiclient").Logger(),
		metrics: NewMetrics(cfg.Metrics),
		events:  newEventDispatcher(cfg.Events, b.eventSink),
	}
	if cfg.RateLimit.Enabled {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	b.built = true
	return c, nil
}
