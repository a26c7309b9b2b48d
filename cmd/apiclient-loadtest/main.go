package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/storefront-mobile/apiclient"
	"github.com/storefront-mobile/apiclient/apitest"
	"github.com/storefront-mobile/apiclient/tokenstore"
)

var endpoints = []string{"/cart", "/orders", "/wishlist", "/products", "/profile"}

func main() {
	var (
		baseURL     = flag.String("base-url", "", "target API; if empty an in-process fake API is started")
		email       = flag.String("email", "loadtest@example.com", "login email")
		password    = flag.String("password", "loadtest-password", "login password")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "calls in the steady phase")
		waves       = flag.Int("waves", 5, "token expiry waves (fake API only)")
		storeKind   = flag.String("store", "memory", "token store: memory | file | redis")
		filePath    = flag.String("file", "", "token file for -store=file; defaults to a temp file")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sf:loadtest", "redis key prefix")
		timeout     = flag.Duration("timeout", apiclient.DefaultTimeout, "per-request timeout")
		logLevel    = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()

	if *concurrency <= 0 || *ops <= 0 || *waves < 0 {
		fmt.Fprintln(os.Stderr, "concurrency and ops must be > 0, waves must be >= 0")
		os.Exit(2)
	}

	ctx := context.Background()

	store, cleanup, err := openStore(*storeKind, *filePath, *redisAddr, *prefix, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open token store")
	}
	defer cleanup()

	var fake *apitest.Server
	target := *baseURL
	if target == "" {
		fake = apitest.NewServer()
		defer fake.Close()
		fake.AddUser(*email, *password)
		target = fake.URL
		logger.Info().Str("url", target).Msg("started fake API")
	}

	cfg := apiclient.DefaultConfig()
	cfg.BaseURL = target
	cfg.Timeout = *timeout
	cfg.Logging.Level = *logLevel

	client, err := apiclient.New().
		WithConfig(cfg).
		WithTokenStore(store).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("build client")
	}
	defer client.Close()

	if _, err := client.Login(ctx, apiclient.Credentials{Email: *email, Password: *password, RememberMe: true}); err != nil {
		logger.Fatal().Err(err).Msg("login")
	}

	phases := []phaseReport{runPhase("steady", client, fake, func() latency {
		return runSteadyPhase(ctx, client, *ops, *concurrency)
	})}

	if fake != nil {
		for w := 1; w <= *waves; w++ {
			phases = append(phases, runPhase(fmt.Sprintf("wave %d", w), client, fake, func() latency {
				fake.ExpireAll()
				return runExpiryWave(ctx, client, *concurrency)
			}))
		}
	} else if *waves > 0 {
		logger.Warn().Msg("expiry waves need the fake API; skipped")
	}

	if err := writeReport(os.Stdout, phases); err != nil {
		logger.Fatal().Err(err).Msg("write report")
	}
	if len(phases) > 1 && !coalesced(phases) {
		logger.Error().Msg("a wave issued more than one refresh")
		os.Exit(1)
	}
}

// runPhase runs fn and attributes the refresh counters it moved to the phase.
func runPhase(name string, client *apiclient.Client, fake *apitest.Server, fn func() latency) phaseReport {
	before := client.MetricsSnapshot()
	apiBefore := 0
	if fake != nil {
		apiBefore = fake.RefreshCalls()
	}

	l := fn()

	apiCalls := 0
	if fake != nil {
		apiCalls = fake.RefreshCalls() - apiBefore
	}
	return phaseReport{name: name, latency: l, refresh: diffRefresh(before, client.MetricsSnapshot(), apiCalls)}
}

func openStore(kind, path, addr, prefix string, logger zerolog.Logger) (tokenstore.Store, func(), error) {
	switch kind {
	case "memory":
		return tokenstore.NewMemory(), func() {}, nil
	case "file":
		cleanup := func() {}
		if path == "" {
			dir, err := os.MkdirTemp("", "apiclient-loadtest-*")
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(dir, "session.json")
			cleanup = func() { _ = os.RemoveAll(dir) }
		}
		store, err := tokenstore.NewFile(path)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info().Str("path", path).Msg("using file token store")
		return store, cleanup, nil
	case "redis":
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		var mr *miniredis.Miniredis
		if addr == "" {
			var err error
			mr, err = miniredis.Run()
			if err != nil {
				return nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			logger.Info().Str("addr", addr).Msg("using miniredis")
		} else {
			logger.Info().Str("addr", addr).Msg("using redis")
		}
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		store := tokenstore.NewRedis(rdb, prefix, 0)
		return store, func() {
			_ = rdb.Close()
			if mr != nil {
				mr.Close()
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}

func runSteadyPhase(ctx context.Context, client *apiclient.Client, ops, concurrency int) latency {
	var (
		wg       sync.WaitGroup
		next     atomic.Int64
		failures atomic.Int64
		samples  = make([]time.Duration, ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				if err := client.Get(ctx, endpoints[i%len(endpoints)], nil); err != nil {
					failures.Add(1)
				}
				samples[i] = time.Since(t0)
			}
		}()
	}
	wg.Wait()
	return summarize(time.Since(start), samples, failures.Load())
}

// runExpiryWave fires one call per worker at the same instant. The caller expires the
// session first, so every call sees 401 and they must share one refresh.
func runExpiryWave(ctx context.Context, client *apiclient.Client, concurrency int) latency {
	var (
		wg       sync.WaitGroup
		failures atomic.Int64
		samples  = make([]time.Duration, concurrency)
		gate     = make(chan struct{})
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-gate
			t0 := time.Now()
			if err := client.Get(ctx, endpoints[worker%len(endpoints)], nil); err != nil {
				failures.Add(1)
			}
			samples[worker] = time.Since(t0)
		}(w)
	}
	close(gate)
	wg.Wait()
	return summarize(time.Since(start), samples, failures.Load())
}
