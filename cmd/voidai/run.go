package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/auth"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/balancer"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/cache"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/config"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/credit"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/discount"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/dispatch"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider/anthropic"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider/openaic"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider/tools302"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/ratelimit"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/registry"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/secrets"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/security"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/server"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/storage/sqlite"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/telemetry"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/tracker"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg.Logging)
	if err != nil {
		return err
	}
	if closeLog != nil {
		defer closeLog()
	}

	slog.Info("starting voidai", "version", version, "addr", cfg.Server.Addr)

	vault, err := secrets.NewVault(cfg.Auth.MasterSecret)
	if err != nil {
		return err
	}

	// Open database
	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// Bootstrap from config
	ctx := context.Background()
	if err := config.Bootstrap(ctx, cfg, store, vault); err != nil {
		return err
	}

	// Telemetry
	var prom *telemetry.Metrics
	var promHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom = telemetry.NewMetrics(reg)
		promHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	// Shared pooled transport with cached DNS, refreshed in the background.
	resolver := &dnscache.Resolver{}
	dnsCtx, stopDNS := context.WithCancel(ctx)
	defer stopDNS()
	go refreshDNS(dnsCtx, resolver)
	baseTransport := provider.NewTransport(resolver)

	// Register provider adapters
	adapters := provider.NewRegistry()
	registerAdapters(adapters, cfg.Providers, baseTransport)

	// Load the persisted provider/sub-provider set into the balancer. The
	// same closure re-runs after admin mutations.
	bal := balancer.New(slog.Default(), prom)
	reload := func(ctx context.Context) error {
		return loadProviders(ctx, store, bal)
	}
	if err := reload(ctx); err != nil {
		return err
	}

	// Wire services
	catalog := registry.New()
	creditEngine := credit.New(store, slog.Default(), prom)
	discountEngine, err := discount.New(store, catalog, slog.Default())
	if err != nil {
		return err
	}
	scanner := newScanner(cfg.Security, baseTransport)
	recorder := tracker.NewRecorder(slog.Default(), prom)
	track := tracker.New(store, recorder)

	dispatcher := dispatch.New(dispatch.Config{
		Catalog:      catalog,
		Adapters:     adapters,
		Balancer:     bal,
		Credits:      creditEngine,
		Discounts:    discountEngine,
		Security:     scanner,
		Tracker:      track,
		Vault:        vault,
		VideoJobs:    store,
		SubProviders: store,
		Metrics:      prom,
	})

	authSvc, err := auth.New(store, vault, cfg.Auth.MasterAdminKey, slog.Default())
	if err != nil {
		return err
	}

	mem, err := cache.NewMemory(cfg.Cache.MaxSize, cfg.Cache.DefaultTTL)
	if err != nil {
		return err
	}
	var limiter server.RateLimiter
	if cfg.RateLimit.RequestsPerWindow > 0 {
		limiter = ratelimit.New(mem, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window, prom)
	}

	// Create HTTP server
	handler := server.New(server.Deps{
		Auth:         authSvc,
		Dispatch:     dispatcher,
		Catalog:      catalog,
		Discounts:    discountEngine,
		Requests:     track,
		Users:        store,
		Keys:         store,
		SubProviders: store,
		Credits:      creditEngine,
		Vault:        vault,
		Balancer:     bal,
		Limiter:      limiter,
		Metrics:      prom,
		Prometheus:   promHandler,
		ReadyCheck:   store.Ping,
		Reload:       reload,
		KeepAlive:    cfg.Dispatch.KeepAlive,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background workers
	workers := []worker.Worker{
		worker.NewCreditResetWorker(creditEngine, nil),
		worker.NewCleanupWorker(store, nil),
	}
	if cfg.Discounts.Enabled {
		workers = append(workers, worker.NewDiscountRotationWorker(discountEngine, nil))
	}
	runner := worker.NewRunner(workers...)
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workerErr := make(chan error, 1)
	go func() {
		workerErr <- runner.Run(workerCtx)
	}()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("voidai ready", "addr", cfg.Server.Addr)

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	case err := <-workerErr:
		return fmt.Errorf("worker runner stopped: %w", err)
	}

	// Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopWorkers()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("voidai stopped")
	return nil
}

// setupLogging installs the default slog handler: JSON to stderr, mirrored
// into a file when a log directory is configured.
func setupLogging(cfg config.LoggingConfig) (func(), error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := io.Writer(os.Stderr)
	var closeFn func()
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, "voidai.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
	return closeFn, nil
}

// registerAdapters binds each configured provider to its protocol family.
func registerAdapters(reg *provider.Registry, entries []config.ProviderEntry, baseTransport http.RoundTripper) {
	for _, p := range entries {
		if !p.IsEnabled() {
			continue
		}
		caps := make([]gateway.Capability, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, gateway.Capability(c))
		}
		cfg := gateway.ProviderConfiguration{
			Name:            p.Name,
			BaseURL:         p.BaseURL,
			Timeout:         time.Duration(p.TimeoutMs) * time.Millisecond,
			SupportedModels: p.Models,
			Capabilities:    caps,
		}
		switch p.ResolvedProtocol() {
		case "openai":
			reg.Register(p.Name, cfg, openaic.NewFactory(openaic.VariantOpenAI, baseTransport))
		case "xai":
			reg.Register(p.Name, cfg, openaic.NewFactory(openaic.VariantXAI, baseTransport))
		case "anthropic":
			reg.Register(p.Name, cfg, anthropic.NewFactory(baseTransport))
		case "tools302":
			reg.Register(p.Name, cfg, tools302.NewFactory(p.CDNURL, baseTransport))
		default:
			slog.Warn("unknown provider protocol, skipping", "name", p.Name, "protocol", p.ResolvedProtocol())
		}
	}
}

// loadProviders pushes the persisted provider set into the balancer.
// Disabled providers are skipped entirely; the balancer filters disabled
// sub-providers itself so the admin view still sees them.
func loadProviders(ctx context.Context, store *sqlite.Store, bal *balancer.Balancer) error {
	rows, err := store.ListProviders(ctx)
	if err != nil {
		return fmt.Errorf("list providers: %w", err)
	}
	provs := make([]gateway.Provider, 0, len(rows))
	subs := make(map[string][]gateway.SubProvider, len(rows))
	for _, p := range rows {
		if !p.IsActive {
			continue
		}
		provs = append(provs, *p)
		sps, err := store.ListSubProviders(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list sub-providers for %q: %w", p.Name, err)
		}
		for _, sp := range sps {
			subs[p.ID] = append(subs[p.ID], *sp)
		}
	}
	bal.SetProviders(provs, subs)
	slog.Info("providers loaded", "providers", len(provs))
	return nil
}

// newScanner builds the prompt scanner. Without a moderation key the scanner
// runs disabled and every prompt passes.
func newScanner(cfg config.SecurityConfig, baseTransport http.RoundTripper) *security.Service {
	var moderator security.Moderator
	if cfg.Enabled {
		if cfg.ModerationAPIKey == "" {
			slog.Warn("content scanning enabled but no moderation api key configured; prompts pass unscanned")
		} else {
			moderator = openaic.New(gateway.ProviderConfiguration{
				Name:   cfg.ModerationProvider,
				APIKey: cfg.ModerationAPIKey,
			}, openaic.VariantOpenAI, baseTransport)
		}
	}
	return security.New(moderator, cfg.ModerationModel, nil)
}

// refreshDNS re-resolves cached entries periodically so long-lived pooled
// connections follow upstream DNS changes.
func refreshDNS(ctx context.Context, resolver *dnscache.Resolver) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			resolver.Refresh(true)
		case <-ctx.Done():
			return
		}
	}
}
