// Command server runs the NexMath tutoring backend.
//
// Configuration is read from a YAML file (-config flag, NEXMATH_CONFIG,
// ./config.yaml or /etc/nexmath/config.yaml) and NEXMATH_* environment
// variables. ANTHROPIC_API_KEY and CLAUDE_MODEL are honoured as well.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/client"
	k8sconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/nexmath/nexmath/pkg/auth"
	"github.com/nexmath/nexmath/pkg/auth/apikey"
	"github.com/nexmath/nexmath/pkg/auth/jwt"
	"github.com/nexmath/nexmath/pkg/auth/noop"
	"github.com/nexmath/nexmath/pkg/config"
	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/observability"
	"github.com/nexmath/nexmath/pkg/plot"
	"github.com/nexmath/nexmath/pkg/plot/remote"
	"github.com/nexmath/nexmath/pkg/plot/remote/kubernetes"
	"github.com/nexmath/nexmath/pkg/provider"
	"github.com/nexmath/nexmath/pkg/provider/openaicompat"
	"github.com/nexmath/nexmath/pkg/storage/memory"
	"github.com/nexmath/nexmath/pkg/storage/postgres"
	"github.com/nexmath/nexmath/pkg/storage/redis"
	"github.com/nexmath/nexmath/pkg/transport"
	transporthttp "github.com/nexmath/nexmath/pkg/transport/http"
	"github.com/nexmath/nexmath/pkg/tutor"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("nexmath starting",
		"addr", cfg.Server.Addr(),
		"backend", cfg.Provider.BackendURL,
		"model", cfg.Provider.Model,
		"storage", cfg.Storage.Type,
		"plot_executor", cfg.Plot.Executor,
		"auth", cfg.Auth.Type,
	)
	return srv.Run(ctx, nil)
}

// newServer wires every component described by cfg. cleanup releases the
// provider and the store.
func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*transporthttp.Server, func(), error) {
	prov := provider.WithMetrics(openaicompat.NewClient(openaicompat.Config{
		Name:          cfg.Provider.Name,
		BaseURL:       cfg.Provider.BackendURL,
		APIKey:        cfg.Provider.APIKey,
		Model:         cfg.Provider.Model,
		MaxTokens:     cfg.Provider.MaxTokens,
		Timeout:       cfg.Provider.Timeout,
		MaxRetries:    cfg.Provider.MaxRetries,
		RequireAPIKey: cfg.Provider.Name == "anthropic",
	}))

	store, err := newStore(ctx, cfg.Storage, logger)
	if err != nil {
		prov.Close()
		return nil, nil, fmt.Errorf("creating store: %w", err)
	}
	cleanup := func() {
		store.Close()
		prov.Close()
	}

	executor, err := newExecutor(cfg.Plot, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating plot executor: %w", err)
	}
	rewriter := plot.NewRewriter(plot.Sanitizer{Strict: cfg.Plot.StrictSanitize}, executor, logger)

	eng, err := tutor.New(prov, store, tutor.Config{
		Model:       cfg.Provider.Model,
		MaxTokens:   cfg.Provider.MaxTokens,
		MaxMessages: cfg.Conversation.MaxMessages,
	}, tutor.WithRewriter(rewriter), tutor.WithLogger(logger))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}

	chain, limiter := newAuth(cfg.Auth)

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(cfg.Server.Addr()),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	}
	bypass := slices.Clone(auth.DefaultBypassEndpoints)
	if m := cfg.Observability.Metrics; m.Enabled {
		opts = append(opts,
			transporthttp.WithRoute(m.Path, promhttp.Handler()),
			transporthttp.WithHTTPMiddleware(observability.MetricsMiddleware),
		)
		if m.Path != "/metrics" {
			bypass = append(bypass, m.Path)
		}
	}
	opts = append(opts, transporthttp.WithHTTPMiddleware(
		transporthttp.CORS(cfg.Server.CORSOrigins),
		auth.Middleware(chain, limiter, bypass),
	))

	return transporthttp.NewServer(eng, eng, opts...), cleanup, nil
}

func newStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (transport.ConversationStore, error) {
	switch cfg.Type {
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.IdleTTL > 0 {
			go expireIdle(ctx, s, cfg.Postgres.IdleTTL, logger)
		}
		logger.Info("storage enabled", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return s, nil
	case "redis":
		s, err := redis.New(ctx, redis.Config{
			URL:       cfg.Redis.URL,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("storage enabled", "type", "redis", "ttl", cfg.Redis.TTL)
		return s, nil
	default:
		logger.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	}
}

// expireIdle deletes postgres sessions older than ttl until ctx is done.
func expireIdle(ctx context.Context, s *postgres.Store, ttl time.Duration, logger *slog.Logger) {
	interval := min(ttl/4, time.Hour)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteIdle(ctx, time.Now().Add(-ttl))
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn("expiring idle sessions", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Info("expired idle sessions", "count", n)
			}
		}
	}
}

func newExecutor(cfg config.PlotConfig, logger *slog.Logger) (plot.Executor, error) {
	if cfg.Executor != "remote" {
		locator := plot.NewLocator(plot.DefaultCandidates(cfg.Python), plot.WithProbeTimeout(cfg.ProbeTimeout))
		return plot.NewLocalExecutor(locator,
			plot.WithTimeout(cfg.ExecTimeout),
			plot.WithMaxConcurrent(cfg.MaxConcurrent),
			plot.WithLogger(logger),
		), nil
	}

	var acquirer remote.Acquirer
	if cfg.Remote.SandboxTemplate != "" {
		scheme, err := kubernetes.NewScheme()
		if err != nil {
			return nil, err
		}
		restCfg, err := k8sconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
		c, err := client.New(restCfg, client.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("creating kubernetes client: %w", err)
		}
		acquirer = kubernetes.NewClaimAcquirer(c, cfg.Remote.SandboxTemplate, cfg.Remote.SandboxNamespace, cfg.Remote.ClaimTimeout)
		logger.Info("plot sandboxes from claims", "template", cfg.Remote.SandboxTemplate, "namespace", cfg.Remote.SandboxNamespace)
	} else {
		acquirer = remote.StaticAcquirer{URL: cfg.Remote.SandboxURL}
		logger.Info("plot sandbox", "url", cfg.Remote.SandboxURL)
	}
	return remote.NewExecutor(acquirer,
		remote.WithTimeout(cfg.ExecTimeout),
		remote.WithRetries(cfg.Remote.MaxRetries),
		remote.WithLogger(logger),
	), nil
}

func newAuth(cfg config.AuthConfig) (*auth.Chain, auth.RateLimiter) {
	var chain *auth.Chain
	switch cfg.Type {
	case "apikey":
		keys := make([]apikey.Key, len(cfg.APIKeys))
		for i, k := range cfg.APIKeys {
			keys[i] = apikey.Key{Key: k.Key, Subject: k.Subject, Tier: k.Tier, Tenant: k.TenantID}
		}
		chain = auth.NewChain(auth.No, apikey.New(keys))
	case "jwt":
		chain = auth.NewChain(auth.No, jwt.New(jwt.Config{
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
			JWKSURL:  cfg.JWT.JWKSURL,
			CacheTTL: cfg.JWT.CacheTTL,
		}))
	default:
		chain = auth.NewChain(auth.Yes, noop.Authenticator{})
	}

	tiers := make(map[string]auth.TierConfig, len(cfg.RateLimit.Tiers))
	for name, t := range cfg.RateLimit.Tiers {
		tiers[name] = auth.TierConfig{RequestsPerMinute: t.RequestsPerMinute, Burst: t.Burst}
	}
	return chain, auth.NewLimiter(cfg.RateLimit.RequestsPerMinute, tiers)
}
