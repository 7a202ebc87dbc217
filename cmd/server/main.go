// Command server runs the ausweis orchestration daemon: the session
// control surface over HTTP, backed by the orchestration engine, a
// capability registry for the identity platform, and a reasoning
// backend.
//
// Configuration is layered: built-in defaults, a YAML config file
// (-config flag, AUSWEIS_CONFIG, ./config.yaml, /etc/ausweis/config.yaml),
// then AUSWEIS_* environment overrides.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/auth"
	"github.com/ausweis-dev/ausweis/pkg/auth/apikey"
	"github.com/ausweis-dev/ausweis/pkg/auth/jwt"
	"github.com/ausweis-dev/ausweis/pkg/capability"
	"github.com/ausweis-dev/ausweis/pkg/capability/invoker"
	"github.com/ausweis-dev/ausweis/pkg/capability/mcpcap"
	"github.com/ausweis-dev/ausweis/pkg/config"
	"github.com/ausweis-dev/ausweis/pkg/engine"
	"github.com/ausweis-dev/ausweis/pkg/oracle"
	"github.com/ausweis-dev/ausweis/pkg/oracle/openaicompat"
	"github.com/ausweis-dev/ausweis/pkg/storage"
	"github.com/ausweis-dev/ausweis/pkg/storage/memory"
	"github.com/ausweis-dev/ausweis/pkg/storage/postgres"
	"github.com/ausweis-dev/ausweis/pkg/transport"
	transporthttp "github.com/ausweis-dev/ausweis/pkg/transport/http"
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

	ctx := context.Background()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer store.Close()

	registry, inv, closeMCP, err := buildPlatform(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to platform: %w", err)
	}
	defer closeMCP()

	orc, err := buildOracle(cfg)
	if err != nil {
		return fmt.Errorf("creating oracle: %w", err)
	}

	eng, err := engine.New(store, registry, inv, orc, engine.Config{
		MaxRetries:        cfg.Engine.MaxRetries,
		ProposalTimeout:   cfg.Engine.ProposalTimeout,
		InvokeTimeout:     cfg.Engine.InvokeTimeout,
		MaxActiveSessions: cfg.Engine.MaxActiveSessions,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	}
	if !cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithMetricsPath(""))
	} else if cfg.Observability.Metrics.Path != "" {
		opts = append(opts, transporthttp.WithMetricsPath(cfg.Observability.Metrics.Path))
	}
	if mw := buildAuthMiddleware(cfg); mw != nil {
		opts = append(opts, transporthttp.WithAuthMiddleware(mw))
	}

	srv := transporthttp.NewServer(&controller{eng: eng, store: store}, opts...)

	slog.Info("ausweis starting",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Type,
		"oracle", orc.Name(),
		"capabilities", registry.Len(),
	)
	return srv.ListenAndServe()
}

// controller glues the engine and store to the transport contract.
type controller struct {
	eng   *engine.Engine
	store storage.SessionStore
}

func (c *controller) StartSession(ctx context.Context, goal string) (string, error) {
	return c.eng.Start(ctx, goal)
}

func (c *controller) GetSession(ctx context.Context, id string) (*api.Session, error) {
	return c.eng.Status(ctx, id)
}

func (c *controller) ListSessions(ctx context.Context, opts storage.ListOptions) (*storage.SessionList, error) {
	return c.store.ListSessions(ctx, opts)
}

func (c *controller) CancelSession(ctx context.Context, id string) error {
	return c.eng.Cancel(ctx, id)
}

func (c *controller) HealthCheck(ctx context.Context) error {
	return c.store.HealthCheck(ctx)
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.SessionStore, error) {
	switch cfg.Storage.Type {
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
	default:
		return memory.New(cfg.Storage.MaxSize), nil
	}
}

// buildPlatform assembles the capability registry and the invoker that
// reaches the identity platform, over its admin API, over MCP servers,
// or both.
func buildPlatform(ctx context.Context, cfg *config.Config) (*capability.Registry, invoker.Invoker, func(), error) {
	noop := func() {}

	var descriptors []*capability.Descriptor
	router := &routingInvoker{routes: make(map[string]invoker.Invoker)}

	if cfg.Platform.BaseURL != "" {
		desc, err := loadDescription(cfg)
		if err != nil {
			return nil, nil, noop, err
		}
		reg, err := capability.Build(desc)
		if err != nil {
			return nil, nil, noop, err
		}

		var tokens invoker.TokenSource
		if cfg.Platform.TenantID != "" && cfg.Platform.APIKey != "" {
			tokens = invoker.NewTenantTokenSource(cfg.Platform.BaseURL, cfg.Platform.TenantID, cfg.Platform.APIKey, nil)
		}
		httpInv, err := invoker.NewHTTP(invoker.Options{
			BaseURL: cfg.Platform.BaseURL,
			Timeout: cfg.Platform.Timeout,
			Tokens:  tokens,
		})
		if err != nil {
			return nil, nil, noop, err
		}

		for _, d := range reg.Descriptors() {
			descriptors = append(descriptors, d)
			router.routes[d.Name] = httpInv
		}
	}

	var clients []*mcpcap.Client
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}
	for _, server := range cfg.Platform.MCPServers {
		client := mcpcap.NewClient(mcpcap.ServerConfig{
			Name:      server.Name,
			Transport: server.Transport,
			URL:       server.URL,
			Headers:   server.Headers,
		})
		if err := client.Connect(ctx, nil); err != nil {
			closeAll()
			return nil, nil, noop, fmt.Errorf("connecting MCP server %s: %w", server.Name, err)
		}
		clients = append(clients, client)

		ds, err := client.Discover(ctx)
		if err != nil {
			closeAll()
			return nil, nil, noop, fmt.Errorf("discovering MCP server %s: %w", server.Name, err)
		}
		for _, d := range ds {
			if _, taken := router.routes[d.Name]; taken {
				slog.Warn("skipping duplicate capability", "capability", d.Name, "server", server.Name)
				continue
			}
			descriptors = append(descriptors, d)
			router.routes[d.Name] = client
		}
	}

	registry, err := capability.BuildFromDescriptors(descriptors)
	if err != nil {
		closeAll()
		return nil, nil, noop, err
	}
	return registry, router, closeAll, nil
}

func loadDescription(cfg *config.Config) (*capability.Description, error) {
	if cfg.Capabilities.DescriptionFile != "" {
		return capability.LoadDescription(cfg.Capabilities.DescriptionFile)
	}
	return capability.DefaultDescription(), nil
}

// routingInvoker dispatches each capability to the invoker that owns it.
type routingInvoker struct {
	routes map[string]invoker.Invoker
}

func (r *routingInvoker) Invoke(ctx context.Context, d *capability.Descriptor, args json.RawMessage) invoker.Result {
	inv, ok := r.routes[d.Name]
	if !ok {
		return invoker.Result{
			Outcome: api.OutcomeValidationError,
			Message: "no route for capability " + d.Name,
		}
	}
	return inv.Invoke(ctx, d, args)
}

func buildOracle(cfg *config.Config) (oracle.Oracle, error) {
	switch cfg.Oracle.Type {
	case "scripted":
		// Useful only for smoke testing the control surface: every
		// session fails once the empty script is exhausted.
		return oracle.NewScripted(), nil
	default:
		timeout := cfg.Oracle.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		return openaicompat.NewClient(cfg.Oracle.BackendURL, cfg.Oracle.APIKey, cfg.Oracle.Model, timeout), nil
	}
}

func buildAuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	switch cfg.Auth.Type {
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:  k.Subject,
					TenantID: k.TenantID,
				},
			})
		}
		chain := &auth.Chain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}
		return auth.Middleware(chain, auth.DefaultBypassEndpoints)
	case "jwt":
		chain := &auth.Chain{
			Authenticators: []auth.Authenticator{jwt.New(jwt.Config{
				Secret: cfg.Auth.JWT.Secret,
				Issuer: cfg.Auth.JWT.Issuer,
			})},
			DefaultDecision: auth.No,
		}
		return auth.Middleware(chain, auth.DefaultBypassEndpoints)
	default:
		return nil
	}
}

var _ transport.SessionController = (*controller)(nil)
