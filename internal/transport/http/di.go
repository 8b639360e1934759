package http

import (
	"context"
	"fmt"
	"net/http"

	proxyapp "github.com/nimbusoft/datagate/internal/app/proxy"
	"github.com/nimbusoft/datagate/internal/config"
	"github.com/nimbusoft/datagate/internal/domain/identity"
	proxydomain "github.com/nimbusoft/datagate/internal/domain/proxy"
	"github.com/nimbusoft/datagate/internal/infra/cache"
	"github.com/nimbusoft/datagate/internal/infra/engine"
	"github.com/nimbusoft/datagate/internal/infra/jwks"
	"github.com/nimbusoft/datagate/pkg/logger"
	"github.com/nimbusoft/datagate/pkg/otel"
	"github.com/nimbusoft/datagate/pkg/tracer"
)

type Server struct {
	httpServer *http.Server
}

const (
	idleTimeoutMultiplier = 2
	serviceName           = "datagate"
)

func NewServer(cfg *config.Config) (*Server, error) {
	logger.Init(cfg.Observability.LogLevel, cfg.Observability.Format, cfg.Observability.LogSource)

	otelCfg := otel.Config{
		ServiceName: serviceName,
		EndpointURL: cfg.Observability.TracingEndpointURL,
		Enabled:     cfg.Observability.TraceEnabled,
		SampleRatio: 1.0,
		Insecure:    true,
	}
	if err := tracer.InitTracer(serviceName, otelCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	// The identity cache is optional: without Redis every request verifies
	// the token signature from scratch.
	var identityCache cache.IdentityCache
	if cfg.Redis.URL != "" {
		redisClient, err := cache.NewRedisClient(cfg.Redis.URL, cfg.Redis.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		identityCache = cache.NewIdentityCache(redisClient)
	}

	keySet := jwks.NewCache(cfg.Identity.JWKSURL, cfg.Identity.KeySetTTL, cfg.Identity.FetchTimeout)
	verifier := identity.NewService(keySet, identityCache, identity.Options{
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
		CacheTTL: cfg.Identity.IdentityCacheTTL,
	})

	engineClient := engine.NewClient(cfg.Engine.URL, cfg.Engine.ServiceKey, cfg.Engine.Timeout)
	scope := proxydomain.NewScope(cfg.Engine.OwnerColumn, cfg.Engine.RPCArgument, cfg.Engine.PublicTables)
	router := proxydomain.NewRouter(engineClient, engineClient, engineClient, scope)

	appService := proxyapp.NewService(verifier, router)
	handler := NewHandler(appService, cfg)
	ginRouter := NewRouter(handler, cfg)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      ginRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * idleTimeoutMultiplier,
	}

	return &Server{
		httpServer: httpServer,
	}, nil
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
