package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpHandlers "github.com/dalf/botdetection/internal/adapters/http/handlers"
	httpMiddleware "github.com/dalf/botdetection/internal/adapters/http/middleware"
	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/filters"
	"github.com/dalf/botdetection/internal/core/ports"
	"github.com/dalf/botdetection/internal/core/services"
	"github.com/dalf/botdetection/internal/logging"
	"github.com/dalf/botdetection/internal/metrics"
)

const apiRateLimitFilter = "api_rate_limit"

// apiRule limita requisições em formato de API (format != html).
var apiRule = domain.RateLimitRule{Requests: 4, Window: time.Hour}

type appDeps struct {
	Detection domain.DetectionConfig
	Storage   ports.Storage
	Keys      services.KeyBuilder
	Logger    *log.Logger
	Registry  *prometheus.Registry

	// DemoRoutes instala demoRoutes() quando Detection não traz rotas. Só vale
	// sem arquivo de detecção; um arquivo que falhou ao carregar roda sem filtros.
	DemoRoutes bool
}

// demoRoutes é a tabela usada quando nenhum arquivo de detecção foi configurado.
func demoRoutes() map[string][]string {
	return map[string][]string{
		"/healthz":             {},
		"/metrics":             {},
		httpHandlers.PingRoute: {},
		"/search": {
			filters.HTTPAcceptName,
			filters.HTTPAcceptEncodingName,
			filters.HTTPAcceptLanguageName,
			filters.HTTPUserAgentName,
			apiRateLimitFilter,
			filters.IPLimitName,
		},
		services.WildcardRoute: {filters.HTTPUserAgentName},
	}
}

func newApp(deps appDeps) (http.Handler, error) {
	cfg := deps.Detection
	if deps.DemoRoutes && len(cfg.Routes) == 0 {
		cfg.Routes = demoRoutes()
	}
	if _, ok := cfg.RateLimits["api"]; !ok {
		rateLimits := make(map[string]domain.RateLimitRule, len(cfg.RateLimits)+1)
		for method, rule := range cfg.RateLimits {
			rateLimits[method] = rule
		}
		rateLimits["api"] = apiRule
		cfg.RateLimits = rateLimits
	}

	once, err := logging.NewOnceLogger(deps.Logger, logging.DefaultOnceCapacity)
	if err != nil {
		return nil, err
	}

	counter, err := services.NewSlidingWindowCounter(deps.Storage, deps.Keys)
	if err != nil {
		return nil, err
	}
	challenge, err := services.NewLinkTokenChallenge(deps.Storage, deps.Keys, cfg.LinkToken, deps.Logger.With("component", "link_token"))
	if err != nil {
		return nil, err
	}

	registry := filters.NewRegistry()
	if err := registry.Register(filters.When(apiRateLimitFilter, httpHandlers.IsAPIFormat, filters.RateLimit("api"))); err != nil {
		return nil, err
	}
	table, err := registry.BuildTable(&cfg)
	if err != nil {
		return nil, fmt.Errorf("build route filter table: %w", err)
	}

	var m *metrics.Metrics
	if deps.Registry != nil {
		m = metrics.New(deps.Registry)
	}

	engine, err := services.NewAdmissionEngine(services.Dependencies{
		Config:    &cfg,
		Resolver:  services.NewNetworkResolver(cfg.RealIP, deps.Logger.With("component", "real_ip"), once),
		Lists:     services.NewIPListMatcher(cfg.PassList, cfg.BlockList),
		Table:     table,
		Counter:   counter,
		LinkToken: challenge,
		Logger:    deps.Logger.With("component", "botdetection"),
		Metrics:   m,
	})
	if err != nil {
		return nil, err
	}

	linkToken := httpHandlers.NewLinkToken(challenge, engine, deps.Logger)
	demo := httpHandlers.NewDemo(linkToken)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(httpMiddleware.NewBotDetectionMiddleware(engine, r, deps.Logger))
	r.Get("/", demo.Index)
	r.Get("/search", demo.Search)
	r.Get("/healthz", httpHandlers.Healthz)
	r.Get(httpHandlers.PingRoute, linkToken.Ping)
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	deps.Logger.Info("bot detection ready", "routes", table.Routes(), "fail_open", cfg.FailOpen,
		"passlist", len(cfg.PassList), "blocklist", len(cfg.BlockList))
	return r, nil
}
