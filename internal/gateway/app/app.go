package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"adflow/internal/agent"
	"adflow/internal/gateway/config"
	"adflow/internal/gateway/handler"
	"adflow/internal/gateway/handler/rpc"
	"adflow/internal/gateway/repository/asset"
	"adflow/internal/gateway/server"
	gatewayproject "adflow/internal/gateway/service/project"
	"adflow/internal/ingest"
	"adflow/internal/llm"
	llmclient "adflow/internal/llm/client"
	"adflow/internal/pipeline"
	"adflow/internal/render"
)

type App struct {
	cfg     *config.Config
	log     *zap.Logger
	stores  *gatewayStores
	llm     llm.LLMClient
	runner  *pipeline.Runner
	service *gatewayproject.Service
	router  http.Handler
	server  *server.Server
}

type Option func(*options)

type options struct {
	llm    llm.LLMClient
	ingest pipeline.Ingester
}

// WithLLM replaces the configured provider, before middleware.
func WithLLM(c llm.LLMClient) Option { return func(o *options) { o.llm = c } }

// WithIngester replaces the HTTP fetcher.
func WithIngester(i pipeline.Ingester) Option { return func(o *options) { o.ingest = i } }

func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Dependencies
	stores, err := initStores(cfg, log)
	if err != nil {
		return nil, err
	}
	base := o.llm
	if base == nil {
		base, err = llmclient.New(ctx, llmclient.Config{
			Provider:  cfg.LLM.Provider,
			Model:     cfg.LLM.Model,
			GeminiKey: cfg.LLM.GeminiKey,
			GroqKey:   cfg.LLM.GroqKey,
		})
		if err != nil {
			_ = stores.Close()
			return nil, fmt.Errorf("failed to initialize llm client: %w", err)
		}
	}
	log.Info("llm provider", zap.String("name", base.Name()))
	cli := llm.Wrap(base,
		llm.WithLogging(log.Named("llm")),
		llm.Retry(max(cfg.LLM.Retries, 1), time.Second),
		llm.RateLimitPerMinute(cfg.LLM.RPM),
		llm.WithHooks(),
	)

	renderer := render.New(cfg.Render.APIURL, cfg.Render.APIKey,
		render.WithAssetSink(asset.Sink{Store: stores.assets, PublicPrefix: cfg.PublicBaseURL + "/assets"}),
		render.WithLogger(log.Named("render")),
	)
	team, err := agent.NewTeam(cli, nil, renderer, log.Named("agent"))
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("failed to build agent team: %w", err)
	}

	source := o.ingest
	if source == nil {
		ingestOpts := []ingest.Option{ingest.WithLogger(log.Named("ingest"))}
		if cfg.Ingest.Timeout > 0 {
			ingestOpts = append(ingestOpts, ingest.WithTimeout(cfg.Ingest.Timeout))
		}
		if cfg.Ingest.UserAgent != "" {
			ingestOpts = append(ingestOpts, ingest.WithUserAgent(cfg.Ingest.UserAgent))
		}
		source = ingest.New(ingestOpts...)
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.MaxRevisions = cfg.Pipeline.MaxRevisions
	pcfg.ApprovalScore = cfg.Pipeline.ApprovalScore
	p, err := pipeline.New(stores.projects, stores.artifacts, team, source,
		pipeline.WithConfig(pcfg),
		pipeline.WithLogger(log.Named("pipeline")),
	)
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	runner := pipeline.NewRunner(p)
	svc := gatewayproject.New(runner, log.Named("service"))

	// Routing & Server
	router := server.NewRouter(server.Handlers{
		Project: rpc.NewProjectHandler(svc, log),
		Events:  rpc.NewEventsHandler(svc, log),
		Debug:   handler.NewDebugHandler(svc, log),
		Assets:  handler.NewAssetHandler(stores.assets, log),
	}, cfg.AllowedOrigins, log.Named("http"))

	return &App{
		cfg:     cfg,
		log:     log,
		stores:  stores,
		llm:     cli,
		runner:  runner,
		service: svc,
		router:  router,
		server:  server.New(cfg.Port, router, log),
	}, nil
}

func (a *App) Service() *gatewayproject.Service { return a.service }
func (a *App) Runner() *pipeline.Runner { return a.runner }
func (a *App) Handler() http.Handler { return a.router }

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops the server, cancels in-flight runs and closes the stores.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := a.runner.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("runner shutdown: %w", err))
	}
	if err := a.llm.Close(); err != nil {
		errs = append(errs, fmt.Errorf("llm close: %w", err))
	}
	if err := a.stores.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	m := a.stores.artifacts.Metrics()
	a.log.Info("artifact cache",
		zap.Uint64("item_hits", m.ItemHits),
		zap.Uint64("item_misses", m.ItemMisses),
		zap.Uint64("latest_hits", m.LatestHits),
		zap.Uint64("latest_misses", m.LatestMisses),
	)
	return errors.Join(errs...)
}
