package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
	"github.com/goliatone/go-civic-dashboard/pkg/backend"
	"github.com/goliatone/go-civic-dashboard/pkg/config"
	"github.com/goliatone/go-civic-dashboard/pkg/logging"
	"github.com/goliatone/go-civic-dashboard/pkg/metrics"
)

// app holds the collaborators every command builds from config.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	backend  portal.Backend
	client   *backend.HTTPClient
	redis    *redis.Client
	charts   *portal.ChartRenderer
	sections *portal.SectionManifest
	service  *portal.Service
}

func (g *Globals) load() (config.Config, error) {
	cfg, err := config.Load(g.Config, g.EnvFile...)
	if err != nil {
		return cfg, err
	}
	if g.Mock {
		cfg.Backend.Mock = true
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	return cfg, nil
}

func newApp(ctx context.Context, g *Globals) (*app, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		logger:  logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}),
		metrics: metrics.New(),
	}

	if cfg.Backend.Mock {
		a.backend = backend.NewMockClient(backend.DemoData())
		a.logger.Info("portal using demo data")
	} else {
		httpCfg := backend.HTTPConfig{
			BaseURL:       cfg.Backend.URL,
			APIKey:        cfg.Backend.APIKey,
			Timeout:       cfg.Backend.Timeout,
			EngineTimeout: cfg.Backend.EngineTimeout,
			Observer:      a.metrics,
		}
		if cfg.Backend.Validate {
			httpCfg.Validator = backend.NewSchemaValidator()
		}
		client, err := backend.NewHTTPClient(httpCfg)
		if err != nil {
			return nil, err
		}
		a.client = client
		a.backend = client
	}

	if cfg.Sections != "" {
		sections, err := portal.ReadSections(cfg.Sections)
		if err != nil {
			return nil, err
		}
		a.sections = sections
	} else {
		sections, err := portal.DefaultSections()
		if err != nil {
			return nil, err
		}
		a.sections = sections
	}

	chartOpts := []portal.ChartOption{}
	if cfg.Charts.Theme != "" {
		chartOpts = append(chartOpts, portal.WithChartTheme(cfg.Charts.Theme))
	}
	if cfg.Charts.AssetsHost != "" {
		chartOpts = append(chartOpts, portal.WithChartAssetsHost(cfg.Charts.AssetsHost))
	}
	a.charts = portal.NewChartRenderer(chartOpts...)

	service, err := portal.NewService(portal.Options{
		Backend:         a.backend,
		Sections:        a.sections,
		Cache:           a.responseCache(ctx),
		Telemetry:       portal.MultiTelemetry{a.metrics, portal.SlogTelemetry{Logger: a.logger}},
		Logger:          a.logger,
		BasePath:        cfg.Server.BasePath,
		AbortSuperseded: cfg.Server.AbortSuperseded,
		SessionTTL:      cfg.Server.SessionTTL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = service
	return a, nil
}

// responseCache prefers redis and falls back to memory when it is not
// configured or not reachable.
func (a *app) responseCache(ctx context.Context) portal.ResponseCache {
	c := a.cfg.Cache
	client := backend.OpenRedis(c.RedisAddr, c.RedisPassword, c.RedisDB)
	if client == nil {
		return portal.NewMemoryCache(c.TTL)
	}
	cache := backend.NewRedisCache(client, backend.RedisOptions{Prefix: c.Prefix, TTL: c.TTL, Logger: a.logger})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		a.logger.Warn("redis unavailable, using memory cache", "addr", c.RedisAddr, "error", err)
		_ = client.Close()
		return portal.NewMemoryCache(c.TTL)
	}
	a.redis = client
	return cache
}

// open mounts a session and waits for its first load to settle.
func (a *app) open(ctx context.Context, section, query string) (*portal.Session, error) {
	session, err := a.service.OpenSession(ctx, section, query)
	if err != nil {
		return nil, err
	}
	session.Wait()
	return session, nil
}

func (a *app) engines() (*backend.HTTPClient, error) {
	if a.client == nil {
		return nil, fmt.Errorf("portalctl: engines need a backend url, not demo data")
	}
	return a.client, nil
}

func (a *app) Close() {
	if a.service != nil {
		a.service.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
