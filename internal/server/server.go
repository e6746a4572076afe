package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"scout/config"
	"scout/internal/llm"
	"scout/internal/research"
	"scout/internal/retrieval"
	"scout/internal/store"
	"scout/internal/telemetry"
)

// Run wires the dependencies and serves the HTTP API.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	if err := cfg.LLM.Validate(); err != nil {
		return err
	}
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return err
	}
	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	// Event log: Redis when configured, in-process otherwise.
	var events research.EventSink
	if addr := cfg.Storage.Redis.Addr(); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Storage.Redis.Password, DB: cfg.Storage.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", addr, err)
		}
		events = &store.RedisEvents{Client: rdb}
	} else {
		events = store.NewMemoryEvents()
	}

	gen := llm.NewOpenAI(cfg.LLM)
	searcher, err := retrieval.NewSearcher(cfg.Search)
	if err != nil {
		return err
	}
	fetcher := retrieval.NewFetcher(cfg.Fetch)

	rails := research.Guardrails{
		MaxSteps:            cfg.Guardrails.MaxSteps,
		MaxURLs:             cfg.Guardrails.MaxURLs,
		MaxCrawlConcurrency: cfg.Guardrails.MaxCrawlConcurrency,
		NodeTimeout:         cfg.Guardrails.NodeTimeout,
		JobTimeout:          cfg.Guardrails.JobTimeout,
		SkeletonRetries:     cfg.Guardrails.SkeletonRetries,
		CellRetries:         cfg.Guardrails.CellRetries,
		CellMaxRunes:        cfg.Guardrails.CellMaxRunes,
	}
	engineLogger := log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	engine := research.NewEngine(gen, searcher, fetcher, st, events, rails, engineLogger)

	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tele = telemetry.New()
		engine.Metrics = tele.EngineMetrics()
	}

	jh := &JobsHandler{
		Store:     st,
		Events:    events,
		Engine:    engine,
		Logger:    log.New(log.Writer(), "[JOBS] ", log.LstdFlags),
		Telemetry: tele,
	}
	jh.Register(e.Group("/api/research"))

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10010"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
