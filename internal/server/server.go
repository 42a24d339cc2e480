package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scouthq/scout/config"
	"github.com/scouthq/scout/internal/agent/core"
	"github.com/scouthq/scout/internal/agent/telemetry"
	"github.com/scouthq/scout/internal/archive"
	"github.com/scouthq/scout/internal/email"
	"github.com/scouthq/scout/internal/notify"
	"github.com/scouthq/scout/internal/store"
)

// Run wires the pipeline and serves the HTTP API until the process
// exits.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
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
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	if err := prometheus.Register(telemetry.NewCollector(tele)); err != nil {
		return fmt.Errorf("registering telemetry collector: %w", err)
	}

	llmProvider, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return err
	}
	searcher, err := core.NewSearcher(cfg.Search)
	if err != nil {
		return err
	}
	reader, err := core.NewPageReader(cfg.Search)
	if err != nil {
		return err
	}

	var mailer core.Mailer = email.NoopMailer{}
	if cfg.Email.SendGridAPIKey != "" {
		mailer = email.NewSendGridMailer(cfg.Email)
	}
	var notifier core.Notifier = notify.NoopNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify)
	}

	runStore, rdb, err := store.NewRunStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	arc, err := archive.New()
	if err != nil {
		return err
	}
	// rebuild the report index from history so search survives restarts
	if runs, err := runStore.ListRuns(ctx); err == nil {
		for _, rec := range runs {
			if err := arc.Index(rec); err != nil {
				baseLogger.Printf("reindexing run %s: %v", rec.ID, err)
			}
		}
	}

	orch := core.NewOrchestrator(cfg, core.Deps{
		LLM:        llmProvider,
		Searcher:   searcher,
		Reader:     reader,
		Mailer:     mailer,
		Notifier:   notifier,
		Store:      runStore,
		Archive:    arc,
		RenderHTML: email.RenderHTML,
	}, tele)

	auth := &AuthHandler{Config: cfg.Server, Secret: []byte(cfg.Server.JWTSecret)}
	if auth.Enabled() && cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret required when auth is enabled")
	}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	protected := api.Group("")
	protected.Use(auth.Middleware())

	clarifier := core.NewClarifier(cfg, llmProvider, tele)
	rh := NewResearchHandler(cfg, orch, clarifier, runStore, arc)
	rh.Register(protected)

	topics := store.NewTopicStore(rdb)
	th := &TopicsHandler{Store: topics}
	th.Register(protected.Group("/topics"))

	sched := &Scheduler{
		Topics:   topics,
		Locker:   store.NewLocker(rdb),
		Orch:     orch,
		Interval: time.Minute,
		Stop:     make(chan struct{}),
	}
	sched.Start()

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
