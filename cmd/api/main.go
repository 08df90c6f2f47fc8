package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"emptyfridge/internal/api"
	"emptyfridge/internal/config"
	"emptyfridge/internal/kitchen"
	"emptyfridge/internal/logger"
	"emptyfridge/internal/metrics"
	"emptyfridge/internal/pantry"
	"emptyfridge/internal/platform/gemini"
	"emptyfridge/internal/platform/localllm"
	"emptyfridge/internal/publish"
	"emptyfridge/internal/recipe"
)

func main() {
	configPath := flag.String("config", "", "path to the config file (default ./config.json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	defer func() { _ = log.Sync() }()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := recipe.NewRegistry(log)
	go sweepSessions(ctx, sessions, cfg.Session.IdleTTL, cfg.Session.SweepInterval)

	connector := newConnector(cfg)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(cfg, log, sessions, connector, prometheus.NewRegistry()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", connector.Model()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newConnector picks the generative backend named by llm.provider.
func newConnector(cfg *config.Config) kitchen.Connector {
	if cfg.LLM.Provider == config.ProviderLocal {
		return &localllm.Connector{
			URL:  cfg.LLM.LocalURL,
			Name: cfg.LLM.LocalModel,
			Temp: cfg.LLM.Temperature,
		}
	}

	var temperature *float32
	if t := cfg.LLM.Temperature; t != nil {
		v := float32(*t)
		temperature = &v
	}
	return gemini.NewConnector(cfg.LLM.Model, temperature)
}

// newRouter builds the engine and registers the Go and process collectors on reg next to the app metrics.
func newRouter(cfg *config.Config, log *zap.Logger, sessions *recipe.Registry, connector kitchen.Connector, reg *prometheus.Registry) *gin.Engine {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes()
	r.Use(api.RequestID(), api.RequestLogger(log), api.Recovery(log), m.Middleware())

	// Configure CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", api.SessionHeader, api.APIKeyHeader, api.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", api.SessionHeader, api.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := api.NewHandler(
		connector,
		sessions,
		pantry.NewDecoder(cfg.Pantry.MaxWidth, cfg.Pantry.MaxPixels),
		publish.New(),
		m,
		log,
		api.Options{
			CookieName:     cfg.Session.CookieName,
			DefaultAPIKey:  cfg.LLM.APIKey,
			Timeout:        cfg.LLM.Timeout,
			MaxImages:      cfg.Pantry.MaxImages,
			MaxUploadBytes: cfg.MaxUploadBytes(),
		},
	)
	handler.Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return r
}

// sweepSessions drops idle sessions until ctx is done.
func sweepSessions(ctx context.Context, sessions *recipe.Registry, ttl, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep(ttl)
		}
	}
}
