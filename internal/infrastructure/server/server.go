package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	apihttp "github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/api/http"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/api/middleware"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/api/ws"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/domain/session"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/infrastructure/config"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/infrastructure/logging"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/infrastructure/monitoring"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/infrastructure/tracing"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/instrument"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/providers/automator"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/report"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/service"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	sessions *session.Registry
	tools    *service.Registry
	driver   *automator.PlaywrightDriver
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// Options overrides collaborators, mainly for tests.
type Options struct {
	Logger   *logging.Logger
	Registry *prometheus.Registry
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing automation bridge",
		zap.String("port", cfg.Server.Port),
		zap.String("output_dir", cfg.Telemetry.OutputDir),
		zap.String("browser", cfg.Browser.Type),
	)

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metrics := monitoring.NewMetrics(reg)
	tracer := tracing.New("miniapp-mcp", logger.Logger)

	var reporter types.Reporter
	if cfg.Session.Reporting {
		format, err := report.ParseFormat(cfg.Session.ReportFormat)
		if err != nil {
			tracer.Close()
			return nil, err
		}
		reporter = report.NewGenerator(format)
	}

	sessions := session.NewRegistry(logger.Logger, session.Options{
		Timeout:       cfg.Session.Timeout,
		SweepInterval: cfg.Session.SweepInterval,
		KillTimeout:   cfg.Session.KillTimeout,
		Defaults: session.Config{
			Telemetry: telemetry.Config{
				Level:           cfg.Telemetry.Level,
				FileLogging:     cfg.Telemetry.FileLogging,
				OutputDir:       cfg.Telemetry.OutputDir,
				BufferSize:      cfg.Telemetry.BufferSize,
				FlushInterval:   cfg.Telemetry.FlushInterval(),
				CompressRotated: cfg.Telemetry.CompressRotated,
			},
			Reporting: cfg.Session.Reporting,
		},
		Reporter:       reporter,
		WriterObserver: metrics,
		OnDetachedError: func(id string, err error) {
			logger.Warn("Background teardown failed", zap.String("session_id", id), zap.Error(err))
		},
	}).WithMetrics(metrics)

	instrumenter := instrument.New(instrument.Options{
		CaptureOnFailure: cfg.Session.FailureSnapshots,
		Snapshotter:      automator.NewSnapshotter(sessions),
		Recorder:         metrics,
	})
	tools := service.NewRegistry(sessions, instrumenter)

	driver := automator.NewPlaywrightDriver(logger.Logger, cfg.Browser.Install)
	if err := tools.Register(automator.NewProvider(automator.Config{
		Browser:      cfg.Browser.Type,
		Headless:     cfg.Browser.Headless,
		HostCommand:  cfg.Browser.HostCommand,
		HostReadyURL: cfg.Browser.HostReadyURL,
	}, driver, logger.Logger)); err != nil {
		tracer.Close()
		_ = sessions.Dispose(context.Background())
		return nil, fmt.Errorf("failed to register automation tools: %w", err)
	}
	logger.Info("Registered tools", zap.Any("stats", tools.Stats()))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.AccessLog(logger.Logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl, middleware.SessionKey))
	}

	apihttp.NewHandlers(sessions, tools, tracer, logger.Logger).Register(router)
	router.GET("/sessions/:id/stream", ws.NewHandler(sessions, logger.Logger).HandleConnection)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/metrics/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, metrics.Snapshot())
	})

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		sessions: sessions,
		tools:    tools,
		driver:   driver,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close tears down every session and releases the automation driver.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var err error
	if dErr := s.sessions.Dispose(ctx); dErr != nil {
		s.logger.Error("Failed to dispose sessions", zap.Error(dErr))
		err = multierr.Append(err, dErr)
	}
	if sErr := s.driver.Stop(); sErr != nil {
		s.logger.Error("Failed to stop automation driver", zap.Error(sErr))
		err = multierr.Append(err, sErr)
	}
	s.tracer.Close()

	_ = s.logger.Sync()
	return err
}
