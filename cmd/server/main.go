package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/admission"
	"github.com/isdmx/playbuild/cache"
	"github.com/isdmx/playbuild/compile"
	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/logger"
	"github.com/isdmx/playbuild/mcpserver"
	"github.com/isdmx/playbuild/metrics"
	"github.com/isdmx/playbuild/sandbox"
	"github.com/isdmx/playbuild/server"
	"github.com/isdmx/playbuild/toolchain"
	"github.com/isdmx/playbuild/validate"
)

const stopTimeout = 5 * time.Minute

func main() {
	app := fx.New(appOptions())

	// Start the application
	app.Run()
}

func appOptions() fx.Option {
	return fx.Options(
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Metrics
			newRegistry,
			newRecorder,

			// Compile pipeline
			newFilter,
			toolchain.NewResolver,
			newCache,
			sandbox.NewRunner,
			compile.NewService,
			newController,

			// Surfaces
			newServer,
			mcpserver.New,
		),

		fx.Invoke(
			logConfig,
			registerSweeper,
			registerHTTP,
			registerMCP,
		),

		fx.StopTimeout(stopTimeout),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

func newRegistry() *prom.Registry {
	return metrics.NewRegistry()
}

func newRecorder(cfg *config.Config, reg *prom.Registry) metrics.Recorder {
	if !cfg.Metrics.Enabled {
		return metrics.NoopRecorder{}
	}
	return metrics.NewPrometheusRecorder(reg)
}

func newFilter(cfg *config.Config) *validate.Filter {
	return validate.NewFilter(cfg.Security.DisallowedConstructs)
}

func newCache(log *zap.Logger, cfg *config.Config) (compile.Cache, error) {
	return cache.NewStore(log, cfg)
}

func newController(log *zap.Logger, cfg *config.Config) *admission.Controller {
	return admission.NewController(log, cfg)
}

func newServer(
	log *zap.Logger,
	cfg *config.Config,
	svc *compile.Service,
	ctrl *admission.Controller,
	rec metrics.Recorder,
	reg *prom.Registry,
) *server.Server {
	return server.New(log, cfg, svc, ctrl, rec, metrics.HTTPHandler(reg))
}

func logConfig(log *zap.Logger, cfg *config.Config) {
	log.Info("Configuration loaded",
		zap.String("server.listen_address", cfg.Server.ListenAddress),
		zap.String("server.client_ip_header", cfg.Server.ClientIPHeader),
		zap.Int("server.max_body_kb", cfg.Server.MaxBodyKB),
		zap.String("mcp.transport", cfg.MCP.Transport),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Float64("sandbox.cpus", cfg.Sandbox.CPUs),
		zap.Int("sandbox.max_artifact_size_mb", cfg.Sandbox.MaxArtifactSizeMB),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.String("sandbox.image_template", cfg.Sandbox.ImageTemplate),
		zap.String("cache.dir", cfg.Cache.Dir),
		zap.Bool("cache.bypass_enabled", cfg.Cache.BypassToken != ""),
		zap.String("toolchain.default_version", cfg.Toolchain.DefaultVersion),
		zap.String("toolchain.default_channel", cfg.Toolchain.DefaultChannel),
		zap.Bool("metrics.enabled", cfg.Metrics.Enabled),
	)
}

func registerSweeper(lc fx.Lifecycle, ctrl *admission.Controller) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go ctrl.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func registerHTTP(lc fx.Lifecycle, shutdowner fx.Shutdowner, log *zap.Logger, cfg *config.Config, srv *server.Server) {
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", httpServer.Addr)
			if err != nil {
				return err
			}
			log.Info("Starting HTTP server", zap.String("address", ln.Addr().String()))
			go func() {
				if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			log.Info("Draining HTTP server", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
			return httpServer.Shutdown(ctx)
		},
	})
}

func registerMCP(lc fx.Lifecycle, shutdowner fx.Shutdowner, log *zap.Logger, cfg *config.Config, srv *mcpserver.MCPServer) {
	var serve func() error
	switch cfg.MCP.Transport {
	case config.MCPTransportStdio:
		serve = srv.ServeStdio
	case config.MCPTransportHTTP:
		serve = srv.ServeHTTP
	default:
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("MCP server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
