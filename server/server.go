// Package server exposes the collector over HTTP.
//
// One route does the work: POST /submit takes breakpad crash
// submissions. The rest are the operational surface: dockerflow health
// endpoints, a Prometheus scrape endpoint, and /__broken__ for testing
// the error pipeline end to end.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pithecene-io/fissure/health"
	"github.com/pithecene-io/fissure/log"
	"github.com/pithecene-io/fissure/metrics"
	"github.com/pithecene-io/fissure/mover"
	"github.com/pithecene-io/fissure/throttler"
)

// Config configures the HTTP server.
type Config struct {
	// Host is the bind address (default all interfaces).
	Host string
	// Port is the listen port (default 8000).
	Port int
	// BaseDir is where version.json is looked up (default ".").
	BaseDir string
}

// DefaultPort is the default listen port.
const DefaultPort = 8000

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// ErrorReporter receives unhandled errors from the accept path.
// Deployments forward these to an error-tracking service.
type ErrorReporter interface {
	Report(err error)
}

// LogReporter reports errors by logging them. The default reporter.
type LogReporter struct {
	Logger *log.Logger
}

// Report implements ErrorReporter.
func (r *LogReporter) Report(err error) {
	r.Logger.Error("unhandled error", zap.Error(err))
}

// Server is the collector HTTP front end.
type Server struct {
	config    Config
	echo      *echo.Echo
	logger    *log.Logger
	throttler *throttler.Throttler
	mover     *mover.Mover
	health    *health.Registry
	reporter  ErrorReporter
	version   []byte
}

// New wires up the server. The version blob is served verbatim on
// GET /__version__; pass LoadVersion's result.
func New(cfg Config, th *throttler.Throttler, mv *mover.Mover, registry *health.Registry,
	logger *log.Logger, reporter ErrorReporter, version []byte) *Server {
	if reporter == nil {
		reporter = &LogReporter{Logger: logger}
	}
	if len(version) == 0 {
		version = []byte("{}")
	}

	s := &Server{
		config:    cfg,
		logger:    logger,
		throttler: th,
		mover:     mv,
		health:    registry,
		reporter:  reporter,
		version:   version,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("HTTP request",
				zap.String("method", v.Method),
				zap.String("URI", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.POST("/submit", s.handleSubmit)
	e.GET("/__lbheartbeat__", s.handleLBHeartbeat)
	e.GET("/__heartbeat__", s.handleHeartbeat)
	e.GET("/__version__", s.handleVersion)
	e.GET("/__broken__", s.handleBroken)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo = e
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.config.Addr()))
	return s.echo.Start(s.config.Addr())
}

// Shutdown stops accepting new submissions and waits for in-flight
// requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Close immediately closes the listener.
func (s *Server) Close() error {
	return s.echo.Close()
}

// errorHandler forwards unhandled errors to the reporter and responds
// with a fixed JSON body. Client-facing error text is deliberately
// uninformative.
func (s *Server) errorHandler(err error, c echo.Context) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code != http.StatusInternalServerError {
		if !c.Response().Committed {
			_ = c.JSON(httpErr.Code, map[string]string{
				"error": http.StatusText(httpErr.Code),
			})
		}
		return
	}

	s.reporter.Report(err)
	if !c.Response().Committed {
		_ = c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

// handleBroken fails on purpose so deployments can verify the error
// pipeline.
func (s *Server) handleBroken(echo.Context) error {
	metrics.HealthRequests.WithLabelValues("broken").Inc()
	return errors.New("intentional exception")
}
