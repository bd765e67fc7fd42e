// Package server assembles the echo application and owns the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fennel/pkg/health"
	"github.com/Ramsey-B/fennel/pkg/middleware"
)

const APIPrefix = "/api/v1"

// Routes is implemented by every handler group.
type Routes interface {
	RegisterRoutes(g *echo.Group)
}

type Config struct {
	ServiceName    string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

type Server struct {
	echo     *echo.Echo
	http     *http.Server
	listener net.Listener
	logger   ectologger.Logger
	done     chan error
}

func New(cfg Config, logger ectologger.Logger, checker *health.Checker, routes ...Routes) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(cfg.ServiceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.Recover())

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group(APIPrefix)
	for _, r := range routes {
		r.RegisterRoutes(api)
	}

	return &Server{
		echo: e,
		http: &http.Server{
			Addr:           fmt.Sprintf(":%d", cfg.Port),
			Handler:        e,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.http.Addr
	}
	return s.listener.Addr().String()
}

// Start binds the port and serves in the background. A port that cannot be
// bound fails Start itself.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	s.listener = ln
	s.done = make(chan error, 1)

	go func() {
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.logger.WithError(err).Error("HTTP server stopped")
		}
		s.done <- err
	}()

	s.logger.WithField("addr", s.Addr()).Info("HTTP server listening")
	return nil
}

// Stop drains in-flight requests until ctx expires. Stopping a stopped server
// is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	err := <-s.done
	s.done = nil
	return err
}
