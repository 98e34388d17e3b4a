package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/notecrew/internal/profile"
	apiv1 "github.com/hrygo/notecrew/server/router/api/v1"
	"github.com/hrygo/notecrew/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store
	Runtime *Runtime

	echoServer *echo.Echo
	listener   net.Listener
}

// NewServer wires the note runtime behind the v1 API.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	rt, err := NewRuntime(profile, store, nil)
	if err != nil {
		return nil, err
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true

	apiV1Service := apiv1.NewAPIV1Service(profile, rt.Notes, store)
	apiV1Service.Metrics = rt.Metrics
	apiV1Service.MetricsHandler = rt.Metrics.Handler()
	apiV1Service.Readiness = []apiv1.ReadinessCheck{
		{Name: "database", Check: store.Ping},
		{Name: "templates", Check: rt.CheckTemplates},
	}
	apiV1Service.Register(echoServer)

	slog.DebugContext(ctx, "server created",
		"mode", profile.Mode,
		"driver", profile.Driver,
		"auth_required", profile.AuthRequired(),
	)

	return &Server{
		Profile:    profile,
		Store:      store,
		Runtime:    rt,
		echoServer: echoServer,
	}, nil
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.listener = listener

	go func() {
		if err := s.echoServer.Server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to serve http", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("server stopped properly")
}
