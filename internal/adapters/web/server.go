package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/meshgram/meshgram/internal/adapters/mqtt"
	"github.com/meshgram/meshgram/internal/core/ports"
	"github.com/meshgram/meshgram/internal/core/services/aggregate"
)

// Server exposes the read-only status API and the live packet feed.
type Server struct {
	Addr      string
	Directory ports.NodeDirectory
	Engine    *aggregate.Engine
	Feed      *Feed

	// SourceConnected and TargetStatuses are sampled on every /api/status call.
	SourceConnected func() bool
	TargetStatuses  func() []mqtt.TargetStatus

	srv *http.Server
}

// NewServer creates a web server over the running services.
func NewServer(addr string, directory ports.NodeDirectory, engine *aggregate.Engine, sourceConnected func() bool, targetStatuses func() []mqtt.TargetStatus) *Server {
	return &Server{
		Addr:            addr,
		Directory:       directory,
		Engine:          engine,
		Feed:            NewFeed(),
		SourceConnected: sourceConnected,
		TargetStatuses:  targetStatuses,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	handler := SetupRoutes(s)
	instrumentedHandler := otelhttp.NewHandler(handler, "meshgram-server")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumentedHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("web server shutdown error", "error", err)
		}
	}()

	slog.Info("web server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
