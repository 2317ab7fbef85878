package api

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Server hosts the control-surface API for the UI.
type Server struct {
	log *zap.Logger
	srv *http.Server
}

func NewServer(addr string, h *Handler, log *zap.Logger) *Server {
	return &Server{
		log: log.With(zap.String("component", "api")),
		srv: &http.Server{
			Addr:              addr,
			Handler:           otelhttp.NewHandler(h.Routes(), "api"),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func (s *Server) Run() error {
	s.log.Info("api listening", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
