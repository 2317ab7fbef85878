package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(h.requestLog)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/runtime", func(r chi.Router) {
			r.Get("/", h.ListRuntime)
			r.Get("/{id}", h.GetRuntime)
			r.Post("/{id}/start", h.StartRuntime)
			r.Post("/{id}/stop", h.StopRuntime)
			r.Post("/{id}/restart", h.RestartRuntime)
		})
		r.Route("/instances", func(r chi.Router) {
			r.Get("/{id}/events", h.ListEvents)
			r.Get("/{id}/targets", h.ListTargets)
		})
	})
	return r
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}
