package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/slidedeck/explainer/internal/config"
	"github.com/slidedeck/explainer/internal/service"
	"github.com/slidedeck/explainer/internal/ws"
)

func NewRouter(cfg *config.Config, svc *service.Service, log zerolog.Logger) http.Handler {
	wsServer := ws.NewServer(svc, cfg.StatusStreamInterval, log)
	return NewRouterWithStream(cfg, svc, wsServer, log)
}

func NewRouterWithStream(cfg *config.Config, svc *service.Service, wsServer *ws.Server, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	h := NewHandlers(cfg, svc, log)
	h.wsServer = wsServer

	// Health & Info
	r.Get("/health", h.Health)
	r.Get("/info", h.Info)
	r.Get("/stats", h.Stats)

	// Submission & status
	r.Post("/upload", h.Upload)
	r.Get("/status/{uid}", h.Status)
	r.Get("/api/jobs", h.ListJobs)
	r.Get("/api/jobs/{uid}/result", h.Result)

	// WebSocket
	r.Get("/ws/status/{uid}", wsServer.HandleStatus)

	return r
}
