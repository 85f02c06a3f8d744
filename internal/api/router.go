package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"rsipulse/internal/api/handlers"
	"rsipulse/internal/api/middleware"
	"rsipulse/internal/config"
	"rsipulse/internal/domain/service"
	"rsipulse/internal/metrics"
)

func NewRouter(cfg *config.Config, logger *zap.Logger, rsiSvc *service.RSIService, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CORS())
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", m.Handler())

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		authHandler := handlers.NewAuthHandler(cfg)
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth([]byte(cfg.JWTSecret)))

			rsiHandler := handlers.NewRSIHandler(rsiSvc)
			r.Get("/rsi/{symbol}", rsiHandler.Reading)
			r.Get("/rsi/{symbol}/state", rsiHandler.State)
			r.Post("/rsi/{symbol}/ticks", rsiHandler.PostTicks)
		})
	})

	return r
}
