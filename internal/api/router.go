// Package api exposes the importer over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	// ImportTimeout bounds one import request; a capture with every
	// overlay plus translation can take minutes.
	ImportTimeout  time.Duration
	AllowedOrigins []string
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = 10 * time.Minute
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.With(middleware.Timeout(opts.ImportTimeout)).Post("/", h.ImportItem)
			r.With(middleware.Timeout(30*time.Second)).Get("/lookup", h.LookupItem)
			r.Post("/batch", h.EnqueueBatch)
		})
		r.Get("/tasks/{taskID}", h.GetTask)
	})

	return r
}
