package http

import (
	"net/http"

	"tokentable/internal/api/http/handlers"
	"tokentable/internal/api/http/mw"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func BuildRouter(
	h *handlers.Handler,
	metricsHandler http.Handler,
	logMW *mw.LoggingMiddleware,
	gzipMW *mw.GzipMiddleware,
	corsMW *mw.CORSMiddleware,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if logMW != nil {
		r.Use(logMW.Handler)
	}
	r.Use(middleware.Recoverer)
	if corsMW != nil {
		r.Use(corsMW.Handler())
	}

	// tech endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(apiR chi.Router) {
		// event stream stays outside gzip
		apiR.Get("/stream", h.Stream)

		apiR.Group(func(g chi.Router) {
			if gzipMW != nil {
				g.Use(gzipMW.Handler)
			}

			g.Get("/overview", h.Overview)

			g.Route("/tokens", func(tt chi.Router) {
				tt.Get("/", h.Tokens)
				tt.Get("/{id}", h.Token)
				tt.Post("/{id}/select", h.Select)
			})
			g.Delete("/selection", h.ClearSelection)

			g.Route("/sort", func(sr chi.Router) {
				sr.Get("/", h.GetSort)
				sr.Put("/", h.PutSort)
				sr.Post("/toggle", h.ToggleSort)
			})

			g.Route("/filter", func(fr chi.Router) {
				fr.Get("/", h.GetFilter)
				fr.Patch("/", h.PatchFilter)
				fr.Delete("/", h.ClearFilter)
				fr.Post("/chain/{chain}/toggle", h.ToggleChain)
				fr.Post("/verified/toggle", h.ToggleVerified)
				fr.Post("/trending/toggle", h.ToggleTrending)
			})
		})
	})

	return r
}
