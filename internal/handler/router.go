package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/bonus-payroll/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бонусов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Encoding", custommiddleware.ActorHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(h.actorMiddleware.Middleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/bonuses", func(r chi.Router) {
			r.Get("/", h.ListBonuses)
			r.Get("/{id}", h.GetBonus)
			r.Get("/{id}/history", h.BonusHistory)

			r.Group(func(r chi.Router) {
				r.Use(h.actorMiddleware.Require)

				r.Post("/", h.CreateBonus)
				r.Patch("/{id}", h.UpdateBonus)
				r.Delete("/{id}", h.DeleteBonus)

				r.Post("/batch", h.BatchCreate)
				r.Patch("/batch", h.BatchUpdate)
				r.Delete("/batch", h.BatchDelete)

				r.Post("/generate", h.GeneratePeriod)
				r.Post("/confirm", h.Confirm)
				r.Post("/revert", h.Revert)
				r.Post("/status", h.UpdateStatus)
			})
		})

		r.Get("/periods/{year}/{month}", h.PeriodWindow)
		r.Get("/periods/{year}/{month}/validate", h.ValidatePeriod)

		r.Route("/payroll", func(r chi.Router) {
			r.Get("/users/{userId}/periods/{year}/{month}", h.GetPayroll)
			r.Get("/periods/{year}/{month}", h.ListPayroll)
			r.Get("/compare", h.ComparePayroll)
			r.Post("/simulate", h.SimulateBonuses)
		})

		r.Post("/pricing/quote", h.PricingQuote)
		r.Post("/orders/total", h.OrderTotal)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
