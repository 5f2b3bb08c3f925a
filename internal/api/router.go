/**
 * @description
 * HTTP router setup for the entitlement-service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the settings the router needs beyond the handler.
type RouterConfig struct {
	Auth           AuthConfig
	InternalAPIKey string
	AllowedOrigins []string
}

// NewRouter creates a new Chi router and registers entitlement routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	auth := NewAuthenticator(cfg.Auth)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Entitlement service is healthy"))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/payments", h.handleRecordPayment)
		r.Get("/can-reveal", h.handleCanRevealInternal)
	})

	// Public reads. A token, when present, personalises the biodata view.
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth)
		r.Get("/premium-cards", h.handleApprovedCards)
		r.Get("/biodata", h.handleListBiodata)
		r.Get("/biodata/{id}", h.handleGetBiodata)
		r.Get("/biodata/{id}/similar", h.handleSimilarBiodata)
		r.Get("/success-stories", h.handleListStories)
		r.Get("/stats", h.handleSiteStats)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.With(RequireAdmin).Post("/payments", h.handleRecordPayment)
		r.Post("/checkout", h.handleCheckout)
		r.Post("/premium-requests", h.handleRequestApproval)
		r.Get("/biodata/{id}/can-reveal", h.handleCanReveal)
		r.Post("/success-stories", h.handleSubmitStory)

		r.Route("/me", func(r chi.Router) {
			r.Get("/contact-requests", h.handleRevealedContacts)
			r.Get("/biodata", h.handleGetMyBiodata)
			r.Put("/biodata", h.handleSaveMyBiodata)
			r.Delete("/biodata", h.handleArchiveMyBiodata)
			r.Get("/favorites", h.handleListFavorites)
			r.Post("/favorites", h.handleAddFavorite)
			r.Delete("/favorites/{biodataID}", h.handleRemoveFavorite)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/payments", h.handleListPayments)
			r.Post("/payments/{paymentID}/approve", h.handleApprove)
			r.Get("/premium-requests", h.handleListRequests)
			r.Get("/success-stories", h.handleListStoriesAdmin)
		})
	})

	return r
}
