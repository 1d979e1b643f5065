package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/auth"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/handler"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/models"
	mw "github.com/parisxmas/OxiDB/OxiAudit/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth      *handler.AuthHandler
	Sections  *handler.SectionHandler
	Documents *handler.DocumentHandler
	Search    *handler.SearchHandler
	Dashboard *handler.DashboardHandler
	Admin     *handler.AdminHandler
	Events    *handler.EventsHandler
}

func New(jwtSecret string, h Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/register", h.Auth.Register)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(jwtSecret))

			r.Get("/auth/me", h.Auth.Me)
			r.Post("/auth/refresh", h.Auth.Refresh)
			r.Get("/dashboard", h.Dashboard.Dashboard)
			r.Get("/templates", h.Sections.Templates)
			r.Get("/events", h.Events.Stream)

			// Engagements
			r.Get("/engagements/{scopeId}", h.Dashboard.Engagement)
			r.Route("/engagements/{scopeId}/sections/{sectionKey}", func(r chi.Router) {
				r.Get("/", h.Sections.Get)
				r.Get("/progress", h.Sections.Progress)
				r.Delete("/session", h.Sections.CloseSession)
				r.Route("/groups/{groupKey}", func(r chi.Router) {
					r.Get("/view", h.Sections.View)
					r.Put("/items/{itemId}/answer", h.Sections.SetAnswer)
					r.Patch("/items/{itemId}", h.Sections.Patch)
					r.Post("/items/{itemId}/attachments", h.Sections.Attach)
					r.Get("/items/{itemId}/attachments", h.Sections.Attachments)
				})
			})

			// Documents
			r.Get("/documents", h.Documents.List)
			r.Post("/documents", h.Documents.Upload)
			r.Get("/documents/accepted-types", h.Documents.AcceptedTypes)
			r.Get("/documents/{docId}/download", h.Documents.Download)
			r.Delete("/documents/{docId}", h.Documents.Delete)

			// Search
			r.Post("/search", h.Search.Search)

			// Admin
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Get("/admin/indexes", h.Admin.ListIndexes)
				r.Post("/admin/compact", h.Admin.Compact)
			})
		})
	})

	return r
}
