package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkmend/internal/linkservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *linkservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Index.
	r.Get("/documents", h.ListDocuments)
	r.Get("/links/*", h.GetDocumentLinks)
	r.Post("/documents/*", h.ReindexDocument)
	r.Post("/scan", h.Scan)

	// Broken links and repair.
	r.Get("/broken", h.Broken)
	r.Get("/candidates", h.Candidates)
	r.Post("/repair", h.Repair)
	r.Post("/repair/auto", h.AutoRepair)
	r.Post("/move", h.Move)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
