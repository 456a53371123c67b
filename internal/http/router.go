package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fieldnotes/internal/handlers"
	"fieldnotes/internal/service"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Notes  service.NotesService
	Engine handlers.Syncer
	DB     handlers.Pinger
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	// Add chi middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(CORS)
	r.Use(LoggerMiddleware)

	notesHandler := handlers.NewNotesHandler(deps.Notes)
	syncHandler := handlers.NewSyncHandler(deps.Engine)
	healthHandler := handlers.NewHealthHandler(deps.DB)
	viewHandler := handlers.NewViewHandler(deps.Notes)

	// Register API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/notes", func(r chi.Router) {
			r.Get("/", notesHandler.List)
			r.Post("/", notesHandler.Create)
			r.Get("/{id}", notesHandler.Get)
			r.Put("/{id}", notesHandler.Update)
			r.Delete("/{id}", notesHandler.Delete)
		})
		r.Method(http.MethodPost, "/sync", syncHandler)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	// Rendered note pages
	r.Method(http.MethodGet, "/notes/{id}", viewHandler)

	return r
}
