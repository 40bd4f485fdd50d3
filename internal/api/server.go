// Package api exposes the curation service over HTTP for the browser shell.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/console"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/editor"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/platform/cache"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/upstream"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/viewer"
)

// Deps bundles the components the server routes to.
type Deps struct {
	Upstream *upstream.Client
	Sessions *editor.Manager
	Console  *console.Console
	Viewer   *viewer.Viewer
	// Cache is optional; nil disables response caching.
	Cache    *cache.Cache
	CacheTTL time.Duration
	// AdminKeyHash is a bcrypt hash checked against X-Admin-Key. Empty
	// leaves the API open.
	AdminKeyHash string
}

// Server represents the HTTP API server.
type Server struct {
	deps   Deps
	router *chi.Mux
}

// NewServer creates a new API server.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}
	s.setupRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Admin-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (outside the admin-key gate)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.adminKeyMiddleware)

		// Table
		r.Get("/table", s.handleTable)
		r.Get("/table/facets", s.handleFacets)
		r.Get("/table/export", s.handleExport)
		r.Patch("/rows/{dersID}", s.handleUpdateRow)
		r.Post("/bulk-save", s.handleBulkSave)

		// Catalog passthroughs
		r.Get("/cached-data", s.handleCachedData)
		r.Get("/options", s.handleOptions)
		r.Get("/statistics", s.handleStatistics)

		// Editor sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleOpenSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleCloseSession)
				r.Get("/layout", s.handleSessionLayout)
				r.Post("/scalars", s.handleUpdateScalars)
				r.Post("/units", s.handleAddUnit)
				r.Patch("/units/{u}", s.handleUpdateUnit)
				r.Delete("/units/{u}", s.handleRemoveUnit)
				r.Post("/units/{u}/divide", s.handleDivideTopics)
				r.Get("/units/{u}/grouped", s.handleGrouped)
				r.Post("/units/{u}/topics", s.handleAddTopic)
				r.Patch("/units/{u}/topics/{t}", s.handleUpdateTopic)
				r.Delete("/units/{u}/topics/{t}", s.handleRemoveTopic)
				r.Post("/units/{u}/topics/{t}/divide", s.handleDivideOutcomes)
				r.Post("/units/{u}/topics/{t}/primary", s.handleSetPrimaryOutcome)
				r.Post("/units/{u}/topics/{t}/outcomes", s.handleAddOutcome)
				r.Patch("/units/{u}/topics/{t}/outcomes/{o}", s.handleUpdateOutcome)
				r.Delete("/units/{u}/topics/{t}/outcomes/{o}", s.handleRemoveOutcome)
				r.Post("/links", s.handleToggleLink)
				r.Post("/save", s.handleSaveSession)
				r.Post("/copy", s.handleCopySession)
				r.Post("/import-units", s.handleImportUnits)
			})
		})

		// Viewer
		r.Post("/viewer/resolve", s.handleViewerResolve)
		r.Post("/viewer/split", s.handleViewerSplit)
		r.Get("/files/*", s.handleFile)

		// Console
		r.Route("/console", func(r chi.Router) {
			r.Get("/operations", s.handleConsoleOperations)
			r.Post("/operations/{id}/start", s.handleConsoleStart)
			r.Get("/log", s.handleConsoleLog)
			r.Post("/retry", s.handleConsoleRetry)
		})
	})

	// Live console feed; same gate as the API.
	r.With(s.adminKeyMiddleware).Get("/ws", s.handleConsoleWS)

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
