// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/hostel-listings/backend/internal/api/handlers"
	"github.com/hostel-listings/backend/internal/api/middleware"
	"github.com/hostel-listings/backend/internal/lifecycle"
	"github.com/hostel-listings/backend/internal/listing"
	"github.com/hostel-listings/backend/internal/storage"
	"github.com/hostel-listings/backend/internal/websocket"
)

// Services are the dependencies the API handlers are built from.
type Services struct {
	DB             *storage.DB
	StoreBackend   string
	Hub            *websocket.Hub
	Listings       *listing.Service
	Lifecycle      *lifecycle.Controller
	Deletions      *storage.DeletionLogRepository
	Auth           *middleware.Authenticator
	Submissions    *middleware.RateLimiter
	AllowedOrigins []string
	StaticDir      string
}

// NewRouter creates the HTTP handler with all API routes, wrapped in CORS.
func NewRouter(s Services) http.Handler {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()
	admin := s.Auth.RequireAdmin

	api.HandleFunc("/health", handlers.HealthCheck(s.DB, s.StoreBackend, s.Lifecycle, s.Hub)).Methods("GET")

	// Public listing endpoints
	api.HandleFunc("/listings", handlers.BrowseListings(s.Listings)).Methods("GET")
	api.Handle("/listings", s.Submissions.Limit(handlers.CreateListing(s.Listings))).Methods("POST")
	api.HandleFunc("/listings/areas", handlers.ListAreas(s.Listings)).Methods("GET")
	api.HandleFunc("/listings/{id}", handlers.GetListing(s.Listings)).Methods("GET")

	// Admin endpoints
	api.HandleFunc("/admin/session", handlers.CreateSession(s.Auth)).Methods("POST")
	api.Handle("/admin/listings", admin(handlers.AdminListings(s.Lifecycle))).Methods("GET")
	api.Handle("/admin/listings/refresh", admin(handlers.RefreshListings(s.Lifecycle))).Methods("POST")
	api.Handle("/admin/deletions", admin(handlers.ListDeletions(s.Deletions))).Methods("GET")
	api.Handle("/listings/{id}/status", admin(handlers.UpdateStatus(s.Lifecycle))).Methods("POST")
	api.Handle("/listings/{id}/permanent-delete", admin(handlers.PermanentDelete(s.Lifecycle))).Methods("POST")
	api.Handle("/ws", admin(handlers.WebSocketUpgrade(s.Hub, s.AllowedOrigins))).Methods("GET")

	// Serve static frontend files
	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
	})
	return c.Handler(r)
}
