// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hostel-listings/backend/internal/lifecycle"
	"github.com/hostel-listings/backend/internal/storage"
	"github.com/hostel-listings/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string `json:"status"`
	DBConnected      bool   `json:"db_connected"`
	StoreBackend     string `json:"store_backend"`
	ListingsLoaded   int    `json:"listings_loaded"`
	ActiveCountdowns int    `json:"active_countdowns"`
	AdminClients     int    `json:"admin_clients"`
}

// HealthCheck returns a handler that performs a health check. The
// response is not wrapped in the API envelope so container probes can
// read it directly.
func HealthCheck(db *storage.DB, backend string, ctrl *lifecycle.Controller, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		response := HealthResponse{
			Status:       status,
			DBConnected:  dbConnected,
			StoreBackend: backend,
		}
		if ctrl != nil {
			response.ListingsLoaded = len(ctrl.Listings())
			response.ActiveCountdowns = len(ctrl.Countdowns())
		}
		if hub != nil {
			response.AdminClients = hub.ClientCount()
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}
