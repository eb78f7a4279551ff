package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hostel-listings/backend/internal/api/middleware"
	"github.com/hostel-listings/backend/internal/lifecycle"
	"github.com/hostel-listings/backend/internal/storage"
	"github.com/hostel-listings/backend/internal/storage/models"
)

type SessionRequest struct {
	Secret string `json:"secret"`
}

type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type StatusResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	SecondsRemaining *int   `json:"seconds_remaining,omitempty"`
}

// CreateSession exchanges the admin secret for a session token.
func CreateSession(auth *middleware.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if !auth.CheckSecret(req.Secret) {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Invalid admin secret")
			return
		}

		token, expires, err := auth.IssueToken()
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to issue token")
			return
		}

		middleware.WriteJSON(w, http.StatusOK, "Signed in", SessionResponse{Token: token, ExpiresAt: expires})
	}
}

// AdminListings returns every listing, including those pending deletion,
// with their countdowns.
func AdminListings(ctrl *lifecycle.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, "", ctrl.AdminView())
	}
}

// RefreshListings reloads the admin view from the row store.
func RefreshListings(ctrl *lifecycle.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.Refresh(r.Context()); err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, "Listings refreshed", ctrl.AdminView())
	}
}

// UpdateStatus applies an operator status change. Marking a listing
// pending_deletion starts its countdown; setting it back to active cancels it.
func UpdateStatus(ctrl *lifecycle.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req StatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if err := ctrl.SetStatus(r.Context(), id, req.Status); err != nil {
			middleware.WriteServiceError(w, err)
			return
		}

		resp := StatusResponse{ID: id, Status: req.Status}
		message := "Status updated"
		if remaining, ok := ctrl.Remaining(id); ok {
			resp.SecondsRemaining = &remaining
			message = "Listing will be removed in " + strconv.Itoa(remaining) + " seconds"
		} else if req.Status == models.StatusActive {
			message = "Listing is active"
		}
		middleware.WriteJSON(w, http.StatusOK, message, resp)
	}
}

// PermanentDelete removes a listing immediately.
func PermanentDelete(ctrl *lifecycle.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		if err := ctrl.PermanentDelete(r.Context(), id); err != nil {
			middleware.WriteServiceError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, "Listing permanently deleted", map[string]string{"id": id})
	}
}

// ListDeletions returns the most recent permanent deletions.
func ListDeletions(repo *storage.DeletionLogRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		entries, err := repo.List(r.Context(), limit)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query deletion log")
			return
		}

		middleware.WriteJSON(w, http.StatusOK, "", entries)
	}
}
