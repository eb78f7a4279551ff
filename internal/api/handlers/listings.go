package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/hostel-listings/backend/internal/api/middleware"
	"github.com/hostel-listings/backend/internal/listing"
)

// maxSubmissionBytes bounds the body of a listing submission.
const maxSubmissionBytes = 64 << 10

// ListingResponse wraps a single listing with an optional warning for
// listings that are about to be removed.
type ListingResponse struct {
	Listing any    `json:"listing"`
	Warning string `json:"warning,omitempty"`
}

// BrowseListings returns the public listing grid.
func BrowseListings(svc *listing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}

		result := listing.Browse(svc.List(r.Context()), filter)
		middleware.WriteJSON(w, http.StatusOK, result.Notice, result)
	}
}

// ListAreas returns the distinct areas of visible listings.
func ListAreas(svc *listing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, "", listing.Areas(svc.List(r.Context())))
	}
}

// GetListing returns a listing by id. Listings pending deletion are still
// returned, with a warning.
func GetListing(svc *listing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		l, err := svc.Get(r.Context(), id)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}

		resp := ListingResponse{Listing: l}
		if l.IsPendingDeletion() {
			resp.Warning = "This hostel is scheduled for removal and may no longer be available"
		}
		middleware.WriteJSON(w, http.StatusOK, resp.Warning, resp)
	}
}

// CreateListing accepts a new listing submission.
func CreateListing(svc *listing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req listing.CreateInput
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		l, err := svc.Create(r.Context(), req)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusCreated, "Hostel submitted", l)
	}
}

func parseFilter(r *http.Request) (listing.Filter, error) {
	q := r.URL.Query()
	f := listing.Filter{
		Area:  strings.TrimSpace(q.Get("area")),
		Query: strings.TrimSpace(q.Get("q")),
		Sort:  listing.ParseSortOrder(q.Get("sort")),
	}

	for _, bound := range []struct {
		key string
		dst **int64
	}{
		{"min_price", &f.MinPrice},
		{"max_price", &f.MaxPrice},
	} {
		raw := strings.TrimSpace(q.Get(bound.key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return f, &queryError{param: bound.key}
		}
		*bound.dst = &v
	}

	if raw := q.Get("facilities"); raw != "" {
		for _, fac := range strings.Split(raw, ",") {
			if fac = strings.TrimSpace(fac); fac != "" {
				f.Facilities = append(f.Facilities, fac)
			}
		}
	}
	return f, nil
}

type queryError struct{ param string }

func (e *queryError) Error() string {
	return "Invalid value for " + e.param
}
