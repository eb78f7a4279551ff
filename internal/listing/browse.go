package listing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hostel-listings/backend/internal/storage/models"
)

// SortOrder selects how browse results are ordered.
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortOldest    SortOrder = "oldest"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
)

// ParseSortOrder maps a query value to a SortOrder, defaulting to newest.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortOldest:
		return SortOldest
	case SortPriceAsc:
		return SortPriceAsc
	case SortPriceDesc:
		return SortPriceDesc
	default:
		return SortNewest
	}
}

// Filter holds the browse criteria. Zero values mean "no constraint".
type Filter struct {
	Area       string
	Query      string
	MinPrice   *int64
	MaxPrice   *int64
	Facilities []string
	Sort       SortOrder
}

// BrowseResult is the public view of the listing collection.
type BrowseResult struct {
	Listings       []models.Listing `json:"listings"`
	Total          int              `json:"total"`
	PendingRemoval int              `json:"pending_removal"`
	Notice         string           `json:"notice,omitempty"`
}

// Browse filters and sorts listings for the public grid. Listings pending
// deletion are never returned; they are only counted for the notice.
func Browse(all []models.Listing, f Filter) BrowseResult {
	result := BrowseResult{Listings: []models.Listing{}}

	// Fetch order is arrival order: later rows are newer.
	type ranked struct {
		listing models.Listing
		arrival int
	}
	var visible []ranked

	for i, l := range all {
		if l.IsPendingDeletion() {
			result.PendingRemoval++
			continue
		}
		if !f.matches(&l) {
			continue
		}
		visible = append(visible, ranked{listing: l, arrival: i})
	}

	switch f.Sort {
	case SortOldest:
		// fetch order already
	case SortPriceAsc, SortPriceDesc:
		desc := f.Sort == SortPriceDesc
		sort.SliceStable(visible, func(i, j int) bool {
			pi, oki := visible[i].listing.PriceValue()
			pj, okj := visible[j].listing.PriceValue()
			if oki != okj {
				return oki
			}
			if desc {
				return pi > pj
			}
			return pi < pj
		})
	default:
		sort.SliceStable(visible, func(i, j int) bool {
			return visible[i].arrival > visible[j].arrival
		})
	}

	for _, v := range visible {
		result.Listings = append(result.Listings, v.listing)
	}
	result.Total = len(result.Listings)

	if result.PendingRemoval > 0 {
		result.Notice = fmt.Sprintf("%d hostel(s) will be removed soon", result.PendingRemoval)
	}
	return result
}

func (f Filter) matches(l *models.Listing) bool {
	if area := strings.TrimSpace(f.Area); area != "" && !strings.EqualFold(area, "all") {
		if !strings.EqualFold(l.Area, area) {
			return false
		}
	}

	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		haystack := strings.ToLower(l.Name + "\n" + l.Location + "\n" + l.Area)
		if !strings.Contains(haystack, q) {
			return false
		}
	}

	if f.MinPrice != nil || f.MaxPrice != nil {
		price, ok := l.PriceValue()
		if !ok {
			return false
		}
		if f.MinPrice != nil && price < *f.MinPrice {
			return false
		}
		if f.MaxPrice != nil && price > *f.MaxPrice {
			return false
		}
	}

	return l.HasFacilities(f.Facilities)
}

// Areas returns the distinct areas of the visible listings, sorted.
func Areas(all []models.Listing) []string {
	seen := make(map[string]bool)
	areas := []string{}
	for _, l := range all {
		if l.IsPendingDeletion() || l.Area == "" {
			continue
		}
		key := strings.ToLower(l.Area)
		if seen[key] {
			continue
		}
		seen[key] = true
		areas = append(areas, l.Area)
	}
	sort.Strings(areas)
	return areas
}
