package listing

import (
	"reflect"
	"testing"

	"github.com/hostel-listings/backend/internal/storage/models"
)

func sampleListings() []models.Listing {
	return []models.Listing{
		{ID: "1", Area: "Juja", Name: "Sunrise", Location: "Gate A", Price: "KSh 6,000", Facilities: []string{"Wi-Fi", "Security"}, Status: models.StatusActive},
		{ID: "2", Area: "Ruiru", Name: "Palm Court", Location: "Town", Price: "4500", Facilities: []string{"Wi-Fi", "Parking", "Security"}, Status: models.StatusActive},
		{ID: "3", Area: "Juja", Name: "Green View", Location: "Highpoint", Price: "call us", Status: models.StatusActive},
		{ID: "4", Area: "Juja", Name: "Closing Soon", Price: "3000", Status: models.StatusPendingDeletion},
		{ID: "5", Area: "Kahawa", Name: "Kahawa Heights", Price: "9,000", Facilities: []string{"Parking"}, Status: "archived"},
	}
}

func ids(listings []models.Listing) []string {
	out := []string{}
	for _, l := range listings {
		out = append(out, l.ID)
	}
	return out
}

func TestBrowseExcludesPendingDeletion(t *testing.T) {
	res := Browse(sampleListings(), Filter{})

	for _, l := range res.Listings {
		if l.IsPendingDeletion() {
			t.Fatalf("pending listing %s leaked into browse results", l.ID)
		}
	}
	if res.PendingRemoval != 1 {
		t.Errorf("PendingRemoval = %d, want 1", res.PendingRemoval)
	}
	if res.Notice != "1 hostel(s) will be removed soon" {
		t.Errorf("Notice = %q", res.Notice)
	}
	if res.Total != 4 {
		t.Errorf("Total = %d, want 4", res.Total)
	}
}

func TestBrowseFilters(t *testing.T) {
	min, max := int64(4000), int64(7000)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"area", Filter{Area: "juja", Sort: SortOldest}, []string{"1", "3"}},
		{"all areas", Filter{Area: "All", Sort: SortOldest}, []string{"1", "2", "3", "5"}},
		{"search location", Filter{Query: "highpoint"}, []string{"3"}},
		{"search area", Filter{Query: "ruiru"}, []string{"2"}},
		{"price range", Filter{MinPrice: &min, MaxPrice: &max, Sort: SortOldest}, []string{"1", "2"}},
		{"facilities all", Filter{Facilities: []string{"wi-fi", "security"}, Sort: SortOldest}, []string{"1", "2"}},
		{"facilities none match", Filter{Facilities: []string{"Pool"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Browse(sampleListings(), tt.filter).Listings)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBrowseSorting(t *testing.T) {
	tests := []struct {
		sort SortOrder
		want []string
	}{
		{SortNewest, []string{"5", "3", "2", "1"}},
		{SortOldest, []string{"1", "2", "3", "5"}},
		{SortPriceAsc, []string{"2", "1", "5", "3"}},
		{SortPriceDesc, []string{"5", "1", "2", "3"}},
	}

	for _, tt := range tests {
		got := ids(Browse(sampleListings(), Filter{Sort: tt.sort}).Listings)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.sort, got, tt.want)
		}
	}
}

func TestParseSortOrderDefaultsToNewest(t *testing.T) {
	if ParseSortOrder("PRICE_ASC") != SortPriceAsc {
		t.Error("expected case-insensitive match")
	}
	if ParseSortOrder("bogus") != SortNewest {
		t.Error("expected newest default")
	}
}

func TestAreasSkipsPendingListings(t *testing.T) {
	got := Areas(sampleListings())
	want := []string{"Juja", "Kahawa", "Ruiru"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Areas = %v, want %v", got, want)
	}
}
