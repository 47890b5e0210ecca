package search

import "testing"

func TestQueryWithDefaults(t *testing.T) {
	q := Query{Terms: "  pizza "}.WithDefaults()
	if q.Terms != "pizza" {
		t.Errorf("Terms = %q", q.Terms)
	}
	if q.Location.Lat != DefaultLatitude || q.Location.Lon != DefaultLongitude {
		t.Errorf("Location = %+v", q.Location)
	}
	if q.Page != 1 || q.Filters.Sort != "price" {
		t.Errorf("Page = %d, Sort = %q", q.Page, q.Filters.Sort)
	}
	if len(q.Platforms) != 3 {
		t.Errorf("Platforms = %v", q.Platforms)
	}
	q.Platforms[0] = "changed"
	if DefaultPlatforms[0] != "snoonu" {
		t.Error("WithDefaults aliased DefaultPlatforms")
	}

	kept := Query{Location: Location{Lat: 1, Lon: 2}, Page: 3, Platforms: []string{"talabat"}}.WithDefaults()
	if kept.Location.Lat != 1 || kept.Page != 3 || len(kept.Platforms) != 1 {
		t.Errorf("explicit values overwritten: %+v", kept)
	}
}

func TestResultTotal(t *testing.T) {
	tests := []struct {
		name string
		r    Result
		want int
	}{
		{"empty", Result{}, 0},
		{"products only", Result{Products: make([]Product, 4)}, 4},
		{"pagination wins", Result{Products: make([]Product, 4), Pagination: &Pagination{TotalProducts: 40}}, 40},
		{"zero pagination", Result{Products: make([]Product, 2), Pagination: &Pagination{}}, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.r.Total(); got != tc.want {
				t.Errorf("Total = %d, want %d", got, tc.want)
			}
		})
	}
}
