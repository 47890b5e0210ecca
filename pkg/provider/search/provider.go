// Package search defines the Provider interface for the downstream food
// search and the query and result types exchanged with it.
//
// A Query combines the extracted search terms with the session's location
// and filters. A Result carries the product list for the browser to render
// and, when the backend produced one, a spoken summary.
//
// Implementations must be safe for concurrent use.
package search

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/MrWong99/voicesphere/pkg/audio"
)

// Default search context for sessions that never reported a location.
const (
	DefaultLatitude  = 25.2855
	DefaultLongitude = 51.5314
	DefaultSort      = "price"
)

// DefaultPlatforms are queried when the session does not restrict them.
var DefaultPlatforms = []string{"snoonu", "rafeeq", "talabat"}

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Filters narrow a search. Nil pointers mean "no bound".
type Filters struct {
	Sort              string   `json:"sort,omitempty" yaml:"sort"`
	PriceMin          *float64 `json:"price_min,omitempty" yaml:"price_min"`
	PriceMax          *float64 `json:"price_max,omitempty" yaml:"price_max"`
	TimeMin           *int     `json:"time_min,omitempty" yaml:"time_min"`
	TimeMax           *int     `json:"time_max,omitempty" yaml:"time_max"`
	RestaurantFilter  string   `json:"restaurant_filter,omitempty" yaml:"restaurant_filter"`
	GroupByRestaurant bool     `json:"group_by_restaurant,omitempty" yaml:"group_by_restaurant"`
}

// Query is one search request.
type Query struct {
	Terms        string
	Location     Location
	Language     string
	Page         int
	Platforms    []string
	Filters      Filters
	IncludeAudio bool
}

// WithDefaults returns q with zero fields replaced by the package defaults.
func (q Query) WithDefaults() Query {
	q.Terms = strings.TrimSpace(q.Terms)
	if q.Location == (Location{}) {
		q.Location = Location{Lat: DefaultLatitude, Lon: DefaultLongitude}
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if len(q.Platforms) == 0 {
		q.Platforms = append([]string(nil), DefaultPlatforms...)
	}
	if q.Filters.Sort == "" {
		q.Filters.Sort = DefaultSort
	}
	return q
}

// Variant is one platform's offer for a product.
type Variant struct {
	Source        string  `json:"source"`
	Price         float64 `json:"price"`
	ProductURL    string  `json:"product_url,omitempty"`
	RestaurantETA string  `json:"restaurant_eta,omitempty"`
	IsLowest      bool    `json:"is_lowest,omitempty"`
}

// Product is one search hit, possibly offered on several platforms.
type Product struct {
	ProductName    string    `json:"product_name"`
	RestaurantName string    `json:"restaurant_name,omitempty"`
	ProductImage   string    `json:"product_image,omitempty"`
	LowestPrice    float64   `json:"lowest_price,omitempty"`
	HasComparison  bool      `json:"has_comparison,omitempty"`
	PlatformCount  int       `json:"platform_count,omitempty"`
	Variants       []Variant `json:"variants,omitempty"`
}

// Pagination describes the page a Result holds.
type Pagination struct {
	CurrentPage   int  `json:"current_page"`
	TotalPages    int  `json:"total_pages"`
	TotalProducts int  `json:"total_products"`
	HasNext       bool `json:"has_next"`
	HasPrev       bool `json:"has_prev"`
}

// Result is the outcome of a search.
type Result struct {
	Products    []Product         `json:"products"`
	Pagination  *Pagination       `json:"pagination,omitempty"`
	Restaurants []json.RawMessage `json:"all_restaurants,omitempty"`

	// Summary is the backend's own spoken summary, if any.
	Summary string `json:"summary,omitempty"`

	// Audio is the pre-synthesized Summary. Not cached.
	Audio audio.Clip `json:"-"`
}

// Total returns the total number of matches: the pagination total when the
// backend reported one, otherwise the number of products on this page.
func (r Result) Total() int {
	if r.Pagination != nil && r.Pagination.TotalProducts > 0 {
		return r.Pagination.TotalProducts
	}
	return len(r.Products)
}

// Provider is the abstraction over any search backend.
type Provider interface {
	// Search runs q. An empty result is not an error.
	Search(ctx context.Context, q Query) (Result, error)
}
