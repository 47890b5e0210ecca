// Package httpapi provides a search provider for the food-search backend:
//
//	POST {baseURL}/search
//	{"term": "pizza", "lat": 25.2855, "lon": 51.5314, "sort": "price", "page": 1,
//	 "platforms": ["snoonu", "rafeeq", "talabat"], "restaurant_filter": "",
//	 "group_by_restaurant": false}
//
// The response carries "products", "pagination" and "all_restaurants", plus an
// optional "summary" and base64 "audio" when include_audio was set.
package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/search"
)

const defaultTimeout = 30 * time.Second

var _ search.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements search.Provider over the /search endpoint.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Provider targeting baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("search/httpapi: baseURL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type searchRequest struct {
	Term              string   `json:"term"`
	Lat               float64  `json:"lat"`
	Lon               float64  `json:"lon"`
	Sort              string   `json:"sort"`
	Page              int      `json:"page"`
	Platforms         []string `json:"platforms"`
	PriceMin          *float64 `json:"price_min,omitempty"`
	PriceMax          *float64 `json:"price_max,omitempty"`
	TimeMin           *int     `json:"time_min,omitempty"`
	TimeMax           *int     `json:"time_max,omitempty"`
	RestaurantFilter  string   `json:"restaurant_filter"`
	GroupByRestaurant bool     `json:"group_by_restaurant"`
	Language          string   `json:"language,omitempty"`
	IncludeAudio      bool     `json:"include_audio,omitempty"`
}

type searchResponse struct {
	search.Result
	Audio *struct {
		Data        string `json:"data"`
		ContentType string `json:"contentType"`
	} `json:"audio,omitempty"`
}

func buildRequest(q search.Query) searchRequest {
	q = q.WithDefaults()
	return searchRequest{
		Term:              q.Terms,
		Lat:               q.Location.Lat,
		Lon:               q.Location.Lon,
		Sort:              q.Filters.Sort,
		Page:              q.Page,
		Platforms:         q.Platforms,
		PriceMin:          q.Filters.PriceMin,
		PriceMax:          q.Filters.PriceMax,
		TimeMin:           q.Filters.TimeMin,
		TimeMax:           q.Filters.TimeMax,
		RestaurantFilter:  q.Filters.RestaurantFilter,
		GroupByRestaurant: q.Filters.GroupByRestaurant,
		Language:          q.Language,
		IncludeAudio:      q.IncludeAudio,
	}
}

// Search implements search.Provider.
func (p *Provider) Search(ctx context.Context, q search.Query) (search.Result, error) {
	payload, err := json.Marshal(buildRequest(q))
	if err != nil {
		return search.Result{}, fmt.Errorf("search/httpapi: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return search.Result{}, fmt.Errorf("search/httpapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return search.Result{}, fmt.Errorf("search/httpapi: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return search.Result{}, fmt.Errorf("search/httpapi: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return search.Result{}, fmt.Errorf("search/httpapi: server returned HTTP %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return search.Result{}, fmt.Errorf("search/httpapi: parse JSON response: %w", err)
	}
	res := out.Result
	if out.Audio != nil && out.Audio.Data != "" {
		raw, err := base64.StdEncoding.DecodeString(out.Audio.Data)
		if err != nil {
			return search.Result{}, fmt.Errorf("search/httpapi: decode audio: %w", err)
		}
		res.Audio = audio.Clip{Data: raw, ContentType: out.Audio.ContentType}
	}
	return res, nil
}
