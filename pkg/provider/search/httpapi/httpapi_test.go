package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/voicesphere/pkg/provider/search"
)

func TestSearch_SendsDefaultsAndParsesResult(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"products": [{"product_name": "Margherita", "restaurant_name": "Luigi", "lowest_price": 25,
				"variants": [{"source": "talabat", "price": 25, "is_lowest": true}]}],
			"pagination": {"current_page": 1, "total_pages": 3, "total_products": 27, "has_next": true},
			"all_restaurants": ["Luigi", {"name": "Napoli"}],
			"summary": "Found 27 pizzas",
			"audio": {"data": "bXAz", "contentType": "audio/mpeg"}
		}`)
	}))
	defer srv.Close()

	p, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Search(context.Background(), search.Query{Terms: "pizza", IncludeAudio: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if got["term"] != "pizza" || got["sort"] != "price" || got["page"] != float64(1) {
		t.Errorf("request = %v", got)
	}
	if got["lat"] != search.DefaultLatitude || got["lon"] != search.DefaultLongitude {
		t.Errorf("location = %v,%v", got["lat"], got["lon"])
	}
	if platforms, _ := got["platforms"].([]any); len(platforms) != 3 {
		t.Errorf("platforms = %v", got["platforms"])
	}
	if _, ok := got["price_min"]; ok {
		t.Error("unset price_min should be omitted")
	}
	if got["include_audio"] != true {
		t.Errorf("include_audio = %v", got["include_audio"])
	}

	if len(res.Products) != 1 || res.Products[0].Variants[0].Source != "talabat" {
		t.Errorf("products = %+v", res.Products)
	}
	if res.Total() != 27 {
		t.Errorf("Total = %d", res.Total())
	}
	if len(res.Restaurants) != 2 {
		t.Errorf("restaurants = %d", len(res.Restaurants))
	}
	if res.Summary != "Found 27 pizzas" || string(res.Audio.Data) != "mp3" || res.Audio.ContentType != "audio/mpeg" {
		t.Errorf("summary/audio = %q %q %q", res.Summary, res.Audio.Data, res.Audio.ContentType)
	}
}

func TestSearch_Filters(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"products": []}`)
	}))
	defer srv.Close()

	lo, hi := 10.0, 50.0
	p, _ := New(srv.URL)
	_, err := p.Search(context.Background(), search.Query{
		Terms:   "burger",
		Filters: search.Filters{PriceMin: &lo, PriceMax: &hi, RestaurantFilter: "Five Guys", GroupByRestaurant: true},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got["price_min"] != 10.0 || got["price_max"] != 50.0 {
		t.Errorf("price range = %v..%v", got["price_min"], got["price_max"])
	}
	if got["restaurant_filter"] != "Five Guys" || got["group_by_restaurant"] != true {
		t.Errorf("request = %v", got)
	}
}

func TestSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	if _, err := p.Search(context.Background(), search.Query{Terms: "x"}); err == nil {
		t.Fatal("expected error for HTTP 502")
	}
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error")
	}
}
