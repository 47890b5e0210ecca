package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/voicesphere/pkg/provider/search/cache"
	searchmock "github.com/MrWong99/voicesphere/pkg/provider/search/mock"
)

func ok(context.Context) error { return nil }

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New(Checker{Name: "broken", Check: func(context.Context) error { return errors.New("down") }}).
		Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "history", Check: ok}, {Name: "search_cache", Check: ok}},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"history": "ok", "search_cache": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{{Name: "history", Check: down}, {Name: "search_cache", Check: ok}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"history": "fail", "search_cache": "ok"},
		},
		{
			name:       "nil check is dropped",
			checkers:   []Checker{{Name: "history"}},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			code, body := readyz(t, New(tc.checkers...), context.Background())
			if code != tc.wantStatus {
				t.Errorf("status = %d, want %d", code, tc.wantStatus)
			}
			if body.Status != tc.wantBody {
				t.Errorf("body status = %q, want %q", body.Status, tc.wantBody)
			}
			if len(body.Checks) != len(tc.wantChecks) {
				t.Fatalf("checks = %+v, want %v", body.Checks, tc.wantChecks)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name].Status; got != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ReportsError(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "history", Check: func(context.Context) error { return errors.New("connection refused") }})
	_, body := readyz(t, h, context.Background())

	if got := body.Checks["history"].Error; got != "connection refused" {
		t.Errorf("error = %q", got)
	}
}

func TestReadyz_RunsChecksConcurrently(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	waiter := func(ctx context.Context) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	opener := func(context.Context) error {
		close(gate)
		return nil
	}

	// waiter only passes if opener runs while it is still blocked.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	code, _ := readyz(t, New(Checker{Name: "a", Check: waiter}, Checker{Name: "b", Check: opener}), ctx)
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code, _ := readyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestPing_RedisCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := New(Ping("search_cache", cache.New(&searchmock.Provider{}, client)))
	if code, _ := readyz(t, h, context.Background()); code != http.StatusOK {
		t.Fatalf("status = %d with redis up", code)
	}

	mr.Close()
	code, body := readyz(t, h, context.Background())
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d with redis down, want 503", code)
	}
	if body.Checks["search_cache"].Status != "fail" {
		t.Errorf("search_cache = %+v", body.Checks["search_cache"])
	}
}

func TestPing_NilPinger(t *testing.T) {
	t.Parallel()

	if err := Ping("history", nil).Check(context.Background()); err == nil {
		t.Error("nil pinger should fail")
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(Checker{Name: "test", Check: ok}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}
