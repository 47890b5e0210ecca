// Package cache decorates a search.Provider with a Redis result cache.
//
// Results are stored as JSON under a key derived from the sha256 of the
// normalized query, so "Pizza " and "pizza" share an entry. Synthesized
// summary audio is not cached; a hit returns the result without audio and
// the caller falls back to its own summary speech.
//
// Redis failures never fail a search: a read error is treated as a miss and
// a write error is logged.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/voicesphere/pkg/provider/search"
)

const (
	defaultTTL    = 10 * time.Minute
	defaultPrefix = "voicesphere:search"
)

var _ search.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithTTL sets how long a cached result lives. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.ttl = ttl }
}

// WithPrefix sets the Redis key prefix.
func WithPrefix(prefix string) Option {
	return func(p *Provider) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// Provider is a caching search.Provider.
type Provider struct {
	next   search.Provider
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// New wraps next with a cache backed by client.
func New(next search.Provider, client redis.UniversalClient, opts ...Option) *Provider {
	p := &Provider{next: next, client: client, ttl: defaultTTL, prefix: defaultPrefix}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Search implements search.Provider.
func (p *Provider) Search(ctx context.Context, q search.Query) (search.Result, error) {
	key := p.Key(q)

	data, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var res search.Result
		if uerr := json.Unmarshal(data, &res); uerr == nil {
			return res, nil
		}
		slog.Warn("search cache: discarding corrupt entry", "key", key)
	case !errors.Is(err, redis.Nil):
		slog.Warn("search cache: get failed", "key", key, "err", err)
	}

	res, err := p.next.Search(ctx, q)
	if err != nil {
		return search.Result{}, err
	}
	if payload, merr := json.Marshal(res); merr == nil {
		if serr := p.client.Set(ctx, key, payload, p.ttl).Err(); serr != nil {
			slog.Warn("search cache: set failed", "key", key, "err", serr)
		}
	}
	return res, nil
}

// Ping reports whether Redis is reachable. It is used as a readiness check.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("search cache: ping: %w", err)
	}
	return nil
}

// Key returns the cache key for q.
func (p *Provider) Key(q search.Query) string {
	q = q.WithDefaults()
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.Join(strings.Fields(q.Terms), " ")))
	fmt.Fprintf(&b, "|%.4f,%.4f|%s|%d|%s|%s",
		q.Location.Lat, q.Location.Lon, q.Language, q.Page,
		strings.Join(q.Platforms, ","), q.Filters.Sort)
	f := q.Filters
	if f.PriceMin != nil {
		fmt.Fprintf(&b, "|pmin=%g", *f.PriceMin)
	}
	if f.PriceMax != nil {
		fmt.Fprintf(&b, "|pmax=%g", *f.PriceMax)
	}
	if f.TimeMin != nil {
		fmt.Fprintf(&b, "|tmin=%d", *f.TimeMin)
	}
	if f.TimeMax != nil {
		fmt.Fprintf(&b, "|tmax=%d", *f.TimeMax)
	}
	fmt.Fprintf(&b, "|r=%s|g=%t", strings.ToLower(f.RestaurantFilter), f.GroupByRestaurant)

	sum := sha256.Sum256([]byte(b.String()))
	return p.prefix + ":" + hex.EncodeToString(sum[:])
}
