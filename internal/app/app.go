// Package app wires the VoiceSphere subsystems into a running server.
//
// The App struct owns the full lifecycle: New connects storage and builds the
// HTTP routes, Run serves until its context is done, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithHistoryStore,
// WithRedisClient, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicesphere/internal/config"
	"github.com/MrWong99/voicesphere/internal/health"
	"github.com/MrWong99/voicesphere/internal/history"
	"github.com/MrWong99/voicesphere/internal/history/postgres"
	"github.com/MrWong99/voicesphere/internal/observe"
	"github.com/MrWong99/voicesphere/pkg/audio/browser"
	"github.com/MrWong99/voicesphere/pkg/provider/chat"
	"github.com/MrWong99/voicesphere/pkg/provider/search"
	"github.com/MrWong99/voicesphere/pkg/provider/search/cache"
	"github.com/MrWong99/voicesphere/pkg/provider/stt"
	"github.com/MrWong99/voicesphere/pkg/provider/translate"
	"github.com/MrWong99/voicesphere/pkg/provider/tts"
)

const (
	readHeaderTimeout = 10 * time.Second
	serverStopTimeout = 10 * time.Second
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT       stt.Provider
	TTS       tts.Provider
	Chat      chat.Provider
	Search    search.Provider
	Translate translate.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	levelVar  *slog.LevelVar

	history history.Store
	redis   redis.UniversalClient
	search  search.Provider
	checks  []health.Checker

	sessions *SessionManager
	handler  http.Handler
	watcher  *config.Watcher

	watchPath     string
	watchInterval time.Duration

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithRedisClient injects the search cache client. The cache is enabled even
// if search.cache.addr is empty.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(a *App) { a.redis = c }
}

// WithMetrics injects the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithConfigWatch reloads the config file at path while running.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.watchPath = path
		a.watchInterval = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. STT, Chat and Search are required.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.Chat == nil || providers.Search == nil {
		return nil, errors.New("app: stt, chat and search providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Search cache ──────────────────────────────────────────────────
	a.initSearchCache()

	// ── 3. Config watcher ────────────────────────────────────────────────
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.reload, config.WithInterval(a.watchInterval))
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: init watcher: %w", err)
		}
		a.watcher = w
	}

	// ── 4. Sessions + routes ─────────────────────────────────────────────
	sessionProviders := *providers
	sessionProviders.Search = a.search
	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:    cfg,
		Providers: &sessionProviders,
		History:   a.history,
		Metrics:   a.metrics,
	})
	a.handler = observe.Middleware(a.metrics)(a.routes())

	return a, nil
}

func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		if p, ok := a.history.(health.Pinger); ok {
			a.checks = append(a.checks, health.Ping("history", p))
		}
		return nil
	}
	if dsn := a.cfg.History.PostgresDSN; dsn != "" {
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.history = store
		a.checks = append(a.checks, health.Ping("history", store))
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		slog.Info("history store connected", "backend", "postgres")
		return nil
	}
	a.history = history.NewMemoryStore(a.cfg.History.PerSession)
	slog.Info("history store ready", "backend", "memory")
	return nil
}

func (a *App) initSearchCache() {
	a.search = a.providers.Search
	cc := a.cfg.Search.Cache
	if a.redis == nil && cc.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cc.Addr,
			Password: cc.Password,
			DB:       cc.DB,
		})
		a.redis = client
		a.closers = append(a.closers, client.Close)
	}
	if a.redis == nil {
		return
	}

	var opts []cache.Option
	if cc.TTL > 0 {
		opts = append(opts, cache.WithTTL(cc.TTL))
	}
	if cc.Prefix != "" {
		opts = append(opts, cache.WithPrefix(cc.Prefix))
	}
	c := cache.New(a.providers.Search, a.redis, opts...)
	a.search = c
	a.checks = append(a.checks, health.Ping("search_cache", c))
	slog.Info("search cache enabled", "addr", cc.Addr, "ttl", cc.TTL)
}

func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", a.handleWS)
	health.New(a.checks...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	if dir := a.cfg.Server.StaticDir; dir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(dir)))
	}
	return mux
}

// handleWS upgrades the request and runs a session for its lifetime.
func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := browser.Accept(w, r, browser.Options{OriginPatterns: a.cfg.Server.AllowedOrigins})
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	if _, err := conn.WaitHello(r.Context()); err != nil {
		slog.Warn("client never said hello", "remote_addr", r.RemoteAddr, "err", err)
		_ = conn.Close()
		return
	}
	if err := a.sessions.Serve(r.Context(), conn, r.RemoteAddr); err != nil {
		slog.Warn("session failed", "remote_addr", r.RemoteAddr, "err", err)
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. The config watcher runs alongside.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serverStopTimeout)
		defer cancel()
		// Hijacked WebSockets are not tracked by Shutdown; end them first.
		if err := a.sessions.CloseAll(stopCtx); err != nil {
			slog.Warn("sessions did not stop in time", "err", err)
		}
		return srv.Shutdown(stopCtx)
	})

	return g.Wait()
}

// reload is the config watcher callback.
func (a *App) reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ConversationChanged || d.SearchDefaultsChanged {
		// Keep everything needing a restart as it was running.
		next := *a.cfg
		next.Server.LogLevel = new.Server.LogLevel
		next.Conversation = new.Conversation
		next.Search.Location = new.Search.Location
		next.Search.Platforms = new.Search.Platforms
		next.Search.Filters = new.Search.Filters
		a.sessions.UpdateConfig(&next)
		slog.Info("conversation settings reloaded; new connections use them")
	}
	for _, section := range d.RestartRequired {
		slog.Warn("config change needs a restart to take effect", "section", section)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends all sessions and releases storage. It is safe to call more
// than once; only the first call does anything.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down")
		var errs []error
		if e := a.sessions.CloseAll(ctx); e != nil {
			errs = append(errs, e)
		}
		if e := a.closeAll(); e != nil {
			errs = append(errs, e)
		}
		err = errors.Join(errs...)
	})
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if e := a.closers[i](); e != nil {
			errs = append(errs, e)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
