package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voicesphere/internal/config"
	"github.com/MrWong99/voicesphere/internal/conversation"
	"github.com/MrWong99/voicesphere/internal/history"
	"github.com/MrWong99/voicesphere/internal/observe"
	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/audio/browser"
	"github.com/MrWong99/voicesphere/pkg/audio/energy"
	"github.com/MrWong99/voicesphere/pkg/provider/search"
)

// ErrShuttingDown is returned by [SessionManager.Serve] once CloseAll has
// been called.
var ErrShuttingDown = errors.New("app: shutting down")

// Transport is one connected client. *browser.Conn implements it.
type Transport interface {
	audio.Microphone
	audio.Sink
	audio.Synthesizer

	// Commands delivers user commands and is closed when the client goes away.
	Commands() <-chan browser.Message

	// Send pushes a UI update to the client.
	Send(ctx context.Context, m browser.Message) error

	Close() error
}

// SessionInfo holds metadata about a connected session.
type SessionInfo struct {
	// SessionID is the conversation id used in logs and history.
	SessionID string

	// RemoteAddr is the client address of the WebSocket.
	RemoteAddr string

	// StartedAt is when the session was created.
	StartedAt time.Time
}

type liveSession struct {
	info   SessionInfo
	cancel context.CancelFunc
}

// SessionManager runs one conversation controller per connected client.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	providers *Providers
	history   history.Store
	metrics   *observe.Metrics

	mu       sync.Mutex
	cfg      *config.Config
	sessions map[string]*liveSession
	closed   bool
	wg       sync.WaitGroup
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Config    *config.Config
	Providers *Providers
	History   history.Store
	Metrics   *observe.Metrics
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &SessionManager{
		providers: cfg.Providers,
		history:   cfg.History,
		metrics:   m,
		cfg:       cfg.Config,
		sessions:  make(map[string]*liveSession),
	}
}

// UpdateConfig replaces the configuration used for sessions started from now
// on. Running sessions keep theirs.
func (sm *SessionManager) UpdateConfig(cfg *config.Config) {
	sm.mu.Lock()
	sm.cfg = cfg
	sm.mu.Unlock()
}

// Serve runs a conversation for t until t's command channel closes or ctx is
// done, then closes t. It blocks for the lifetime of the session.
func (sm *SessionManager) Serve(ctx context.Context, t Transport, remoteAddr string) error {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		_ = t.Close()
		return ErrShuttingDown
	}
	cfg := sm.cfg
	ctx, cancel := context.WithCancel(ctx)
	ls := &liveSession{
		info: SessionInfo{
			SessionID:  uuid.NewString(),
			RemoteAddr: remoteAddr,
			StartedAt:  time.Now().UTC(),
		},
		cancel: cancel,
	}
	sm.sessions[ls.info.SessionID] = ls
	sm.wg.Add(1)
	sm.mu.Unlock()

	id := ls.info.SessionID
	defer func() {
		cancel()
		_ = t.Close()
		sm.mu.Lock()
		delete(sm.sessions, id)
		sm.mu.Unlock()
		sm.wg.Done()
	}()

	b := &bridge{t: t, ctx: ctx, sessionID: id}
	ctrl, err := conversation.New(conversation.Deps{
		Microphone:  t,
		Sink:        t,
		Synthesizer: t,
		STT:         sm.providers.STT,
		TTS:         sm.providers.TTS,
		Chat:        sm.providers.Chat,
		Search:      sm.providers.Search,
		Translate:   sm.providers.Translate,
		History:     sm.history,
		Metrics:     sm.metrics,
	}, controllerOptions(cfg, id, b.onEvent)...)
	if err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}

	sm.metrics.ActiveConversations.Add(ctx, 1)
	defer sm.metrics.ActiveConversations.Add(context.WithoutCancel(ctx), -1)

	slog.Info("session started", "session_id", id, "remote_addr", remoteAddr)

	sm.dispatchLoop(ctx, ctrl, t.Commands(), id)

	if err := ctrl.Close(); err != nil {
		slog.Warn("session: close controller", "session_id", id, "err", err)
	}
	if f, ok := sm.history.(interface{ Forget(string) }); ok {
		f.Forget(id)
	}
	slog.Info("session ended", "session_id", id, "duration", time.Since(ls.info.StartedAt).Round(time.Millisecond))
	return nil
}

func (sm *SessionManager) dispatchLoop(ctx context.Context, ctrl *conversation.Controller, cmds <-chan browser.Message, id string) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-cmds:
			if !ok {
				return
			}
			if err := dispatch(ctx, ctrl, m); err != nil {
				slog.Warn("session: command failed", "session_id", id, "type", m.Type, "err", err)
			}
		}
	}
}

// dispatch applies one client command to ctrl.
func dispatch(ctx context.Context, ctrl *conversation.Controller, m browser.Message) error {
	switch m.Type {
	case browser.TypeActivate:
		return ctrl.Activate(ctx)
	case browser.TypeStop:
		ctrl.Cancel()
	case browser.TypeEndSpeech:
		ctrl.EndSpeech()
	case browser.TypeText:
		return ctrl.SubmitText(ctx, m.Text)
	case browser.TypeLanguage:
		if m.Language == "" {
			return errors.New("empty language")
		}
		ctrl.SetLanguage(m.Language)
	case browser.TypeFilters:
		var f search.Filters
		if err := json.Unmarshal(m.Filters, &f); err != nil {
			return fmt.Errorf("decode filters: %w", err)
		}
		ctrl.SetFilters(f)
	case browser.TypeLocation:
		var loc search.Location
		if err := json.Unmarshal(m.Location, &loc); err != nil {
			return fmt.Errorf("decode location: %w", err)
		}
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
			return fmt.Errorf("location out of range: %v,%v", loc.Lat, loc.Lon)
		}
		ctrl.SetLocation(loc)
	default:
		return fmt.Errorf("unknown command %q", m.Type)
	}
	return nil
}

// controllerOptions maps the conversation and search sections of cfg to
// controller options.
func controllerOptions(cfg *config.Config, sessionID string, onEvent func(conversation.Event)) []conversation.Option {
	cc := cfg.Conversation
	tuning := conversation.Tuning{
		Thresholds: energy.Thresholds{
			NoiseFloor: cc.NoiseFloor,
			MinSpeech:  cc.MinSpeech,
			Silence:    cc.Silence,
		},
		SampleInterval: cc.SampleInterval,
		Smoothing:      cc.Smoothing,
		EchoGuard:      cc.EchoGuard,
		ErrorRevert:    cc.ErrorRevert,
		CaptureCeiling: cc.CaptureCeiling,
		SettleTimeout:  cc.SettleTimeout,
		VoiceNative:    cc.VoiceNative,
		IncludeAudio:   cc.IncludeAudio,
		Greet:          cc.Greeting.Enabled,
		Language:       cc.Language,
		HistoryLimit:   cc.HistoryLimit,
		Platforms:      cfg.Search.Platforms,
	}
	templates := conversation.Templates{
		Greeting:         cc.Greeting.Text,
		Searching:        cc.Templates.Searching,
		ResultsFound:     cc.Templates.ResultsFound,
		NoResults:        cc.Templates.NoResults,
		GenericError:     cc.Templates.GenericError,
		PermissionDenied: cc.Templates.PermissionDenied,
	}
	return []conversation.Option{
		conversation.WithSessionID(sessionID),
		conversation.WithTuning(tuning),
		conversation.WithTemplates(templates),
		conversation.WithSearchDefaults(cfg.Search.Location, cfg.Search.Filters),
		conversation.WithEventHandler(onEvent),
	}
}

// Count returns the number of running sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Sessions returns the running sessions, oldest first.
func (sm *SessionManager) Sessions() []SessionInfo {
	sm.mu.Lock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, ls := range sm.sessions {
		out = append(out, ls.info)
	}
	sm.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CloseAll ends every session and waits for them to finish or ctx to be
// done. Later calls to Serve fail with [ErrShuttingDown].
func (sm *SessionManager) CloseAll(ctx context.Context) error {
	sm.mu.Lock()
	sm.closed = true
	for _, ls := range sm.sessions {
		ls.cancel()
	}
	sm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app: waiting for sessions: %w", ctx.Err())
	}
}

// bridge forwards controller events to the client.
type bridge struct {
	t         Transport
	ctx       context.Context
	sessionID string
}

func (b *bridge) onEvent(ev conversation.Event) {
	m, ok := eventMessage(ev)
	if !ok {
		return
	}
	if err := b.t.Send(b.ctx, m); err != nil && b.ctx.Err() == nil {
		slog.Debug("session: send event", "session_id", b.sessionID, "type", m.Type, "err", err)
	}
}

// eventMessage renders ev as a client message.
func eventMessage(ev conversation.Event) (browser.Message, bool) {
	switch ev.Kind {
	case conversation.EventPhase:
		return browser.Message{Type: browser.TypePhase, Phase: ev.Phase.String()}, true
	case conversation.EventLevel:
		level := ev.Level
		return browser.Message{Type: browser.TypeLevel, Level: &level}, true
	case conversation.EventMessage:
		return browser.Message{Type: browser.TypeMessage, Role: string(ev.Message.Role), Text: ev.Message.Text}, true
	case conversation.EventResults:
		if ev.Results == nil {
			return browser.Message{}, false
		}
		data, err := json.Marshal(ev.Results)
		if err != nil {
			slog.Warn("session: encode results", "err", err)
			return browser.Message{}, false
		}
		return browser.Message{Type: browser.TypeResults, Query: ev.Query, Results: data}, true
	}
	return browser.Message{}, false
}
