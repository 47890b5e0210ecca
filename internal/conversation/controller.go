// Package conversation implements the turn controller: the state machine that
// sequences listening, transcription, interpretation, optional search and
// speech for one browser connection.
//
// # Turns
//
// A turn is one pass through the phases, run sequentially on its own
// goroutine under a single [context.Context]. At most one turn exists at any
// instant. Cancelling a turn cancels its context, releases the microphone and
// silences playback synchronously, and returns the phase to Idle. Results that
// arrive for a turn that is no longer current are discarded.
//
// # Re-listening
//
// While [Session.Active] is set, a turn that completes through Speaking
// schedules exactly one new Listening turn after a short echo guard, so the
// microphone does not pick up the tail of the assistant's own voice. Empty
// captures, failures and cancellations never re-listen.
//
// # Events
//
// Phase changes, live microphone levels, chat lines and search results are
// published as [Event] values to the handler given with [WithEventHandler].
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voicesphere/internal/history"
	"github.com/MrWong99/voicesphere/internal/observe"
	"github.com/MrWong99/voicesphere/internal/playback"
	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/audio/capture"
	"github.com/MrWong99/voicesphere/pkg/audio/energy"
	"github.com/MrWong99/voicesphere/pkg/provider/chat"
	"github.com/MrWong99/voicesphere/pkg/provider/search"
	"github.com/MrWong99/voicesphere/pkg/provider/stt"
	"github.com/MrWong99/voicesphere/pkg/provider/translate"
	"github.com/MrWong99/voicesphere/pkg/provider/tts"
)

// Defaults for [Tuning].
const (
	DefaultEchoGuard    = 250 * time.Millisecond
	DefaultErrorRevert  = 3 * time.Second
	DefaultLanguage     = "en"
	DefaultHistoryLimit = 10
)

// stopTimeout bounds how long silencing playback on cancel may take.
const stopTimeout = 2 * time.Second

// Turn triggers, used as metric attributes.
const (
	triggerVoice    = "voice"
	triggerRelisten = "relisten"
	triggerText     = "text"
	triggerGreeting = "greeting"
)

// Deps are the collaborators of a [Controller]. TTS, Translate, History and
// Metrics are optional.
type Deps struct {
	Microphone  audio.Microphone
	Sink        audio.Sink
	Synthesizer audio.Synthesizer

	STT       stt.Provider
	TTS       tts.Provider
	Chat      chat.Provider
	Search    search.Provider
	Translate translate.Provider

	History history.Store
	Metrics *observe.Metrics
}

// Tuning holds the timing and behaviour knobs of a controller. Zero fields
// take the defaults.
type Tuning struct {
	// Thresholds configures end-of-speech detection.
	Thresholds energy.Thresholds

	// SampleInterval is the monitor tick.
	SampleInterval time.Duration

	// Smoothing is the loudness smoothing factor.
	Smoothing float64

	// LevelGain scales raw RMS into the [0,1] loudness range.
	LevelGain float64

	// EchoGuard delays re-listening after the assistant stops speaking.
	EchoGuard time.Duration

	// ErrorRevert is how long the Error phase is shown before Idle.
	ErrorRevert time.Duration

	// CaptureCeiling force-finalizes a capture that runs this long.
	CaptureCeiling time.Duration

	// SettleTimeout bounds one utterance.
	SettleTimeout time.Duration

	// VoiceNative sends the captured audio to the chat backend directly
	// instead of transcribing it first.
	VoiceNative bool

	// IncludeAudio asks chat and search backends for synthesized replies.
	IncludeAudio bool

	// Greet plays the greeting on the first activation of the session.
	Greet bool

	// Language is the initial session language.
	Language string

	// HistoryLimit is how many past entries are sent to the chat backend.
	HistoryLimit int

	// Platforms restricts searches to these delivery platforms.
	Platforms []string
}

func (t Tuning) withDefaults() Tuning {
	if t.EchoGuard <= 0 {
		t.EchoGuard = DefaultEchoGuard
	}
	if t.ErrorRevert <= 0 {
		t.ErrorRevert = DefaultErrorRevert
	}
	if t.Language == "" {
		t.Language = DefaultLanguage
	}
	if t.HistoryLimit <= 0 {
		t.HistoryLimit = DefaultHistoryLimit
	}
	return t
}

// Option configures a [Controller].
type Option func(*Controller)

// WithTuning overrides the default tuning.
func WithTuning(t Tuning) Option {
	return func(c *Controller) { c.tuning = t }
}

// WithSessionID sets the session id. A random UUID is used otherwise.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.session.ID = id }
}

// WithEventHandler registers fn to receive every [Event].
func WithEventHandler(fn func(Event)) Option {
	return func(c *Controller) { c.onEvent = fn }
}

// WithTemplates overrides the assistant's own phrases. Empty fields keep
// their defaults.
func WithTemplates(t Templates) Option {
	return func(c *Controller) { c.templates = t }
}

// WithSearchDefaults sets the initial search location and filters.
func WithSearchDefaults(loc search.Location, f search.Filters) Option {
	return func(c *Controller) {
		c.session.Location = loc
		c.session.Filters = f
	}
}

// Controller is the turn state machine for one conversation. It is safe for
// concurrent use.
type Controller struct {
	deps      Deps
	tuning    Tuning
	templates Templates
	metrics   *observe.Metrics
	source    *capture.Source
	player    *playback.Player
	onEvent   func(Event)
	events    *emitter

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	phase    Phase
	session  Session
	turn     *turn
	relisten *time.Timer
	revert   *time.Timer
	timerGen uint64
	closed   bool
}

// turn is one pass through the phases.
type turn struct {
	id      string
	trigger string
	cancel  context.CancelFunc

	endSpeech chan struct{}
	endOnce   sync.Once

	mu       sync.Mutex
	capture  *capture.Capture
	monitor  *energy.Monitor
	released bool
}

// New returns a Controller in the Idle phase. Microphone, Sink, STT, Chat and
// Search are required.
func New(deps Deps, opts ...Option) (*Controller, error) {
	var errs []error
	if deps.Microphone == nil {
		errs = append(errs, errors.New("microphone is required"))
	}
	if deps.Sink == nil {
		errs = append(errs, errors.New("sink is required"))
	}
	if deps.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if deps.Chat == nil {
		errs = append(errs, errors.New("chat provider is required"))
	}
	if deps.Search == nil {
		errs = append(errs, errors.New("search provider is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}

	c := &Controller{deps: deps}
	for _, o := range opts {
		o(c)
	}
	c.tuning = c.tuning.withDefaults()
	c.templates = c.templates.withDefaults()
	if c.session.ID == "" {
		c.session.ID = uuid.NewString()
	}
	c.session.Language = c.tuning.Language

	c.metrics = deps.Metrics
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	var capOpts []capture.Option
	if c.tuning.CaptureCeiling > 0 {
		capOpts = append(capOpts, capture.WithCeiling(c.tuning.CaptureCeiling))
	}
	if c.tuning.LevelGain > 0 {
		capOpts = append(capOpts, capture.WithLevelGain(c.tuning.LevelGain))
	}
	c.source = capture.NewSource(deps.Microphone, capOpts...)

	playOpts := []playback.Option{
		playback.WithFallbackHook(func(reason string, err error) {
			c.metrics.RecordPlaybackFallback(c.base, reason)
		}),
	}
	if deps.TTS != nil {
		playOpts = append(playOpts, playback.WithRemote(deps.TTS))
	}
	if c.tuning.SettleTimeout > 0 {
		playOpts = append(playOpts, playback.WithSettleTimeout(c.tuning.SettleTimeout))
	}
	c.player = playback.New(deps.Sink, deps.Synthesizer, playOpts...)

	c.base, c.shutdown = context.WithCancel(context.Background())
	c.events = newEmitter(c.onEvent)
	return c, nil
}

// ─── Public operations ────────────────────────────────────────────────────────

// Activate is the user's activation gesture. From Idle it starts listening,
// or plays the greeting on the very first activation when greeting is
// enabled. In every other phase it cancels the current turn instead.
//
// The first call also primes the audio sink.
func (c *Controller) Activate(ctx context.Context) error {
	if err := c.player.Unlock(ctx); err != nil {
		slog.Warn("conversation: prime sink", "session_id", c.sessionID(), "err", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.phase != PhaseIdle {
		t := c.stopLocked()
		c.mu.Unlock()
		c.cleanup(t, true)
		return nil
	}

	c.stopTimersLocked()
	c.session.Active = true
	if c.tuning.Greet && !c.session.Greeted {
		c.session.Greeted = true
		c.startLocked(triggerGreeting, PhaseSpeaking, c.runGreeting)
	} else {
		c.startLocked(triggerVoice, PhaseListening, c.runVoice)
	}
	c.mu.Unlock()
	return nil
}

// Cancel aborts the current turn from any phase and returns to Idle. The
// session becomes inactive. Capture and playback are released before Cancel
// returns.
func (c *Controller) Cancel() {
	c.mu.Lock()
	t := c.stopLocked()
	c.mu.Unlock()
	c.cleanup(t, true)
}

// EndSpeech finalizes the capture early, as if end-of-speech had been
// detected. It reports whether a Listening turn received the signal.
func (c *Controller) EndSpeech() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseListening || c.turn == nil {
		return false
	}
	t := c.turn
	t.endOnce.Do(func() { close(t.endSpeech) })
	return true
}

// SubmitText starts a turn from typed text, skipping capture and
// transcription. Any current turn is cancelled first and the session becomes
// active. Blank text is ignored.
func (c *Controller) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := c.player.Unlock(ctx); err != nil {
		slog.Warn("conversation: prime sink", "session_id", c.sessionID(), "err", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.stopLocked()
	c.mu.Unlock()
	c.cleanup(prev, true)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.session.Active = true
	c.startLocked(triggerText, PhaseInterpreting, func(ctx context.Context, t *turn) error {
		c.userSaid(ctx, t, text)
		return c.interpret(ctx, t, chat.Request{Text: text})
	})
	return nil
}

// SetLanguage sets the conversation language. Empty resets to the default.
func (c *Controller) SetLanguage(language string) {
	language = strings.TrimSpace(language)
	if language == "" {
		language = c.tuning.Language
	}
	c.mu.Lock()
	c.session.Language = language
	c.mu.Unlock()
}

// SetLocation sets the search location for later turns.
func (c *Controller) SetLocation(loc search.Location) {
	c.mu.Lock()
	c.session.Location = loc
	c.mu.Unlock()
}

// SetFilters sets the search filters for later turns.
func (c *Controller) SetFilters(f search.Filters) {
	c.mu.Lock()
	c.session.Filters = f
	c.mu.Unlock()
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Session returns a snapshot of the session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.clone()
}

// Close cancels the current turn, waits for its goroutine and flushes
// pending events. Later operations return [ErrClosed].
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	t := c.stopLocked()
	c.mu.Unlock()

	c.cleanup(t, true)
	c.shutdown()
	c.wg.Wait()
	c.events.close()
	return nil
}

// ─── Turn lifecycle ───────────────────────────────────────────────────────────

// startLocked creates a turn, enters phase and runs fn on a new goroutine.
// The caller holds c.mu and has made sure no turn is current.
func (c *Controller) startLocked(trigger string, phase Phase, fn func(context.Context, *turn) error) {
	ctx, cancel := context.WithCancel(c.base)
	t := &turn{
		id:        uuid.NewString(),
		trigger:   trigger,
		cancel:    cancel,
		endSpeech: make(chan struct{}),
	}
	c.turn = t
	c.setPhaseLocked(phase, t.id)
	c.metrics.RecordTurnStarted(ctx, trigger)
	sessionID := c.session.ID

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		sctx, span := observe.StartTurnSpan(ctx, sessionID, t.id, trigger)
		err := fn(sctx, t)
		observe.EndSpan(span, failure(err))

		c.cleanup(t, false)
		c.finish(sctx, t, err)
	}()
}

// stopLocked cancels the current turn, if any, enters Idle and deactivates
// the session. The returned turn still needs [Controller.cleanup] outside
// the lock.
func (c *Controller) stopLocked() *turn {
	c.stopTimersLocked()
	c.session.Active = false
	t := c.turn
	c.turn = nil
	if t != nil {
		t.cancel()
		c.metrics.RecordTurnCompleted(c.base, "cancelled")
		slog.Debug("conversation: turn cancelled", "session_id", c.session.ID, "turn_id", t.id, "phase", c.phase.String())
	}
	c.setPhaseLocked(PhaseIdle, "")
	return t
}

// cleanup releases the turn's capture resources. With silence set it also
// stops playback. It is idempotent and must not be called with c.mu held.
func (c *Controller) cleanup(t *turn, silence bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	capt, mon := t.capture, t.monitor
	t.capture, t.monitor = nil, nil
	t.released = true
	t.mu.Unlock()

	if mon != nil {
		mon.Stop()
	}
	if capt != nil {
		capt.Release()
	}
	if silence {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := c.player.Stop(ctx); err != nil {
			slog.Warn("conversation: stop playback", "session_id", c.sessionID(), "err", err)
		}
	}
}

// attach hands capture resources to t. It returns false when t was already
// released, in which case the caller must release them itself.
func (t *turn) attach(capt *capture.Capture, mon *energy.Monitor) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return false
	}
	t.capture, t.monitor = capt, mon
	return true
}

// finish applies the outcome of t if it is still the current turn.
func (c *Controller) finish(ctx context.Context, t *turn, err error) {
	log := observe.Logger(ctx).With("session_id", c.sessionID(), "turn_id", t.id, "trigger", t.trigger)

	c.mu.Lock()
	if c.turn != t {
		c.mu.Unlock()
		return
	}
	c.turn = nil

	var (
		outcome string
		message string
	)
	switch {
	case err == nil:
		outcome = "completed"
		c.setPhaseLocked(PhaseIdle, t.id)
		if c.session.Active {
			c.scheduleRelistenLocked()
		}
	case errors.Is(err, ErrEmptyCapture):
		outcome = "empty"
		c.setPhaseLocked(PhaseIdle, t.id)
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		outcome = "cancelled"
		c.setPhaseLocked(PhaseIdle, t.id)
	default:
		outcome = "error"
		message = c.templates.GenericError
		if errors.Is(err, ErrPermissionDenied) {
			message = c.templates.PermissionDenied
		}
		c.setPhaseLocked(PhaseError, t.id)
		c.events.emit(Event{
			Kind:    EventMessage,
			TurnID:  t.id,
			Message: Message{Role: RoleError, Text: message},
			Err:     err,
		})
		c.scheduleRevertLocked()
	}
	language := c.session.Language
	c.mu.Unlock()

	c.metrics.RecordTurnCompleted(ctx, outcome)
	switch outcome {
	case "error":
		log.Warn("conversation: turn failed", "err", err)
		c.record(context.WithoutCancel(ctx), history.Entry{Role: history.RoleError, Text: message, Language: language})
	case "empty":
		log.Debug("conversation: nothing heard")
	default:
		log.Debug("conversation: turn finished", "outcome", outcome)
	}
}

func failure(err error) error {
	if err == nil || errors.Is(err, ErrEmptyCapture) || errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return nil
	}
	return err
}

// ─── Timers ───────────────────────────────────────────────────────────────────

func (c *Controller) stopTimersLocked() {
	c.timerGen++
	if c.relisten != nil {
		c.relisten.Stop()
		c.relisten = nil
	}
	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
}

func (c *Controller) scheduleRelistenLocked() {
	c.stopTimersLocked()
	gen := c.timerGen
	c.relisten = time.AfterFunc(c.tuning.EchoGuard, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.timerGen || c.turn != nil || c.phase != PhaseIdle || !c.session.Active {
			return
		}
		c.relisten = nil
		c.startLocked(triggerRelisten, PhaseListening, c.runVoice)
	})
}

func (c *Controller) scheduleRevertLocked() {
	c.stopTimersLocked()
	gen := c.timerGen
	c.revert = time.AfterFunc(c.tuning.ErrorRevert, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.timerGen || c.phase != PhaseError {
			return
		}
		c.revert = nil
		c.setPhaseLocked(PhaseIdle, "")
	})
}

// ─── Stages ───────────────────────────────────────────────────────────────────

// enter moves to phase if t is still current.
func (c *Controller) enter(t *turn, phase Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != t {
		return ErrCancelled
	}
	c.setPhaseLocked(phase, t.id)
	return nil
}

func (c *Controller) setPhaseLocked(phase Phase, turnID string) {
	if c.phase == phase {
		return
	}
	c.phase = phase
	c.metrics.RecordPhase(c.base, phase.String())
	c.events.emit(Event{Kind: EventPhase, TurnID: turnID, Phase: phase})
}

// runGreeting speaks the greeting.
func (c *Controller) runGreeting(ctx context.Context, t *turn) error {
	text := c.localize(ctx, c.templates.Greeting)
	c.botSaid(ctx, t, text, "", 0)
	return c.say(ctx, t, playback.Request{Text: text})
}

// runVoice listens until end-of-speech and carries the utterance through
// the remaining stages.
func (c *Controller) runVoice(ctx context.Context, t *turn) error {
	stream, err := c.source.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, audio.ErrPermissionDenied) {
			return &TurnError{Stage: StagePermission, Err: err}
		}
		return &TurnError{Stage: StageCapture, Err: err}
	}

	capt := c.source.Begin(stream)
	mon := energy.NewMonitor(capt, c.monitorOptions(t)...)
	if !t.attach(capt, mon) {
		capt.Release()
		return ErrCancelled
	}
	mon.Start(ctx)

	select {
	case <-mon.Triggered():
	case <-t.endSpeech:
	case <-capt.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	mon.Stop()
	buf, ok := capt.Finalize()
	c.level(t, 0)
	if !ok {
		return ErrEmptyCapture
	}

	if c.tuning.VoiceNative {
		return c.interpret(ctx, t, chat.Request{Audio: &buf})
	}
	return c.transcribe(ctx, t, buf)
}

func (c *Controller) monitorOptions(t *turn) []energy.Option {
	opts := []energy.Option{
		energy.WithThresholds(c.tuning.Thresholds),
		energy.WithLevelCallback(func(v float64) { c.level(t, v) }),
	}
	if c.tuning.SampleInterval > 0 {
		opts = append(opts, energy.WithInterval(c.tuning.SampleInterval))
	}
	if c.tuning.Smoothing > 0 {
		opts = append(opts, energy.WithSmoothing(c.tuning.Smoothing))
	}
	return opts
}

func (c *Controller) level(t *turn, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != t {
		return
	}
	c.events.emit(Event{Kind: EventLevel, TurnID: t.id, Level: v})
}

func (c *Controller) transcribe(ctx context.Context, t *turn, buf audio.Buffer) error {
	if err := c.enter(t, PhaseTranscribing); err != nil {
		return err
	}
	language := c.Session().Language

	sctx, span := observe.StartSpan(ctx, "conversation.transcribe")
	start := time.Now()
	tr, err := c.deps.STT.Transcribe(sctx, buf, language)
	c.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, stt.ErrNoSpeech) {
			return ErrEmptyCapture
		}
		return &TurnError{Stage: StageTranscription, Err: err}
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return ErrEmptyCapture
	}

	if tr.Language != "" {
		c.mu.Lock()
		if c.turn == t {
			c.session.Language = tr.Language
		}
		c.mu.Unlock()
	}
	c.userSaid(ctx, t, text)
	return c.interpret(ctx, t, chat.Request{Text: text})
}

func (c *Controller) interpret(ctx context.Context, t *turn, req chat.Request) error {
	if err := c.enter(t, PhaseInterpreting); err != nil {
		return err
	}
	sess := c.Session()
	req.SessionID = sess.BackendID
	req.Language = sess.Language
	req.IncludeAudio = c.tuning.IncludeAudio
	req.History = c.recent(ctx, sess.ID, req.Text)

	sctx, span := observe.StartSpan(ctx, "conversation.interpret")
	start := time.Now()
	in, err := c.deps.Chat.Interpret(sctx, req)
	c.metrics.InterpretDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TurnError{Stage: StageInterpretation, Err: err}
	}
	in = chat.Normalize(in)

	c.mu.Lock()
	if c.turn != t {
		c.mu.Unlock()
		return ErrCancelled
	}
	if in.SessionID != "" {
		c.session.BackendID = in.SessionID
	}
	if in.Language != "" {
		c.session.Language = in.Language
	}
	if in.ShouldStop {
		c.session.Active = false
	}
	c.mu.Unlock()

	reply := playback.Request{Clip: in.Audio, Text: in.SpokenText}
	if in.ShouldStop {
		c.botSaid(ctx, t, in.SpokenText, "", 0)
		return c.say(ctx, t, reply)
	}

	query := in.Query()
	if !in.ShouldSearch || query == "" {
		c.botSaid(ctx, t, in.SpokenText, "", 0)
		return c.say(ctx, t, reply)
	}

	// The reply, or an announcement, plays to completion before the search
	// starts. The summary is a separate utterance.
	if reply.Empty() {
		reply.Text = c.localize(ctx, c.templates.searching(query))
	}
	c.botSaid(ctx, t, reply.Text, "", 0)
	if err := c.say(ctx, t, reply); err != nil {
		return err
	}
	return c.search(ctx, t, query, in.SearchTerms)
}

func (c *Controller) search(ctx context.Context, t *turn, query string, terms []string) error {
	if err := c.enter(t, PhaseSearching); err != nil {
		return err
	}
	sess := c.Session()
	q := search.Query{
		Terms:        query,
		Location:     sess.Location,
		Language:     sess.Language,
		Page:         1,
		Platforms:    c.tuning.Platforms,
		Filters:      sess.Filters,
		IncludeAudio: c.tuning.IncludeAudio,
	}.WithDefaults()

	sctx, span := observe.StartSpan(ctx, "conversation.search")
	start := time.Now()
	res, err := c.deps.Search.Search(sctx, q)
	c.metrics.SearchDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TurnError{Stage: StageSearch, Err: err}
	}

	c.mu.Lock()
	if c.turn != t {
		c.mu.Unlock()
		return ErrCancelled
	}
	c.session.LastTopic = append([]string(nil), terms...)
	results := res
	c.events.emit(Event{Kind: EventResults, TurnID: t.id, Query: query, Results: &results})
	c.mu.Unlock()

	summary := strings.TrimSpace(res.Summary)
	if summary == "" {
		summary = c.localize(ctx, c.templates.summary(res.Total(), query))
	}
	c.botSaid(ctx, t, summary, query, res.Total())
	return c.say(ctx, t, playback.Request{Clip: res.Audio, Text: summary})
}

// say enters Speaking and blocks until req settles. Empty requests are
// skipped.
func (c *Controller) say(ctx context.Context, t *turn, req playback.Request) error {
	if req.Empty() {
		return nil
	}
	if err := c.enter(t, PhaseSpeaking); err != nil {
		return err
	}
	req.Language = c.Session().Language

	sctx, span := observe.StartSpan(ctx, "conversation.speak")
	start := time.Now()
	err := c.player.Speak(sctx, req)
	c.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		return &TurnError{Stage: StagePlayback, Err: err}
	}
}

// ─── Messages and history ─────────────────────────────────────────────────────

func (c *Controller) userSaid(ctx context.Context, t *turn, text string) {
	if !c.publish(t, Message{Role: RoleUser, Text: text}) {
		return
	}
	c.record(ctx, history.Entry{Role: history.RoleUser, Text: text, Language: c.Session().Language})
}

func (c *Controller) botSaid(ctx context.Context, t *turn, text, query string, results int) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if !c.publish(t, Message{Role: RoleBot, Text: text}) {
		return
	}
	c.record(ctx, history.Entry{
		Role:     history.RoleBot,
		Text:     text,
		Language: c.Session().Language,
		Query:    query,
		Results:  results,
	})
}

func (c *Controller) publish(t *turn, m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != t {
		return false
	}
	c.events.emit(Event{Kind: EventMessage, TurnID: t.id, Message: m})
	return true
}

func (c *Controller) record(ctx context.Context, e history.Entry) {
	if c.deps.History == nil {
		return
	}
	e.SessionID = c.sessionID()
	if err := c.deps.History.Append(ctx, e); err != nil && ctx.Err() == nil {
		slog.Warn("conversation: append history", "session_id", e.SessionID, "err", err)
	}
}

// recent returns the session's recent user and bot lines as chat context,
// without the trailing entry for the utterance being interpreted.
func (c *Controller) recent(ctx context.Context, sessionID, current string) []chat.Message {
	if c.deps.History == nil {
		return nil
	}
	entries, err := c.deps.History.Recent(ctx, sessionID, c.tuning.HistoryLimit)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("conversation: read history", "session_id", sessionID, "err", err)
		}
		return nil
	}
	if n := len(entries); n > 0 && entries[n-1].Role == history.RoleUser && entries[n-1].Text == current {
		entries = entries[:n-1]
	}
	msgs := make([]chat.Message, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case history.RoleUser:
			msgs = append(msgs, chat.Message{Role: "user", Text: e.Text})
		case history.RoleBot:
			msgs = append(msgs, chat.Message{Role: "assistant", Text: e.Text})
		}
	}
	return msgs
}

func (c *Controller) localize(ctx context.Context, text string) string {
	return translate.Localize(ctx, c.deps.Translate, text, c.Session().Language)
}

func (c *Controller) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID
}
