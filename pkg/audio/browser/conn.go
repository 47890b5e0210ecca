// Package browser adapts a browser tab connected over WebSocket to the
// [audio.Microphone], [audio.Sink] and [audio.Synthesizer] capabilities.
//
// The tab owns the real devices. The server asks it to open the microphone
// (mic_open), play a clip on its single audio element (play) or speak with
// the Web Speech API (speak_local), and the tab answers with a message
// carrying the same id. Microphone audio arrives as binary messages, either
// raw PCM16LE at the rate announced in hello or Opus packets.
//
// User commands (activate, stop, typed text, language and filter changes)
// are surfaced on [Conn.Commands] for the server to act on.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicesphere/pkg/audio"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultHelloTimeout = 10 * time.Second
	commandBuffer       = 32
	frameBuffer         = 256
)

// ErrMicrophoneBusy is returned by [Conn.Open] while a stream is still open.
var ErrMicrophoneBusy = errors.New("browser: microphone already open")

// Options configures [Accept].
type Options struct {
	// OriginPatterns lists host patterns allowed to connect besides the
	// page's own origin.
	OriginPatterns []string

	// WriteTimeout bounds a single outgoing message.
	WriteTimeout time.Duration
}

// Conn is one connected browser tab. It implements [audio.Microphone],
// [audio.Sink] and [audio.Synthesizer]. All methods are safe for concurrent
// use.
type Conn struct {
	ws           *websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration

	seq      atomic.Uint64
	commands chan Message
	hello    chan struct{}
	done     chan struct{}

	mu        sync.Mutex
	format    audio.Format
	codec     string
	voices    []Voice
	helloSeen bool
	micBusy   bool
	mic       *micStream
	pending   map[string]pendingReply
	err       error
}

type pendingReply struct {
	kind string // TypeMicOpen, TypePlay or TypeSpeakLocal
	ch   chan Message
}

var (
	_ audio.Microphone  = (*Conn)(nil)
	_ audio.Sink        = (*Conn)(nil)
	_ audio.Synthesizer = (*Conn)(nil)
)

// Accept upgrades the request to a WebSocket and starts reading from it.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*Conn, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: opts.OriginPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: accept: %w", err)
	}
	// Opus packets and clips are small, but base64 play payloads are not.
	ws.SetReadLimit(4 << 20)
	return newConn(ws, opts), nil
}

func newConn(ws *websocket.Conn, opts Options) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:           ws,
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: opts.WriteTimeout,
		commands:     make(chan Message, commandBuffer),
		hello:        make(chan struct{}),
		done:         make(chan struct{}),
		format:       audio.SpeechFormat,
		codec:        CodecPCM,
		pending:      make(map[string]pendingReply),
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}
	go c.readLoop()
	return c
}

// WaitHello blocks until the tab has sent hello, and returns it. Frames and
// commands received before hello are still processed.
func (c *Conn) WaitHello(ctx context.Context) (Message, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultHelloTimeout)
	defer cancel()
	select {
	case <-c.hello:
		c.mu.Lock()
		defer c.mu.Unlock()
		return Message{Type: TypeHello, Codec: c.codec, SampleRate: c.format.SampleRate, Channels: c.format.Channels, Voices: c.voices}, nil
	case <-c.done:
		return Message{}, c.closedErr()
	case <-ctx.Done():
		return Message{}, fmt.Errorf("browser: waiting for hello: %w", ctx.Err())
	}
}

// Commands returns the user commands sent by the tab. The channel is closed
// when the connection ends.
func (c *Conn) Commands() <-chan Message { return c.commands }

// Done is closed when the connection has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, or nil while it is open or after a
// normal close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection and waits for the read loop to stop. It is safe
// to call more than once.
func (c *Conn) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	err := c.ws.Close(websocket.StatusNormalClosure, "")
	c.cancel()
	<-c.done
	if err != nil {
		slog.Debug("browser: close handshake", "err", err)
	}
	return nil
}

// Send writes m to the tab.
func (c *Conn) Send(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("browser: marshal %s: %w", m.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("browser: write %s: %w", m.Type, err)
	}
	return nil
}

// notify sends m on the connection's own context. Failures are logged.
func (c *Conn) notify(m Message) {
	if err := c.Send(c.ctx, m); err != nil && c.ctx.Err() == nil {
		slog.Debug("browser: notify failed", "type", m.Type, "err", err)
	}
}

// request sends m with a fresh id and waits for the tab's reply.
func (c *Conn) request(ctx context.Context, m Message) (Message, error) {
	m.ID = strconv.FormatUint(c.seq.Add(1), 10)
	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.err != nil || c.ctx.Err() != nil {
		c.mu.Unlock()
		return Message{}, c.closedErr()
	}
	c.pending[m.ID] = pendingReply{kind: m.Type, ch: ch}
	c.mu.Unlock()

	if err := c.Send(ctx, m); err != nil {
		c.forget(m.ID)
		return Message{}, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return Message{}, c.closedErr()
		}
		return reply, nil
	case <-ctx.Done():
		c.forget(m.ID)
		return Message{ID: m.ID}, ctx.Err()
	case <-c.done:
		return Message{}, c.closedErr()
	}
}

func (c *Conn) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// settle answers every pending request of kind with reply.
func (c *Conn) settle(kind string, reply Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range c.pending {
		if p.kind == kind {
			delete(c.pending, id)
			reply.ID = id
			p.ch <- reply
		}
	}
}

func (c *Conn) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return fmt.Errorf("%w: %w", audio.ErrStreamClosed, c.err)
	}
	return audio.ErrStreamClosed
}

// ─── read loop ───────────────────────────────────────────────────────────────

func (c *Conn) readLoop() {
	defer c.shutdown()

	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}

		if typ == websocket.MessageBinary {
			c.handleAudio(data)
			continue
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("browser: malformed message", "err", err)
			continue
		}
		c.handleMessage(m)
	}
}

func (c *Conn) handleMessage(m Message) {
	switch {
	case m.Type == TypeHello:
		c.mu.Lock()
		if m.SampleRate > 0 {
			c.format.SampleRate = m.SampleRate
		}
		if m.Channels > 0 {
			c.format.Channels = m.Channels
		}
		if m.Codec != "" {
			c.codec = m.Codec
		}
		if m.Voices != nil {
			c.voices = m.Voices
		}
		first := !c.helloSeen
		c.helloSeen = true
		c.mu.Unlock()
		if first {
			close(c.hello)
		}
		// Language in hello is a session setting; pass it on.
		if m.Language != "" {
			c.command(Message{Type: TypeLanguage, Language: m.Language})
		}

	case m.Type == TypeVoices:
		c.mu.Lock()
		c.voices = m.Voices
		c.mu.Unlock()

	case m.isReply():
		c.mu.Lock()
		p, ok := c.pending[m.ID]
		delete(c.pending, m.ID)
		c.mu.Unlock()
		if ok {
			if m.Type == TypeMicOpened && p.kind == TypeMicOpen {
				if err := c.installMic(m); err != nil {
					m.Error = err.Error()
				}
			}
			p.ch <- m
		} else {
			slog.Debug("browser: reply without request", "type", m.Type, "id", m.ID)
		}

	case m.Type == TypeActivate, m.Type == TypeStop, m.Type == TypeEndSpeech, m.Type == TypeText,
		m.Type == TypeLanguage, m.Type == TypeFilters, m.Type == TypeLocation:
		c.command(m)

	default:
		slog.Debug("browser: ignoring message", "type", m.Type)
	}
}

func (c *Conn) command(m Message) {
	select {
	case c.commands <- m:
	case <-c.ctx.Done():
	}
}

func (c *Conn) shutdown() {
	c.cancel()

	c.mu.Lock()
	mic := c.mic
	pending := c.pending
	c.pending = make(map[string]pendingReply)
	c.mu.Unlock()

	if mic != nil {
		mic.closeFrames()
	}
	for _, p := range pending {
		close(p.ch)
	}
	close(c.commands)
	close(c.done)
}
