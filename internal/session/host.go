// Package session binds one overlay engine to the lifetime of a voice session.
//
// The host is the glue between the external session control (start/stop),
// the snapshot stream, and the consumers of derived state: it renders display
// lines, feeds the engine, and publishes every change on the event bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"voicefront/internal/eventbus"
	"voicefront/internal/overlay"
	"voicefront/internal/skin"
	"voicefront/internal/transcript"
	logx "voicefront/pkg/logx"
)

var ErrNotStarted = errors.New("session not started")

// Config selects the skin whose vocabulary drives the overlay.
type Config struct {
	Skin          skin.Skin
	LocalIdentity string
}

// View is the derived state handed to the rendering layer.
type View struct {
	SessionID string                   `json:"session_id"`
	Skin      string                   `json:"skin"`
	Messages  int                      `json:"messages"`
	Lines     []transcript.DisplayLine `json:"lines"`
	Overlay   overlay.State            `json:"overlay"`
	UpdatedAt time.Time                `json:"updated_at,omitzero"`
}

// OverlayEvent is the Data of overlay.* events.
type OverlayEvent struct {
	SessionID string        `json:"session_id"`
	Overlay   overlay.State `json:"overlay"`
}

// TranscriptEvent is the Data of transcript.updated events.
type TranscriptEvent struct {
	SessionID string                  `json:"session_id"`
	Messages  int                     `json:"messages"`
	Visible   int                     `json:"visible"`
	Last      *transcript.DisplayLine `json:"last,omitempty"`
}

type Option func(*Host)

// WithClock replaces the engine clock (tests).
func WithClock(c overlay.Clock) Option { return func(h *Host) { h.clock = c } }

type Host struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	clock overlay.Clock

	cfg  Config
	ocfg overlay.Config

	id        string
	engine    *overlay.Engine
	lines     []transcript.DisplayLine
	count     int
	updatedAt time.Time
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) (*Host, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	ocfg, err := overlayConfig(cfg)
	if err != nil {
		return nil, err
	}
	h := &Host{log: log, bus: bus, clock: overlay.RealClock(), cfg: cfg, ocfg: ocfg}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

func overlayConfig(cfg Config) (overlay.Config, error) {
	local := cfg.LocalIdentity
	if local == "" {
		local = transcript.DefaultLocalIdentity
	}
	return cfg.Skin.OverlayConfig(local)
}

// Start opens a session. It is idempotent and returns the active session id.
func (h *Host) Start(ctx context.Context) (string, error) {
	if ctx != nil && ctx.Err() != nil {
		return "", ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine != nil {
		return h.id, nil
	}

	id, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	h.id = id
	h.lines = nil
	h.count = 0
	h.updatedAt = time.Time{}
	h.engine = overlay.New(h.ocfg,
		h.log.With(logx.String("session", id)),
		overlay.WithClock(h.clock),
		overlay.WithOnChange(func(st overlay.State) { h.publishOverlay(id, st) }),
	)

	h.log.Info("session started", logx.String("session", id), logx.String("skin", h.cfg.Skin.ID))
	h.bus.Publish(eventbus.Event{Type: eventbus.TypeSessionStarted, Data: map[string]string{"session_id": id, "skin": h.cfg.Skin.ID}})
	return id, nil
}

// Stop ends the session and releases the pending overlay expiry.
func (h *Host) Stop() {
	h.mu.Lock()
	eng := h.engine
	id := h.id
	h.engine = nil
	h.id = ""
	h.lines = nil
	h.count = 0
	h.updatedAt = time.Time{}
	h.mu.Unlock()

	if eng == nil {
		return
	}
	eng.Close()
	h.log.Info("session stopped", logx.String("session", id))
	h.bus.Publish(eventbus.Event{Type: eventbus.TypeSessionStopped, Data: map[string]string{"session_id": id}})
}

func (h *Host) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine != nil
}

// Apply swaps skin and identity settings on the live session.
func (h *Host) Apply(cfg Config) error {
	ocfg, err := overlayConfig(cfg)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.cfg = cfg
	h.ocfg = ocfg
	eng := h.engine
	h.mu.Unlock()

	if eng != nil {
		eng.Reconfigure(ocfg)
	}
	return nil
}

// Skin returns the active skin.
func (h *Host) Skin() skin.Skin {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.Skin
}

// Update processes a full snapshot of the transcript so far.
func (h *Host) Update(msgs []transcript.Message) (View, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil {
		return View{}, ErrNotStarted
	}

	// Position keys assume append-only input.
	if len(msgs) < h.count {
		h.log.Debug("snapshot shrank; positional keys may churn",
			logx.Int("prev", h.count),
			logx.Int("next", len(msgs)),
		)
	}

	local := h.ocfg.LocalIdentity
	h.lines = transcript.Render(msgs, local)
	h.count = len(msgs)
	h.updatedAt = time.Now()

	h.engine.OnMessagesUpdated(msgs)

	vis := transcript.Visible(h.lines)
	ev := TranscriptEvent{SessionID: h.id, Messages: h.count, Visible: len(vis)}
	if n := len(vis); n > 0 {
		last := vis[n-1]
		ev.Last = &last
	}
	h.bus.Publish(eventbus.Event{Type: eventbus.TypeTranscriptUpdated, Data: ev})

	return h.viewLocked(vis), nil
}

// View returns the current derived state. Lines without text are omitted.
func (h *Host) View() (View, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil {
		return View{}, ErrNotStarted
	}
	return h.viewLocked(transcript.Visible(h.lines)), nil
}

// Overlay returns the current overlay state.
func (h *Host) Overlay() (overlay.State, error) {
	h.mu.Lock()
	eng := h.engine
	h.mu.Unlock()
	if eng == nil {
		return overlay.State{}, ErrNotStarted
	}
	return eng.State(), nil
}

func (h *Host) viewLocked(lines []transcript.DisplayLine) View {
	return View{
		SessionID: h.id,
		Skin:      h.cfg.Skin.ID,
		Messages:  h.count,
		Lines:     lines,
		Overlay:   h.engine.State(),
		UpdatedAt: h.updatedAt,
	}
}

func (h *Host) publishOverlay(id string, st overlay.State) {
	typ := eventbus.TypeOverlayCleared
	if st.Visible {
		typ = eventbus.TypeOverlayShown
	}
	h.bus.Publish(eventbus.Event{Type: typ, Data: OverlayEvent{SessionID: id, Overlay: st}})
}
