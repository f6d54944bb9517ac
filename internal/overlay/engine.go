package overlay

import (
	"sync"
	"time"

	"voicefront/internal/transcript"
	logx "voicefront/pkg/logx"
)

// DefaultDwell is how long an overlay stays up without a re-arm.
const DefaultDwell = 4 * time.Second

// Config is the engine's construction surface.
type Config struct {
	Triggers []Trigger
	// Dwell <= 0 means DefaultDwell.
	Dwell time.Duration
	// LocalIdentity is the sentinel identity of the local user ("" means transcript.DefaultLocalIdentity).
	LocalIdentity string
}

// State is the overlay as seen by the rendering layer.
//
// Generation only ever grows. It survives expiry so a repeated text still
// restarts the overlay's presentation.
type State struct {
	Visible    bool      `json:"visible"`
	Text       string    `json:"text,omitempty"`
	Generation uint64    `json:"generation"`
	Trigger    string    `json:"trigger,omitempty"`
	ShownAt    time.Time `json:"shown_at,omitzero"`
	Deadline   time.Time `json:"deadline,omitzero"`
}

type Option func(*Engine)

// WithClock replaces the real clock (tests).
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithOnChange installs a callback for every Idle/Showing transition.
//
// The callback runs inside the engine's serialization, in transition order.
// It must not call back into the Engine.
func WithOnChange(fn func(State)) Option { return func(e *Engine) { e.onChange = fn } }

// Engine owns the single-slot overlay and its expiry timer.
//
// Snapshot updates and expiry callbacks are serialized by one mutex. Every
// armed timer carries a sequence number; an expiry whose number is no longer
// current is ignored, so a callback that raced with Stop cannot clear a newer
// overlay.
type Engine struct {
	mu sync.Mutex

	log      logx.Logger
	clock    Clock
	onChange func(State)

	classifier Classifier
	dwell      time.Duration
	local      string

	state  State
	timer  Timer
	seq    uint64
	closed bool
}

func New(cfg Config, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{log: log, clock: RealClock()}
	for _, o := range opts {
		o(e)
	}
	if e.clock == nil {
		e.clock = RealClock()
	}
	e.applyLocked(cfg)
	return e
}

func (e *Engine) applyLocked(cfg Config) {
	if cfg.Dwell <= 0 {
		cfg.Dwell = DefaultDwell
	}
	if cfg.LocalIdentity == "" {
		cfg.LocalIdentity = transcript.DefaultLocalIdentity
	}
	e.classifier = NewClassifier(cfg.Triggers...)
	e.dwell = cfg.Dwell
	e.local = cfg.LocalIdentity
}

// Reconfigure swaps triggers, dwell and local identity.
// A pending expiry keeps its deadline; the new dwell applies from the next arming.
func (e *Engine) Reconfigure(cfg Config) {
	e.mu.Lock()
	e.applyLocked(cfg)
	n := e.classifier.Len()
	d := e.dwell
	e.mu.Unlock()
	e.log.Debug("overlay reconfigured", logx.Int("triggers", n), logx.Duration("dwell", d))
}

// OnMessagesUpdated evaluates the tail of a full snapshot and reports whether
// it (re)armed the overlay.
func (e *Engine) OnMessagesUpdated(all []transcript.Message) bool {
	if len(all) == 0 {
		return false
	}
	last := all[len(all)-1]

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	if last.IsFrom(e.local) {
		return false
	}
	text := transcript.ExtractText(last)
	if text == "" {
		return false
	}
	name, ok := e.classifier.Classify(text)
	if !ok {
		return false
	}

	// Cancel before arming: never more than one pending expiry.
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.seq++
	seq := e.seq

	now := e.clock.Now()
	e.state = State{
		Visible:    true,
		Text:       text,
		Generation: e.state.Generation + 1,
		Trigger:    name,
		ShownAt:    now,
		Deadline:   now.Add(e.dwell),
	}
	e.timer = e.clock.AfterFunc(e.dwell, func() { e.expire(seq) })

	e.log.Debug("overlay shown",
		logx.Uint64("generation", e.state.Generation),
		logx.String("trigger", name),
		logx.Duration("dwell", e.dwell),
	)
	e.emitLocked()
	return true
}

func (e *Engine) expire(seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || seq != e.seq || !e.state.Visible {
		return
	}
	e.timer = nil
	e.state = State{Generation: e.state.Generation}
	e.log.Debug("overlay expired", logx.Uint64("generation", e.state.Generation))
	e.emitLocked()
}

func (e *Engine) emitLocked() {
	if e.onChange != nil {
		e.onChange(e.state)
	}
}

// State returns a copy of the current overlay.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Close releases the pending expiry and makes the engine inert.
// No change is reported for the overlay dropped here.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.seq++
	e.state = State{Generation: e.state.Generation}
}
