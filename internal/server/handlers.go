package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"voicefront/internal/eventbus"
	"voicefront/internal/session"
	"voicefront/internal/skin"
	"voicefront/internal/transcript"
	logx "voicefront/pkg/logx"
)

var (
	ErrRateLimited  = errors.New("snapshot rate limit exceeded")
	ErrBodyTooLarge = errors.New("request body too large")
)

// Handler returns the API handler for the current config. It is what the
// running server mounts; tests drive it through httptest.
func (s *Service) Handler(ctx context.Context) http.Handler {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	return s.handler(ctx, cur)
}

func (s *Service) handler(ctx context.Context, cur Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/skin", s.handleSkin)
	mux.HandleFunc("GET /v1/transcript", s.handleTranscript)
	mux.HandleFunc("PUT /v1/transcript", s.handleSnapshot)
	mux.HandleFunc("GET /v1/overlay", s.handleOverlay)
	mux.HandleFunc("GET /v1/events", func(w http.ResponseWriter, r *http.Request) {
		s.handleEvents(ctx, cur.Heartbeat, w, r)
	})
	if cur.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}

	var h http.Handler = mux
	h = withAuth(h, cur.Token)
	h = withCORS(h, cur.AllowOrigins)
	return h
}

type skinBody struct {
	skin.Skin
	DwellMS int64 `json:"dwell_ms"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// hostError maps host errors to responses. A stopped session is 503.
func hostError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotStarted) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, err := s.host.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"session": err == nil,
	})
}

func (s *Service) handleSkin(w http.ResponseWriter, _ *http.Request) {
	sk := s.host.Skin()
	writeJSON(w, http.StatusOK, skinBody{Skin: sk, DwellMS: sk.Overlay.Dwell.Milliseconds()})
}

func (s *Service) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	v, err := s.host.View()
	if err != nil {
		hostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Service) handleOverlay(w http.ResponseWriter, _ *http.Request) {
	st, err := s.host.Overlay()
	if err != nil {
		hostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	lim := s.limiter
	maxBody := s.cfg.MaxBodyBytes
	log := s.log
	s.mu.Unlock()

	if !lim.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, ErrRateLimited)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, mbe.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msgs, err := transcript.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	v, err := s.host.Update(msgs)
	if err != nil {
		hostError(w, err)
		return
	}
	log.Debug("snapshot applied",
		logx.Int("messages", len(msgs)),
		logx.Bool("overlay", v.Overlay.Visible),
	)
	writeJSON(w, http.StatusOK, v)
}

// handleEvents streams bus events as server-sent events until the client
// goes away or the server stops.
func (s *Service) handleEvents(ctx context.Context, heartbeat time.Duration, w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	var types []string
	if q := strings.TrimSpace(r.URL.Query().Get("types")); q != "" {
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	events, unsub := s.bus.Subscribe(64, types...)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	fl.Flush()

	tick := time.NewTicker(heartbeat)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.Context().Done():
			return
		case <-tick.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			fl.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, e); err != nil {
				return
			}
			fl.Flush()
		}
	}
}

func writeEvent(w io.Writer, e eventbus.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, b)
	return err
}

func withAuth(next http.Handler, token string) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		// Bearer token or ?token= query (EventSource cannot set headers).
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			if tokenEqual(strings.TrimSpace(auth[7:]), token) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if tokenEqual(r.URL.Query().Get("token"), token) {
			next.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="voicefront"`)
	writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
}

func withCORS(next http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return next
	}
	allow := make(map[string]struct{}, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		}
		allow[o] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := allow[origin]; ok || wildcard {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
