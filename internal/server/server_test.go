package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicefront/internal/eventbus"
	"voicefront/internal/overlay"
	"voicefront/internal/overlay/overlaytest"
	"voicefront/internal/session"
	"voicefront/internal/skin"
	"voicefront/internal/transcript"
	logx "voicefront/pkg/logx"
)

type fixture struct {
	host *session.Host
	clk  *overlaytest.ManualClock
	bus  eventbus.Bus
	svc  *Service
	srv  *httptest.Server
}

func newFixture(t *testing.T, cfg Config, start bool) *fixture {
	t.Helper()
	sk, err := skin.Resolve("solo-leveling", nil)
	require.NoError(t, err)
	clk := overlaytest.NewManualClock()
	bus := eventbus.New()
	host, err := session.New(session.Config{Skin: sk}, logx.Nop(), bus, session.WithClock(clk))
	require.NoError(t, err)
	if start {
		_, err = host.Start(context.Background())
		require.NoError(t, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	svc := New(cfg, host, bus, logx.Nop())
	srv := httptest.NewServer(svc.Handler(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		host.Stop()
	})
	return &fixture{host: host, clk: clk, bus: bus, svc: svc, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string, hdr ...string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t, Config{}, true)

	resp := f.do(t, http.MethodPut, "/v1/transcript",
		`[{"id":"a","identity":"user","text":"open status"},{"id":"b","identity":"agent","message":{"text":"Status Window: Lv 3"}}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[session.View](t, resp)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "Status Window: Lv 3", view.Lines[1].Text)
	assert.True(t, view.Overlay.Visible)
	assert.Equal(t, "status_window", view.Overlay.Trigger)

	resp = f.do(t, http.MethodGet, "/v1/overlay", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[overlay.State](t, resp)
	assert.Equal(t, uint64(1), st.Generation)

	f.clk.Advance(overlay.DefaultDwell)
	resp = f.do(t, http.MethodGet, "/v1/transcript", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decode[session.View](t, resp)
	assert.False(t, view.Overlay.Visible)
	assert.Len(t, view.Lines, 2)
}

func TestSnapshotEnvelope(t *testing.T) {
	f := newFixture(t, Config{}, true)
	resp := f.do(t, http.MethodPut, "/v1/transcript", `{"messages":[{"identity":"agent","payload":"[SYSTEM] ok"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[session.View](t, resp)
	assert.Equal(t, "system", view.Overlay.Trigger)
}

func TestSnapshotErrors(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		f := newFixture(t, Config{}, true)
		resp := f.do(t, http.MethodPut, "/v1/transcript", `"nope"`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorBody](t, resp)
		assert.NotEmpty(t, body.Error)
	})
	t.Run("too large", func(t *testing.T) {
		f := newFixture(t, Config{MaxBodyBytes: 16}, true)
		resp := f.do(t, http.MethodPut, "/v1/transcript", `[{"text":"this body is longer than sixteen bytes"}]`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
	t.Run("no session", func(t *testing.T) {
		f := newFixture(t, Config{}, false)
		resp := f.do(t, http.MethodPut, "/v1/transcript", `[]`)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		resp = f.do(t, http.MethodGet, "/v1/overlay", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
	t.Run("rate limited", func(t *testing.T) {
		f := newFixture(t, Config{RatePerSec: 0.001, Burst: 1}, true)
		resp := f.do(t, http.MethodPut, "/v1/transcript", `[]`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = f.do(t, http.MethodPut, "/v1/transcript", `[]`)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	})
}

func TestSkinEndpoint(t *testing.T) {
	f := newFixture(t, Config{}, false)
	resp := f.do(t, http.MethodGet, "/v1/skin", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "solo-leveling", body["id"])
	assert.EqualValues(t, 4000, body["dwell_ms"])
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{Token: "s3cret"}, true)

	resp := f.do(t, http.MethodGet, "/v1/overlay", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	resp = f.do(t, http.MethodGet, "/v1/overlay", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/overlay?token=s3cret", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, bad := range []string{"Bearer s3cre", "Bearer s3cret!", "Bearer S3CRET", "Basic s3cret"} {
		resp = f.do(t, http.MethodGet, "/v1/overlay", "", "Authorization", bad)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, bad)
	}
	resp = f.do(t, http.MethodGet, "/v1/overlay?token=", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Config{AllowOrigins: []string{"http://localhost:3000"}}, true)
	resp := f.do(t, http.MethodOptions, "/v1/transcript", "", "Origin", "http://localhost:3000")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = f.do(t, http.MethodGet, "/v1/skin", "", "Origin", "http://evil.example")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, Config{Heartbeat: time.Hour}, true)

	resp := f.do(t, http.MethodGet, "/v1/events?types=overlay.shown,overlay.cleared", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	_, err = f.host.Update(nil)
	require.NoError(t, err)
	_, err = f.host.Update([]transcript.Message{{"identity": "agent", "text": "HP: 10/10"}})
	require.NoError(t, err)
	f.clk.Advance(overlay.DefaultDwell)

	var got []string
	for len(got) < 2 {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		if typ, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
			got = append(got, typ)
		}
	}
	assert.Equal(t, []string{eventbus.TypeOverlayShown, eventbus.TypeOverlayCleared}, got)
}

func TestServiceLifecycle(t *testing.T) {
	sk, err := skin.Resolve("", nil)
	require.NoError(t, err)
	host, err := session.New(session.Config{Skin: sk}, logx.Nop(), nil)
	require.NoError(t, err)

	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, host, eventbus.New(), logx.Nop())
	ctx := context.Background()
	svc.Start(ctx)
	svc.Start(ctx)
	require.Eventually(t, func() bool { return svc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + svc.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	svc.Reconfigure(stopCtx, Config{Enabled: false})
	assert.Nil(t, svc.Supervisor())
	assert.Empty(t, svc.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:8787": true,
		"localhost:80":   true,
		"[::1]:9":        true,
		":8787":          false,
		"0.0.0.0:8787":   false,
		"10.0.0.2:80":    false,
		"nonsense":       false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestNeedsRestart(t *testing.T) {
	base := Config{Enabled: true, Addr: "127.0.0.1:1"}
	if needsRestart(base, Config{Enabled: true, Addr: "127.0.0.1:1", RatePerSec: 5, MaxBodyBytes: 10}) {
		t.Fatal("ingest limits should apply without a restart")
	}
	if !needsRestart(base, Config{Enabled: true, Addr: "127.0.0.1:2"}) {
		t.Fatal("addr change needs restart")
	}
	if !needsRestart(base, Config{Enabled: true, Addr: "127.0.0.1:1", Token: "x"}) {
		t.Fatal("token change needs restart")
	}
}
