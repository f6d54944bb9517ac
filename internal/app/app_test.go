package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicefront/internal/eventbus"
	"voicefront/internal/overlay/overlaytest"
	"voicefront/internal/session"
	logx "voicefront/pkg/logx"
)

type fakeNotifier struct {
	mu     sync.Mutex
	states []string
}

func (f *fakeNotifier) note(s string) bool {
	f.mu.Lock()
	f.states = append(f.states, s)
	f.mu.Unlock()
	return true
}

func (f *fakeNotifier) ready(logx.Logger) bool     { return f.note("ready") }
func (f *fakeNotifier) reloading(logx.Logger) bool { return f.note("reloading") }
func (f *fakeNotifier) stopping(logx.Logger) bool  { return f.note("stopping") }
func (f *fakeNotifier) watchdog(logx.Logger)       { f.note("watchdog") }
func (f *fakeNotifier) watchdogInterval(logx.Logger) time.Duration {
	return 0
}

func (f *fakeNotifier) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.states...)
}

const appYAML = `
logging:
  level: error
  console: false
  file:
    enabled: false
    path: ""
server:
  enabled: true
  addr: 127.0.0.1:0
session:
  skin: solo-leveling
`

func TestAppLifecycleAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(appYAML), 0o644))

	sd := &fakeNotifier{}
	clk := overlaytest.NewManualClock()
	a, err := NewApp(path, WithSessionOptions(session.WithClock(clk)), withNotifier(sd))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	require.Eventually(t, func() bool { return a.Addr() != "" }, 3*time.Second, 10*time.Millisecond)

	shown, unsub := a.Bus().Subscribe(4, eventbus.TypeOverlayShown)
	defer unsub()

	req, err := http.NewRequest(http.MethodPut, "http://"+a.Addr()+"/v1/transcript",
		strings.NewReader(`[{"identity":"agent","text":"[SYSTEM] A gate has opened"}]`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ov, err := a.Host().Overlay()
	require.NoError(t, err)
	assert.True(t, ov.Visible)
	assert.Equal(t, "system", ov.Trigger)
	select {
	case e := <-shown:
		assert.Equal(t, eventbus.TypeOverlayShown, e.Type)
	case <-time.After(time.Second):
		t.Fatal("overlay.shown not published on the app bus")
	}

	// Hot reload swaps the active skin on the live session.
	// The watcher starts asynchronously; write once after it is up so the
	// reload debounce can settle.
	time.Sleep(200 * time.Millisecond)
	next := strings.Replace(appYAML, "skin: solo-leveling", "skin: zepto", 1)
	require.NoError(t, os.WriteFile(path, []byte(next), 0o644))
	require.Eventually(t, func() bool {
		return a.Host().Skin().ID == "zepto"
	}, 5*time.Second, 50*time.Millisecond)

	// A broken reload is rejected and the live skin stays.
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(next, "skin: zepto", "skin: nope", 1)), 0o644))
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, "zepto", a.Host().Skin().ID)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopAppStop))
	assert.False(t, a.Host().Running())
	assert.Zero(t, clk.Pending(), "stop releases the overlay timer")
	assert.NoError(t, a.Err())

	states := sd.seen()
	require.NotEmpty(t, states)
	assert.Equal(t, "ready", states[0])
	assert.Contains(t, states, "reloading")
	assert.Equal(t, "stopping", states[len(states)-1])
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"session":{"skin":"nope"}}`), 0o644))
	_, err := NewApp(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.skin")
}
