package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/auth"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/config"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/logging"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/controller"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/plugin"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/session"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

type pluginCall struct {
	name   string
	action string
	data   map[string]any
}

type fakeChannel struct {
	id int

	mu       sync.Mutex
	calls    []string
	cue      session.CueRequest
	set      [2]string
	exec     pluginCall
	err      error
	adjacent *catalog.Item
	plugins  []plugin.Manifest
	stat     session.Stat
	health   controller.Health
}

var _ Channel = (*fakeChannel)(nil)

func (f *fakeChannel) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeChannel) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeChannel) ChannelID() int { return f.id }

func (f *fakeChannel) Cue(_ context.Context, req session.CueRequest) error {
	f.mu.Lock()
	f.cue = req
	f.mu.Unlock()
	return f.record("cue")
}

func (f *fakeChannel) CueForward(context.Context) (*catalog.Item, error) {
	return f.adjacent, f.record("cue_forward")
}

func (f *fakeChannel) CueBackward(context.Context) (*catalog.Item, error) {
	return f.adjacent, f.record("cue_backward")
}

func (f *fakeChannel) Take(context.Context) error    { return f.record("take") }
func (f *fakeChannel) Retake(context.Context) error  { return f.record("retake") }
func (f *fakeChannel) Freeze(context.Context) error  { return f.record("freeze") }
func (f *fakeChannel) Abort(context.Context) error   { return f.record("abort") }
func (f *fakeChannel) Clear(context.Context) error   { return f.record("clear") }
func (f *fakeChannel) Recover(context.Context) error { return f.record("recover") }

func (f *fakeChannel) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	f.set = [2]string{key, value}
	f.mu.Unlock()
	return f.record("set")
}

func (f *fakeChannel) Stat() session.Stat            { return f.stat }
func (f *fakeChannel) PluginList() []plugin.Manifest { return f.plugins }
func (f *fakeChannel) Health() controller.Health     { return f.health }

func (f *fakeChannel) PluginExec(_ context.Context, name, action string, data map[string]any) error {
	f.mu.Lock()
	f.exec = pluginCall{name: name, action: action, data: data}
	f.mu.Unlock()
	return f.record("plugin_exec")
}

type fakeAsRun struct {
	filter asrun.Filter
	result *asrun.ListResult
	err    error
}

func (f *fakeAsRun) Open(context.Context, int, int64, time.Time) (*asrun.Record, error) {
	return nil, nil //nolint:nilnil // Unused by the API
}
func (f *fakeAsRun) Close(context.Context, int64, time.Time) error { return nil }
func (f *fakeAsRun) Latest(context.Context, int) (*asrun.Record, error) {
	return nil, asrun.ErrNotFound
}

func (f *fakeAsRun) List(_ context.Context, filter asrun.Filter) (*asrun.ListResult, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &asrun.ListResult{Records: []asrun.Record{}, Limit: 50}, nil
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testDeps(channels ...Channel) Deps {
	return Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   testLogger(),
		Channels: channels,
		AsRun:    &fakeAsRun{},
		Version:  "test",
	}
}

// testServer creates a Server without auth around one fake channel.
func testServer(t *testing.T) (*Server, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{id: 1}
	srv, err := New(testDeps(ch))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, ch
}

// securedServer creates a Server that requires bearer tokens.
func securedServer(t *testing.T) (*Server, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{id: 1}
	deps := testDeps(ch)
	deps.Security = config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, ch
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken("test", role, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func do(t *testing.T, h http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return body
}
