package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/auth"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/metrics"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/controller"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/plugin"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/session"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ─── Construction ──────────────────────────────────────────────────

func TestNewValidation(t *testing.T) {
	deps := testDeps()
	deps.Logger = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without logger should fail")
	}

	deps = testDeps()
	deps.AsRun = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without as-run repository should fail")
	}

	if _, err := New(testDeps(&fakeChannel{id: 1}, &fakeChannel{id: 1})); err == nil {
		t.Error("New() with duplicate channels should fail")
	}
}

// ─── Health and middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, ch := testServer(t)
	ch.health = controller.Health{Connected: true}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode(t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
	channels, ok := resp["channels"].([]any)
	if !ok || len(channels) != 1 {
		t.Fatalf("channels = %v", resp["channels"])
	}
	if first := channels[0].(map[string]any); first["connected"] != true || first["id_channel"] != float64(1) {
		t.Errorf("channel health = %v", first)
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := serve(router, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/channels/1/take", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(srv.buildRouter(), req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Commands ──────────────────────────────────────────────────────

func TestCommandCue(t *testing.T) {
	srv, ch := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/channels/1/cue", `{"id_item": 42, "play": true}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	body := decode(t, w)
	if body["response"] != float64(200) || body["message"] != "Playing item ID:42" || body["id_item"] != float64(42) {
		t.Errorf("body = %v", body)
	}
	if ch.cue.ItemID != 42 || !ch.cue.Play {
		t.Errorf("cue request = %+v", ch.cue)
	}
}

func TestCommandQueryArguments(t *testing.T) {
	srv, ch := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/channels/1/cue?id_item=7", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if ch.cue.ItemID != 7 || ch.cue.Play {
		t.Errorf("cue request = %+v", ch.cue)
	}
	if msg := decode(t, w)["message"]; msg != "Cued item ID:7" {
		t.Errorf("message = %v", msg)
	}
}

func TestCommandErrorResponse(t *testing.T) {
	srv, ch := testServer(t)
	ch.err = fmt.Errorf("%w: no item specified", session.ErrMissingArgument)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/channels/1/cue", `{}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decode(t, w)
	if body["response"] != float64(400) || !strings.Contains(body["message"].(string), "missing argument") {
		t.Errorf("body = %v", body)
	}
}

func TestCommandRouting(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown method", "/api/v1/channels/1/dance", "", http.StatusNotImplemented},
		{"unknown channel", "/api/v1/channels/9/take", "", http.StatusNotFound},
		{"invalid channel", "/api/v1/channels/one/take", "", http.StatusBadRequest},
		{"invalid JSON", "/api/v1/channels/1/cue", "{not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, router, http.MethodPost, tt.path, tt.body, ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCommandCueForwardNothingCued(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/channels/1/cue_forward", "", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("204 must have no body, got %q", w.Body)
	}
}

func TestCommandStat(t *testing.T) {
	srv, ch := testServer(t)
	current := int64(101)
	ch.stat = session.Stat{ChannelID: 1, FPS: 25, Position: 12.5, CurrentItem: &current, CueState: controller.CueIdle}

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/channels/1/stat", "", "")
	body := decode(t, w)
	if body["response"] != float64(200) || body["position"] != 12.5 || body["current_item"] != float64(101) {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["cued_item"]; !ok {
		t.Error("stat should carry cued_item even when null")
	}
}

func TestCommandSet(t *testing.T) {
	srv, ch := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/channels/1/set", `{"key": "loop", "value": true}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if ch.set != [2]string{"loop", "true"} {
		t.Errorf("set = %v", ch.set)
	}
}

func TestCommandPlugins(t *testing.T) {
	srv, ch := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/channels/1/plugin_list", "", "")
	if plugins, ok := decode(t, w)["plugins"].([]any); !ok || len(plugins) != 0 {
		t.Errorf("plugins = %s, want empty list", w.Body)
	}

	ch.plugins = []plugin.Manifest{{Name: "lower", Title: "Lower third", Kind: "cg"}}
	w = do(t, router, http.MethodPost, "/api/v1/channels/1/plugin_list", "", "")
	plugins := decode(t, w)["plugins"].([]any)
	if len(plugins) != 1 || plugins[0].(map[string]any)["name"] != "lower" {
		t.Errorf("plugins = %v", plugins)
	}

	w = do(t, router, http.MethodPost, "/api/v1/channels/1/plugin_exec",
		`{"name": "lower", "action": "show", "data": {"text": "Breaking"}}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("plugin_exec status = %d, body %s", w.Code, w.Body)
	}
	if ch.exec.name != "lower" || ch.exec.action != "show" || ch.exec.data["text"] != "Breaking" {
		t.Errorf("exec = %+v", ch.exec)
	}

	ch.err = plugin.ErrCommandFailed
	w = do(t, router, http.MethodPost, "/api/v1/channels/1/plugin_exec", `{"name": "lower", "action": "show"}`, "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("failed plugin status = %d, want 500", w.Code)
	}
}

func TestChannelRouter(t *testing.T) {
	srv, ch := testServer(t)
	router := srv.buildChannelRouter(ch)

	w := do(t, router, http.MethodPost, "/take", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if calls := ch.called(); len(calls) != 1 || calls[0] != "take" {
		t.Errorf("calls = %v", calls)
	}
	if w := do(t, router, http.MethodPost, "/dance", "", ""); w.Code != http.StatusNotImplemented {
		t.Errorf("unknown method status = %d, want 501", w.Code)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestAuthRequired(t *testing.T) {
	srv, ch := securedServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name   string
		path   string
		bearer string
		want   int
	}{
		{"health is open", "/api/v1/health", "", http.StatusOK},
		{"no token", "/api/v1/channels/1/stat", "", http.StatusUnauthorized},
		{"garbage token", "/api/v1/channels/1/stat", "garbage", http.StatusUnauthorized},
		{"viewer reads", "/api/v1/channels/1/stat", token(t, auth.RoleViewer), http.StatusOK},
		{"viewer cannot take", "/api/v1/channels/1/take", token(t, auth.RoleViewer), http.StatusForbidden},
		{"operator takes", "/api/v1/channels/1/take", token(t, auth.RoleOperator), http.StatusOK},
		{"operator cannot recover", "/api/v1/channels/1/recover", token(t, auth.RoleOperator), http.StatusForbidden},
		{"admin recovers", "/api/v1/channels/1/recover", token(t, auth.RoleAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if strings.HasSuffix(tt.path, "/health") {
				method = http.MethodGet
			}
			if w := do(t, router, method, tt.path, "", tt.bearer); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	if calls := ch.called(); len(calls) != 2 || calls[0] != "take" || calls[1] != "recover" {
		t.Errorf("calls = %v, want only the permitted take and recover", calls)
	}
}

func TestWSTicketSingleUse(t *testing.T) {
	srv, _ := securedServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/auth/ws-ticket", "", token(t, auth.RoleViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	ticket, ok := decode(t, w)["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, valid := srv.tickets.consume(ticket)
	if !valid {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.subject != "test" || entry.role != auth.RoleViewer {
		t.Errorf("ticket entry = %+v", entry)
	}
	if _, valid := srv.tickets.consume(ticket); valid {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicketExpiry(t *testing.T) {
	store := newTicketStore()
	ticket := store.issue("test", auth.RoleViewer)
	store.mu.Lock()
	entry := store.tickets[ticket]
	entry.expiresAt = time.Now().Add(-time.Second)
	store.tickets[ticket] = entry
	store.mu.Unlock()

	if _, valid := store.consume(ticket); valid {
		t.Error("expired ticket should not be valid")
	}

	stale := store.issue("test", auth.RoleViewer)
	store.mu.Lock()
	entry = store.tickets[stale]
	entry.expiresAt = time.Now().Add(-time.Second)
	store.tickets[stale] = entry
	store.mu.Unlock()
	store.clean()
	if len(store.tickets) != 0 {
		t.Errorf("clean left %d tickets", len(store.tickets))
	}
}

// ─── As-run ────────────────────────────────────────────────────────

func TestListAsRun(t *testing.T) {
	srv, _ := testServer(t)
	repo := srv.asrun.(*fakeAsRun)
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	repo.result = &asrun.ListResult{
		Records: []asrun.Record{{ID: 3, UUID: "u-3", ChannelID: 1, ItemID: 42, Start: start}},
		Total:   1,
		Limit:   10,
	}

	w := do(t, srv.buildRouter(), http.MethodGet,
		"/api/v1/asrun?id_channel=1&limit=10&offset=5&from=2026-03-01T00:00:00Z", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if f := repo.filter; f.ChannelID != 1 || f.Limit != 10 || f.Offset != 5 || !f.From.Equal(start.Add(-6*time.Hour)) || !f.To.IsZero() {
		t.Errorf("filter = %+v", f)
	}
	records, ok := decode(t, w)["records"].([]any)
	if !ok || len(records) != 1 || records[0].(map[string]any)["uuid"] != "u-3" {
		t.Errorf("records = %v", records)
	}
}

func TestListAsRunErrors(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	for _, q := range []string{"limit=ten", "id_channel=x", "offset=-", "from=yesterday", "to=2026-13-01"} {
		t.Run(q, func(t *testing.T) {
			if w := do(t, router, http.MethodGet, "/api/v1/asrun?"+q, "", ""); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}

	srv.asrun.(*fakeAsRun).err = errors.New("database is locked")
	if w := do(t, router, http.MethodGet, "/api/v1/asrun", "", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestListChannels(t *testing.T) {
	srv, ch := testServer(t)
	ch.stat = session.Stat{ChannelID: 1, FPS: 25}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/channels", "", "")
	channels, ok := decode(t, w)["channels"].([]any)
	if !ok || len(channels) != 1 || channels[0].(map[string]any)["fps"] != float64(25) {
		t.Errorf("channels = %v", channels)
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestMetricsEndpoint(t *testing.T) {
	ch := &fakeChannel{id: 1}
	deps := testDeps(ch)
	deps.Metrics = metrics.New()
	srv, err := New(deps)
	if err != nil {
		t.Fatal(err)
	}
	router := srv.buildRouter()

	do(t, router, http.MethodPost, "/api/v1/channels/1/take", "", "")

	w := do(t, router, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	want := `nebula_playout_http_requests_total{code="200",method="POST",route="/api/v1/channels/{id}/{method}"} 1`
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("scrape missing %q", want)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestServerStartAndClose(t *testing.T) {
	ch := &fakeChannel{id: 1}
	deps := testDeps(ch)
	deps.ControllerPorts = map[int]int{1: freePort(t)}
	srv, err := New(deps)
	if err != nil {
		t.Fatal(err)
	}

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	addrs := srv.Addrs()
	if len(addrs) != 2 {
		t.Fatalf("addrs = %v, want main and channel listener", addrs)
	}
	if !strings.HasSuffix(addrs[1], ":"+strconv.Itoa(deps.ControllerPorts[1])) {
		t.Errorf("channel listener on %s", addrs[1])
	}

	resp, err := http.Get("http://" + addrs[0] + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Post("http://"+addrs[1]+"/stat", "application/json", nil)
	if err != nil {
		t.Fatalf("channel port request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"response":200`) {
		t.Errorf("channel port stat = %d %s", resp.StatusCode, body)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get("http://" + addrs[0] + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServerStartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	deps := testDeps(&fakeChannel{id: 1})
	deps.ControllerPorts = map[int]int{1: ln.Addr().(*net.TCPAddr).Port}
	srv, err := New(deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(context.Background()); err == nil {
		srv.Close()
		t.Fatal("Start() should fail when a channel port is taken")
	}
	if len(srv.Addrs()) != 0 {
		t.Error("a failed Start must not leave listeners running")
	}
}
