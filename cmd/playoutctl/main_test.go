package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nebulabroadcast/nebula-worker/internal/auth"
)

type request struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

// fakeAPI answers every request with a fixed status and body and records
// what it received.
type fakeAPI struct {
	mu       sync.Mutex
	requests []request
	status   int
	reply    string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	req := request{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
	if len(raw) > 0 {
		json.Unmarshal(raw, &req.body) //nolint:errcheck // Asserted by callers
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.status == http.StatusNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	io.WriteString(w, f.reply) //nolint:errcheck // Test server
}

func (f *fakeAPI) last(t *testing.T) request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no request received")
	}
	return f.requests[len(f.requests)-1]
}

func newFakeAPI(t *testing.T, status int, reply string) (*fakeAPI, string) {
	t.Helper()
	api := &fakeAPI{status: status, reply: reply}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, key := range []string{"NEBULA_API_URL", "NEBULA_TOKEN", "NEBULA_CHANNEL", "NEBULA_JWT_SECRET"} {
		t.Setenv(key, "")
	}

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTake(t *testing.T) {
	api, url := newFakeAPI(t, http.StatusOK, `{"response":200,"message":"Take"}`)

	out, err := runCLI(t, "--url", url, "-c", "2", "--token", "abc", "take")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if strings.TrimSpace(out) != "Take" {
		t.Errorf("output = %q", out)
	}
	req := api.last(t)
	if req.method != http.MethodPost || req.path != "/api/v1/channels/2/take" || req.auth != "Bearer abc" {
		t.Errorf("request = %+v", req)
	}
	if req.body != nil {
		t.Errorf("take should send no body, got %v", req.body)
	}
}

func TestCue(t *testing.T) {
	api, url := newFakeAPI(t, http.StatusOK, `{"response":200,"message":"Playing item ID:42","id_item":42}`)

	if _, err := runCLI(t, "--url", url, "cue", "42", "--play"); err != nil {
		t.Fatalf("cue: %v", err)
	}
	req := api.last(t)
	if req.path != "/api/v1/channels/1/cue" || req.body["id_item"] != float64(42) || req.body["play"] != true {
		t.Errorf("request = %+v", req)
	}

	if _, err := runCLI(t, "--url", url, "cue", "abc"); err == nil {
		t.Error("cue with a non-numeric id should fail")
	}
}

func TestNextNothingCued(t *testing.T) {
	api, url := newFakeAPI(t, http.StatusNoContent, "")

	out, err := runCLI(t, "--url", url, "next")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !strings.Contains(out, "Nothing to cue") {
		t.Errorf("output = %q", out)
	}
	if req := api.last(t); req.path != "/api/v1/channels/1/cue_forward" {
		t.Errorf("path = %s", req.path)
	}
}

func TestCommandError(t *testing.T) {
	_, url := newFakeAPI(t, http.StatusConflict, `{"response":409,"message":"session: nothing is cued"}`)

	_, err := runCLI(t, "--url", url, "take")
	if err == nil {
		t.Fatal("take should fail on 409")
	}
	if got := err.Error(); got != "session: nothing is cued (409)" {
		t.Errorf("error = %q", got)
	}
}

func TestJSONOutput(t *testing.T) {
	_, url := newFakeAPI(t, http.StatusOK, `{"response":200,"message":"Set loop to true"}`)

	out, err := runCLI(t, "--url", url, "--json", "set", "loop", "true")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	var reply map[string]any
	if err := json.Unmarshal([]byte(out), &reply); err != nil {
		t.Fatalf("output is not JSON: %q", out)
	}
	if reply["message"] != "Set loop to true" {
		t.Errorf("reply = %v", reply)
	}
}

func TestStat(t *testing.T) {
	_, url := newFakeAPI(t, http.StatusOK, `{
		"response": 200, "id_channel": 1, "fps": 25,
		"current_item": 42, "current_title": "News",
		"cued_item": null, "cued_title": null,
		"position": 12.48, "duration": 60, "paused": false, "loop": false,
		"cue_state": "idle", "current_live": false, "cued_live": false
	}`)

	out, err := runCLI(t, "--url", url, "stat")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	for _, want := range []string{"Channel 1  [ON AIR]", "News (42)", "00:00:12:12 / 00:01:00:00", "idle"} {
		if !strings.Contains(out, want) {
			t.Errorf("stat output missing %q:\n%s", want, out)
		}
	}
}

func TestPlugins(t *testing.T) {
	api, url := newFakeAPI(t, http.StatusOK,
		`{"response":200,"plugins":[{"name":"lower","title":"Lower third","kind":"cg","slots":[{"type":"text","name":"text"},{"type":"action","name":"show"}]}]}`)

	out, err := runCLI(t, "--url", url, "plugin", "list")
	if err != nil {
		t.Fatalf("plugin list: %v", err)
	}
	if !strings.Contains(out, "Lower third") || !strings.Contains(out, "text, show") {
		t.Errorf("output = %q", out)
	}

	if _, err := runCLI(t, "--url", url, "plugin", "exec", "lower", "show", "--data", `{"text":"Breaking"}`); err != nil {
		t.Fatalf("plugin exec: %v", err)
	}
	req := api.last(t)
	data, _ := req.body["data"].(map[string]any)
	if req.path != "/api/v1/channels/1/plugin_exec" || req.body["name"] != "lower" || req.body["action"] != "show" || data["text"] != "Breaking" {
		t.Errorf("request = %+v", req)
	}

	if _, err := runCLI(t, "--url", url, "plugin", "exec", "lower", "show", "--data", "nope"); err == nil {
		t.Error("invalid --data should fail")
	}
}

func TestAsRun(t *testing.T) {
	api, url := newFakeAPI(t, http.StatusOK,
		`{"records":[{"id":3,"uuid":"u-3","id_channel":1,"id_item":42,"start":"2026-03-01T06:00:00Z"}],"total":1,"limit":5,"offset":0}`)

	out, err := runCLI(t, "--url", url, "asrun", "--limit", "5")
	if err != nil {
		t.Fatalf("asrun: %v", err)
	}
	req := api.last(t)
	if req.method != http.MethodGet || req.path != "/api/v1/asrun" || req.query != "id_channel=1&limit=5" {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(out, "on air") || !strings.Contains(out, "1 of 1 records") {
		t.Errorf("output = %q", out)
	}

	if _, err := runCLI(t, "--url", url, "asrun", "--from", "yesterday"); err == nil {
		t.Error("invalid --from should fail")
	}
}

func TestEnvDefaults(t *testing.T) {
	api, url := newFakeAPI(t, http.StatusOK, `{"response":200,"message":"Aborted"}`)

	t.Chdir(t.TempDir())
	t.Setenv("NEBULA_API_URL", url)
	t.Setenv("NEBULA_CHANNEL", "3")
	t.Setenv("NEBULA_TOKEN", "from-env")

	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"abort"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if req := api.last(t); req.path != "/api/v1/channels/3/abort" || req.auth != "Bearer from-env" {
		t.Errorf("request = %+v", req)
	}
}

func TestToken(t *testing.T) {
	const secret = "test-secret-key-at-least-32-characters-long"

	out, err := runCLI(t, "token", "--secret", secret, "--role", "admin", "--subject", "studio-a")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseToken(strings.TrimSpace(out), secret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "studio-a" || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := runCLI(t, "token"); err == nil {
		t.Error("token without a secret should fail")
	}
	if _, err := runCLI(t, "token", "--secret", secret, "--role", "root"); err == nil {
		t.Error("token with an unknown role should fail")
	}
}

func TestTimecode(t *testing.T) {
	tests := []struct {
		seconds, fps float64
		want         string
	}{
		{0, 25, "00:00:00:00"},
		{12.48, 25, "00:00:12:12"},
		{3661.04, 25, "01:01:01:01"},
		{-3, 25, "00:00:00:00"},
		{1.48, 0, "00:00:01:12"},
	}
	for _, tt := range tests {
		if got := timecode(tt.seconds, tt.fps); got != tt.want {
			t.Errorf("timecode(%v, %v) = %q, want %q", tt.seconds, tt.fps, got, tt.want)
		}
	}
}
