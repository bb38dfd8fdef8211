package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/askweb/internal/config"
	"github.com/kalambet/askweb/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

type cannedResponse struct {
	status int
	body   string
}

func newTestServer(t *testing.T, responses map[string]cannedResponse) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			if resp.status != 0 {
				w.WriteHeader(resp.status)
			}
			w.Write([]byte(resp.body))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not_found","message":"search not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useServer points the CLI commands at ts for the duration of the test.
func useServer(t *testing.T, ts *testServer) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	noColor = true
	t.Cleanup(func() {
		newAPIClient = orig
		noColor = false
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

const recordJSON = `{
	"id": 7,
	"query": "what is go",
	"answer": "Go is a programming language.",
	"results": [
		{"title": "The Go Programming Language", "url": "https://go.dev/doc", "content": "c"},
		{"title": "Go (language)", "url": "https://en.wikipedia.org/wiki/Go", "content": "c"}
	],
	"completionDegraded": false,
	"createdAt": "2026-10-17T10:00:00Z"
}`

func TestSearchCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /api/search": {body: recordJSON},
	})
	useServer(t, ts)

	out, err := execute(t, "search", "--json=false", "what", "is", "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != http.MethodPost || r.Path != "/api/search" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", r.Auth)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["query"] != "what is go" {
		t.Errorf("query = %q", body["query"])
	}

	for _, want := range []string{
		"#7 what is go",
		"Go is a programming language.",
		"[1] The Go Programming Language (go.dev)",
		"[2] Go (language) (wikipedia.org)",
		"https://en.wikipedia.org/wiki/Go",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSearchCommand_JSON(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /api/search": {body: recordJSON},
	})
	useServer(t, ts)

	out, err := execute(t, "search", "--json", "what is go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rec storage.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("output is not a record: %v\n%s", err, out)
	}
	if rec.ID != 7 || len(rec.Results) != 2 {
		t.Errorf("record = %+v", rec)
	}
}

func TestSearchCommand_ServerError(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /api/search": {
			status: http.StatusInternalServerError,
			body:   `{"error":"configuration_error","message":"tavily is not configured"}`,
		},
	})
	useServer(t, ts)

	_, err := execute(t, "search", "--json=false", "anything")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "tavily is not configured") || !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q", err)
	}
}

func TestSearchCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "search")
	if err == nil {
		t.Fatal("expected error for missing query")
	}
}

func TestHistoryCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /api/searches": {body: `[
			{"id":2,"query":"pending one","answer":null,"results":null,"createdAt":"2026-10-17T10:01:00Z"},
			{"id":1,"query":"done","answer":"a","results":[],"completionDegraded":true,"createdAt":"2026-10-17T10:00:00Z"}
		]`},
	})
	useServer(t, ts)

	out, err := execute(t, "history", "--json=false", "--limit", "3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Path != "/api/searches?limit=3" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "#2") || !strings.Contains(lines[0], "[pending]") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "[no AI answer]") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestHistoryCommand_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /api/searches": {body: `[]`},
	})
	useServer(t, ts)

	out, err := execute(t, "history", "--json=false", "--limit", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No searches yet.") {
		t.Errorf("output = %q", out)
	}
}

func TestShowCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /api/searches/7": {body: recordJSON},
	})
	useServer(t, ts)

	out, err := execute(t, "show", "--json=false", "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Go is a programming language.") {
		t.Errorf("output = %q", out)
	}
}

func TestShowCommand_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts)

	_, err := execute(t, "show", "--json=false", "99")
	if err == nil || !strings.Contains(err.Error(), "search not found") {
		t.Fatalf("error = %v", err)
	}
}

func TestShowCommand_InvalidID(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts)

	_, err := execute(t, "show", "abc")
	if err == nil || !strings.Contains(err.Error(), "invalid search id") {
		t.Fatalf("error = %v", err)
	}
	if len(ts.requests) != 0 {
		t.Error("no request should be sent for an invalid id")
	}
}

func TestPrintRecord_Pending(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	var buf bytes.Buffer
	printRecord(&buf, storage.Record{ID: 3, Query: "q"})
	if !strings.Contains(buf.String(), "no answer yet") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSourceDomain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://go.dev/doc", "go.dev"},
		{"https://en.wikipedia.org/wiki/Go", "wikipedia.org"},
		{"https://news.bbc.co.uk/story", "bbc.co.uk"},
		{"http://localhost:8080/x", "localhost"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := sourceDomain(tt.in); got != tt.want {
			t.Errorf("sourceDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(strings.NewReader("bad gateway")),
	}
	err := decodeJSON(resp, &struct{}{})
	if err == nil || !strings.Contains(err.Error(), "502: bad gateway") {
		t.Fatalf("error = %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("expected one JSON line: %v\n%s", err, out)
	}
	if entry["msg"] != "shown" || entry["k"] != "v" {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf).Debug("dbg")
	if !strings.Contains(buf.String(), "msg=dbg") {
		t.Errorf("text debug output = %q", buf.String())
	}
}

func TestBuildPipeline(t *testing.T) {
	cfg := config.Config{
		Storage:    config.StorageConfig{Backend: "memory"},
		Breaker:    config.BreakerConfig{MaxFailures: 3},
		Completion: config.CompletionConfig{Model: "deepseek-chat"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, store, err := buildPipeline(cfg, logger)
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	defer store.Close()

	// No keys configured: the request fails at the search step and the
	// record stays pending.
	if _, err := p.Run(context.Background(), "q"); err == nil {
		t.Fatal("expected configuration error")
	}
	recs, err := p.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || !recs[0].Pending() {
		t.Errorf("records = %+v", recs)
	}

	cfg.Storage.Backend = "postgres"
	if _, _, err := buildPipeline(cfg, logger); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfigSetAndShow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("ASKWEB_SERVER_PORT", "")
	noColor = true
	defer func() { noColor = false }()

	if _, err := execute(t, "config", "set", "server.port", "6123"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := execute(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "server.port = 6123") {
		t.Errorf("output missing updated port:\n%s", out)
	}

	if _, err := execute(t, "config", "set", "search.api_key", "x"); err == nil {
		t.Error("secrets must not be settable")
	}

	if _, err := execute(t, "config", "unset", "server.port"); err != nil {
		t.Fatalf("config unset: %v", err)
	}
	out, err = execute(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "server.port = 5000") {
		t.Errorf("port should be back to default:\n%s", out)
	}
}
