package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"schedimport/internal/config"
	"schedimport/internal/model"
	"schedimport/internal/pipeline"
)

func testResult() pipeline.Result {
	return pipeline.Result{
		RunID: "run-1",
		Events: []model.Event{
			{UID: "a", Summary: "With tasks", SourceFile: "a.ics", Tasks: []model.Task{{Text: "open"}, {Text: "done", Completed: true}}},
			{UID: "b", Summary: "Plain", SourceFile: "b.ics", Tasks: []model.Task{}},
		},
		Tasks:          2,
		CompletedTasks: 1,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(cfg)
	s.Publish(testResult())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

type eventRow struct {
	UID        string `json:"uid"`
	SourceFile string `json:"source_file"`
}

func TestEventsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, config.DefaultConfig())

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Run-ID"); got != "run-1" {
		t.Errorf("X-Run-ID = %q, want run-1", got)
	}
	if resp.Header.Get("Last-Modified") == "" {
		t.Error("Last-Modified header missing")
	}
	var all []eventRow
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		t.Fatalf("/api/events is not a JSON array: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("events = %+v", all)
	}

	var onlyTasks []eventRow
	getJSON(t, ts.URL+"/api/events?tasks_only=1", &onlyTasks)
	if len(onlyTasks) != 1 || onlyTasks[0].UID != "a" {
		t.Errorf("tasks_only events = %+v", onlyTasks)
	}

	var bySource []eventRow
	getJSON(t, ts.URL+"/api/events?source=b.ics", &bySource)
	if len(bySource) != 1 || bySource[0].UID != "b" {
		t.Errorf("source events = %+v", bySource)
	}

	var none []eventRow
	getJSON(t, ts.URL+"/api/events?source=missing.ics", &none)
	if none == nil || len(none) != 0 {
		t.Errorf("unknown source = %#v, want empty array", none)
	}
}

func TestTasksEndpoint(t *testing.T) {
	_, ts := newTestServer(t, config.DefaultConfig())

	var open []taskDTO
	getJSON(t, ts.URL+"/api/tasks", &open)
	if len(open) != 1 || open[0].Text != "open" || open[0].EventUID != "a" {
		t.Errorf("open tasks = %+v", open)
	}

	var all []taskDTO
	getJSON(t, ts.URL+"/api/tasks?all=true", &all)
	if len(all) != 2 || !all[1].Completed {
		t.Errorf("all tasks = %+v", all)
	}
}

func TestScheduleEndpointIsBareArray(t *testing.T) {
	_, ts := newTestServer(t, config.DefaultConfig())
	var events []model.Event
	getJSON(t, ts.URL+"/schedule.json", &events)
	if len(events) != 2 {
		t.Errorf("schedule = %+v", events)
	}
}

func TestStaticFrontend(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>tasks</h1>"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.FrontendDir = dir
	_, ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/unknown")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /api/unknown status = %d, want 404", resp.StatusCode)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "secret"}
	_, ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200 without auth", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("/api/events status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/events", nil)
	req.SetBasicAuth("me", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authorized status = %d, want 200", resp.StatusCode)
	}
}

func TestWebsocketBroadcastOnPublish(t *testing.T) {
	s, ts := newTestServer(t, config.DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Publish(pipeline.Result{RunID: "run-2", Events: []model.Event{{UID: "x", Tasks: []model.Task{}}}})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if msg.Type != "schedule_updated" || msg.RunID != "run-2" || msg.Events != 1 {
		t.Errorf("message = %+v", msg)
	}
}
