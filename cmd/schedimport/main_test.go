package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"schedimport/internal/config"
	"schedimport/internal/pipeline"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//schedimport//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:tiger-1\r\n" +
	"SUMMARY:Tiger Month intentions\r\n" +
	"DTSTART;VALUE=DATE:20240305\r\n" +
	`DESCRIPTION:Original Text: - [ ] Tiger Month intentions: What will I achieve by March 5?\n- [x] Journal` + "\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:plain-1\r\n" +
	"SUMMARY:Dentist\r\n" +
	"DTSTART:20240306T150000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseAndApplyFlags(t *testing.T) {
	f := parseFlags([]string{"-dir", "cals", "-tasks-only", "-workers", "2", "-log-level", "debug"})
	conf := config.DefaultConfig()
	conf.Output = "custom.json"
	applyFlags(conf, f)

	if conf.InputDir != "cals" || !conf.TasksOnly || conf.Workers != 2 || conf.LogLevel != "debug" {
		t.Errorf("flags not applied: %+v", conf)
	}
	if conf.Output != "custom.json" {
		t.Errorf("unset -out must keep config value, got %q", conf.Output)
	}
}

func TestImporterRunOnce(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plan.ics"), []byte(sampleICS), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.ics"), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	conf := config.DefaultConfig()
	conf.InputDir = dir
	conf.Output = filepath.Join(dir, "schedule.json")
	conf.FrontendDir = filepath.Join(dir, "frontend")
	conf.CreateFrontend = true

	imp, err := newImporter(conf)
	if err != nil {
		t.Fatalf("newImporter error: %v", err)
	}
	res, paths, err := imp.runOnce(context.Background())
	if err != nil {
		t.Fatalf("runOnce error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v, want primary and frontend copy", paths)
	}
	if len(res.Events) != 2 || len(res.Failures) != 1 {
		t.Errorf("events = %d, failures = %d", len(res.Events), len(res.Failures))
	}

	data, err := os.ReadFile(filepath.Join(dir, "frontend", "schedule.json"))
	if err != nil {
		t.Fatalf("frontend copy missing: %v", err)
	}
	var events []struct {
		UID   string `json:"uid"`
		Start string `json:"start"`
		Tasks []struct {
			Text      string `json:"text"`
			Completed bool   `json:"completed"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if events[0].UID != "tiger-1" || events[0].Start != "2024-03-05" {
		t.Errorf("first event = %+v", events[0])
	}
	if len(events[0].Tasks) != 2 || !strings.Contains(events[0].Tasks[0].Text, "What will I achieve by March 5?") {
		t.Errorf("tasks = %+v", events[0].Tasks)
	}
	if events[1].Start != "2024-03-06T15:00:00Z" || events[1].Tasks == nil {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestImporterOutputFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	conf := config.DefaultConfig()
	conf.InputDir = dir
	conf.Output = filepath.Join(dir, "missing", "schedule.json")
	conf.FrontendDir = filepath.Join(dir, "no-frontend")

	imp, err := newImporter(conf)
	if err != nil {
		t.Fatalf("newImporter error: %v", err)
	}
	if _, _, err := imp.runOnce(context.Background()); err == nil {
		t.Fatal("expected output write error")
	}
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	res := pipeline.Result{
		Sources:        3,
		Tasks:          4,
		CompletedTasks: 1,
		Failures:       []pipeline.SourceError{{Source: "bad.ics"}},
	}
	printOutcome(&buf, res, []string{"schedule.json"})
	out := buf.String()
	if !strings.Contains(out, "Exported 0 events (4 tasks, 1 completed) to schedule.json") {
		t.Errorf("unexpected outcome line: %q", out)
	}
	if !strings.Contains(out, "Skipped 1 of 3 calendars") {
		t.Errorf("missing skipped line: %q", out)
	}
}

func TestWriteConfigSavesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "schedimport.yaml")
	f := parseFlags([]string{"-dir", "cals", "-tasks-only", "-write-config", path})
	if f.writeConfig != path {
		t.Fatalf("writeConfig = %q, want %q", f.writeConfig, path)
	}

	conf := config.DefaultConfig()
	applyFlags(conf, f)

	var buf bytes.Buffer
	if err := writeConfig(&buf, conf, path); err != nil {
		t.Fatalf("writeConfig error: %v", err)
	}
	if !strings.Contains(buf.String(), path) {
		t.Errorf("output = %q, want path mentioned", buf.String())
	}

	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got.InputDir != "cals" || !got.TasksOnly {
		t.Errorf("saved config = %+v, want flags applied", got)
	}
}
