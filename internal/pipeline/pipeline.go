// Package pipeline runs one import: discover calendars, decode them in
// parallel, normalize each event and extract its tasks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"schedimport/internal/ics"
	appLog "schedimport/internal/log"
	"schedimport/internal/model"
	"schedimport/internal/tasks"
)

// Fetcher downloads remote calendars. *ics.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// Options configures a Run.
type Options struct {
	// Dir is scanned for files ending in Extension (case-insensitive).
	Dir       string
	Extension string

	// Subscriptions are remote calendars fetched through Fetcher.
	Subscriptions []ics.Source
	Fetcher       Fetcher

	// Extractor defaults to tasks.DefaultOptions when nil.
	Extractor *tasks.Extractor

	// Workers bounds concurrent sources; <= 0 means one.
	Workers int

	// TasksOnly keeps only events with at least one task.
	TasksOnly bool
}

// SourceError records a calendar that contributed no events.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e SourceError) Unwrap() error { return e.Err }

// Result is the outcome of one Run.
type Result struct {
	RunID    string
	Events   []model.Event
	Sources  int // calendars attempted
	Failures []SourceError

	Tasks          int
	CompletedTasks int
	Duration       time.Duration
}

// Err joins all per-source failures, or nil.
func (r Result) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Discover lists calendar files in dir, sorted by name.
func Discover(dir, ext string) ([]ics.Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	out := make([]ics.Source, 0)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, ics.FileSource(filepath.Join(dir, e.Name())))
	}
	return out, nil
}

type slot struct {
	events []model.Event
	err    error
}

// Run performs one import. Per-source failures are logged and reported in
// Result.Failures; the returned error is reserved for discovery failures
// and cancellation.
func Run(ctx context.Context, opts Options) (Result, error) {
	started := time.Now()
	res := Result{RunID: uuid.NewString()}

	sources, err := Discover(opts.Dir, opts.Extension)
	if err != nil {
		return res, err
	}
	appLog.Info("calendar files found", "run_id", res.RunID, "dir", opts.Dir, "count", len(sources))

	sources = append(sources, opts.Subscriptions...)
	res.Sources = len(sources)

	ex := opts.Extractor
	if ex == nil {
		ex = tasks.MustNew(tasks.DefaultOptions())
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	// Each worker owns one slot; the merge below is the only writer of
	// res.Events, so output order follows discovery order.
	slots := make([]slot, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			evs, err := processSource(gctx, src, opts, ex)
			slots[i] = slot{events: evs, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Events = make([]model.Event, 0)
	for i, s := range slots {
		if s.err != nil {
			res.Failures = append(res.Failures, SourceError{Source: sources[i].Name, Err: s.err})
			appLog.Error("calendar skipped", s.err, "run_id", res.RunID, "source", sources[i].Name)
			continue
		}
		res.Events = append(res.Events, s.events...)
	}

	res.Tasks, res.CompletedTasks = model.CountTasks(res.Events)
	res.Duration = time.Since(started)
	appLog.Info("import completed",
		"run_id", res.RunID,
		"sources", res.Sources,
		"failed", len(res.Failures),
		"events", len(res.Events),
		"tasks", res.Tasks,
		"completed_tasks", res.CompletedTasks,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

func processSource(ctx context.Context, src ics.Source, opts Options, ex *tasks.Extractor) ([]model.Event, error) {
	body, err := load(ctx, src, opts.Fetcher)
	if err != nil {
		return nil, err
	}
	bags, err := ics.Decode(src, body)
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0, len(bags))
	for _, bag := range bags {
		ev := ics.Normalize(bag, src.Name)
		ev.Tasks = ex.Extract(ev.Description)
		if opts.TasksOnly && len(ev.Tasks) == 0 {
			continue
		}
		events = append(events, ev)
	}
	appLog.Info("calendar processed", "source", src.Name, "events", len(events))
	return events, nil
}

func load(ctx context.Context, src ics.Source, f Fetcher) ([]byte, error) {
	if src.URL == "" {
		return ics.ReadFile(src)
	}
	if f == nil {
		return nil, errors.New("no fetcher configured for remote calendar")
	}
	r, err := f.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	return r.Body, nil
}
