package main

import (
	"context"
	"fmt"

	"schedimport/internal/config"
	"schedimport/internal/ics"
	"schedimport/internal/output"
	"schedimport/internal/pipeline"
	"schedimport/internal/tasks"
)

// importer runs pipeline + output for one config. It is reused by the
// refresh scheduler in serve mode.
type importer struct {
	cfg  *config.Config
	opts pipeline.Options
}

func newImporter(cfg *config.Config) (*importer, error) {
	ex, err := tasks.New(cfg.TaskOptions())
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Dir:       cfg.InputDir,
		Extension: cfg.Extension,
		Extractor: ex,
		Workers:   cfg.Workers,
		TasksOnly: cfg.TasksOnly,
	}

	if len(cfg.ICS) > 0 {
		opts.Fetcher = ics.NewFetcher(cfg.CacheDir, cfg.FetchTimeout())
		for _, sub := range cfg.ICS {
			opts.Subscriptions = append(opts.Subscriptions, ics.Source{Name: sub.SourceName(), URL: sub.URL})
		}
	}

	return &importer{cfg: cfg, opts: opts}, nil
}

// runOnce imports and writes every output target. Only discovery,
// cancellation and output failures are returned.
func (im *importer) runOnce(ctx context.Context) (pipeline.Result, []string, error) {
	res, err := pipeline.Run(ctx, im.opts)
	if err != nil {
		return res, nil, err
	}

	paths, err := output.Targets(im.cfg.Output, im.cfg.FrontendDir, im.cfg.CreateFrontend)
	if err != nil {
		return res, nil, fmt.Errorf("resolve output: %w", err)
	}
	if err := output.Write(res.Events, paths); err != nil {
		return res, nil, err
	}
	return res, paths, nil
}
