package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"schedimport/internal/config"
	appLog "schedimport/internal/log"
	"schedimport/internal/pipeline"
	"schedimport/internal/refresh"
	"schedimport/internal/report"
	"schedimport/internal/web"
)

// flagConfig holds CLI flag values; set ones override the config file.
type flagConfig struct {
	configPath     string
	dir            string
	out            string
	frontend       string
	createFrontend bool
	tasksOnly      bool
	workers        int
	logLevel       string
	summary        bool
	serve          bool
	listen         string
	writeConfig    string

	set map[string]bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	applyFlags(conf, flags)
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	if flags.writeConfig != "" {
		if err := writeConfig(os.Stdout, conf, flags.writeConfig); err != nil {
			appLog.Error("failed to write config", err, "path", flags.writeConfig)
			os.Exit(1)
		}
		return
	}

	appLog.Debug("effective config",
		"input_dir", conf.InputDir,
		"extension", conf.Extension,
		"output", conf.Output,
		"frontend_dir", conf.FrontendDir,
		"tasks_only", conf.TasksOnly,
		"workers", conf.Workers,
		"ics_count", len(conf.ICS),
		"serve", flags.serve,
	)

	// Root context canceled on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	imp, err := newImporter(conf)
	if err != nil {
		appLog.Error("failed to set up import", err)
		os.Exit(1)
	}

	res, paths, err := imp.runOnce(ctx)
	if err != nil {
		appLog.Error("import failed", err)
		os.Exit(1)
	}
	printOutcome(os.Stdout, res, paths)
	if flags.summary {
		report.Render(os.Stdout, res.Events)
	}

	if !flags.serve {
		return
	}
	if err := serve(ctx, conf, imp, res); err != nil {
		appLog.Error("server failed", err)
		os.Exit(1)
	}
}

// serve publishes res over HTTP and keeps it fresh on the refresh schedule
// until ctx is canceled.
func serve(ctx context.Context, conf *config.Config, imp *importer, res pipeline.Result) error {
	srv := web.NewServer(conf)
	srv.Publish(res)

	sched, err := refresh.New(conf.RefreshCron, func(ctx context.Context) {
		res, paths, err := imp.runOnce(ctx)
		if err != nil {
			appLog.Error("scheduled import failed", err)
			return
		}
		srv.Publish(res)
		appLog.Info("scheduled import published", "run_id", res.RunID, "events", len(res.Events), "outputs", len(paths))
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	err = srv.ListenAndServe(ctx)
	// A listener failure must stop the scheduler as well.
	cancel()
	<-done
	return err
}

// writeConfig saves the effective configuration (file plus flags) so a
// later run can use it with -config.
func writeConfig(w io.Writer, conf *config.Config, path string) error {
	if err := conf.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote configuration to %s\n", path)
	return nil
}

func printOutcome(w io.Writer, res pipeline.Result, paths []string) {
	for _, p := range paths {
		fmt.Fprintf(w, "Exported %d events (%d tasks, %d completed) to %s\n",
			len(res.Events), res.Tasks, res.CompletedTasks, p)
	}
	if n := len(res.Failures); n > 0 {
		fmt.Fprintf(w, "Skipped %d of %d calendars; see log for details\n", n, res.Sources)
	}
}

func parseFlags(args []string) flagConfig {
	var cfg flagConfig
	fs := flag.NewFlagSet("schedimport", flag.ExitOnError)

	fs.StringVar(&cfg.configPath, "config", "schedimport.yaml", "Path to config file (optional)")
	fs.StringVar(&cfg.dir, "dir", "", "Directory scanned for calendar files")
	fs.StringVar(&cfg.out, "out", "", "Output JSON path")
	fs.StringVar(&cfg.frontend, "frontend", "", "Frontend directory that receives a copy of the output")
	fs.BoolVar(&cfg.createFrontend, "create-frontend", false, "Create the frontend directory if missing")
	fs.BoolVar(&cfg.tasksOnly, "tasks-only", false, "Keep only events that contain tasks")
	fs.IntVar(&cfg.workers, "workers", 0, "Calendars decoded in parallel")
	fs.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.summary, "summary", false, "Print a table of imported events")
	fs.BoolVar(&cfg.serve, "serve", false, "Serve the schedule over HTTP and refresh it on schedule")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.StringVar(&cfg.writeConfig, "write-config", "", "Write the effective config to this path and exit")

	_ = fs.Parse(args)

	cfg.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })
	return cfg
}

// applyFlags copies explicitly set flags over conf.
func applyFlags(conf *config.Config, f flagConfig) {
	if f.set["dir"] {
		conf.InputDir = f.dir
	}
	if f.set["out"] {
		conf.Output = f.out
	}
	if f.set["frontend"] {
		conf.FrontendDir = f.frontend
	}
	if f.set["create-frontend"] {
		conf.CreateFrontend = f.createFrontend
	}
	if f.set["tasks-only"] {
		conf.TasksOnly = f.tasksOnly
	}
	if f.set["workers"] {
		conf.Workers = f.workers
	}
	if f.set["log-level"] {
		conf.LogLevel = f.logLevel
	}
	if f.set["listen"] {
		conf.Listen = f.listen
	}
	conf.Normalize()
}
