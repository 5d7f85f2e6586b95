package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"schedimport/internal/fsutil"
	"schedimport/internal/tasks"
)

// SubscriptionConfig describes one remote ICS feed imported alongside the
// local files.
type SubscriptionConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for the cache and logging.
	ID string `yaml:"id" json:"id"`
	// Name becomes source_file for the feed's events.
	Name string `yaml:"name" json:"name"`
}

// SourceName picks the label recorded as source_file.
func (s SubscriptionConfig) SourceName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.ID != "":
		return s.ID
	default:
		return s.URL
	}
}

// TasksConfig selects the checklist dialect. Empty fields keep the
// defaults of tasks.DefaultOptions.
type TasksConfig struct {
	Bullets       string   `yaml:"bullets,omitempty" json:"bullets,omitempty"`
	Open          string   `yaml:"open,omitempty" json:"open,omitempty"`
	Done          string   `yaml:"done,omitempty" json:"done,omitempty"`
	StripPrefixes []string `yaml:"strip_prefixes,omitempty" json:"strip_prefixes,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for serve mode.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// InputDir is scanned (non-recursively) for calendar files.
	InputDir string `yaml:"input_dir" json:"input_dir"`
	// Extension identifies calendar files, e.g. ".ics".
	Extension string `yaml:"extension" json:"extension"`

	// Output is the primary schedule.json path.
	Output string `yaml:"output" json:"output"`
	// FrontendDir receives a copy of the output when it exists, or always
	// when CreateFrontend is set.
	FrontendDir    string `yaml:"frontend_dir" json:"frontend_dir"`
	CreateFrontend bool   `yaml:"create_frontend" json:"create_frontend"`

	// TasksOnly drops events whose description holds no task.
	TasksOnly bool `yaml:"tasks_only" json:"tasks_only"`
	// Workers bounds how many calendars are decoded at once.
	Workers int `yaml:"workers" json:"workers"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Tasks TasksConfig `yaml:"tasks" json:"tasks"`

	// ICS lists remote subscriptions; CacheDir keeps their last good body.
	ICS                 []SubscriptionConfig `yaml:"ics" json:"ics"`
	CacheDir            string               `yaml:"cache_dir" json:"cache_dir"`
	FetchTimeoutSeconds int                  `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`

	// Listen is the HTTP address used in serve mode.
	Listen string `yaml:"listen" json:"listen"`
	// RefreshCron re-runs the import in serve mode (standard 5-field cron).
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultInputDir    = "."
	defaultExtension   = ".ics"
	defaultOutput      = "schedule.json"
	defaultFrontendDir = "frontend"
	defaultListen      = "127.0.0.1:8080"
	defaultRefreshCron = "*/15 * * * *"
	defaultFetchSecs   = 15
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with defaults so partially
// filled configs still behave.
func (c *Config) Normalize() {
	if c.InputDir == "" {
		c.InputDir = defaultInputDir
	}
	if c.Extension == "" {
		c.Extension = defaultExtension
	}
	if !strings.HasPrefix(c.Extension, ".") {
		c.Extension = "." + c.Extension
	}
	if c.Output == "" {
		c.Output = defaultOutput
	}
	if c.FrontendDir == "" {
		c.FrontendDir = defaultFrontendDir
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ICS == nil {
		c.ICS = []SubscriptionConfig{}
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(".cache", "ics")
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = defaultFetchSecs
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	if _, err := tasks.New(c.TaskOptions()); err != nil {
		errs = append(errs, fmt.Errorf("tasks: %w", err))
	}
	for i, sub := range c.ICS {
		if sub.URL == "" {
			errs = append(errs, fmt.Errorf("ics[%d]: url is empty", i))
		}
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		errs = append(errs, errors.New("basic_auth: username and password must both be set"))
	}
	return errors.Join(errs...)
}

// TaskOptions merges the tasks section over tasks.DefaultOptions.
func (c *Config) TaskOptions() tasks.Options {
	opts := tasks.DefaultOptions()
	if c.Tasks.Bullets != "" {
		opts.Bullets = c.Tasks.Bullets
	}
	if c.Tasks.Open != "" {
		opts.Open = c.Tasks.Open
	}
	if c.Tasks.Done != "" {
		opts.Done = c.Tasks.Done
	}
	if c.Tasks.StripPrefixes != nil {
		opts.StripPrefixes = c.Tasks.StripPrefixes
	}
	return opts
}

// FetchTimeout returns the per-subscription HTTP timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// An empty path or a missing file yields the defaults; unlike Save, Load
// never writes to disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

const savedHeader = "# schedimport configuration. Flags given on the command line override these values.\n"

// Save writes the effective configuration as YAML with 0600 permissions,
// creating the parent directory if needed. Load reads the result back.
func (c *Config) Save(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	c.Normalize()

	body, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := fsutil.WriteFile(path, append([]byte(savedHeader), body...), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
