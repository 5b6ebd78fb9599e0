package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/osbits/obtmon/internal/config"
	"github.com/osbits/obtmon/internal/engine"
	"github.com/osbits/obtmon/internal/logging"
	"github.com/osbits/obtmon/internal/metrics"
	"github.com/osbits/obtmon/internal/process"
	"github.com/osbits/obtmon/internal/registry"
	"github.com/osbits/obtmon/internal/render"
	"github.com/osbits/obtmon/internal/schedule"
	"github.com/osbits/obtmon/internal/storage"
)

// options holds the flags shared by run, watch and list.
type options struct {
	configPath      string
	monitors        []string
	monitorArgs     []string
	monfile         string
	reporters       []string
	reporterArgs    []string
	repfile         string
	logPath         string
	logLevel        string
	header          string
	workers         int
	reporterWorkers int
	history         string
	metricsTextfile string
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "path to configuration file (default $OBTMON_CONFIG or "+config.DefaultPath+")")
	f.StringArrayVarP(&o.monitors, "monitor", "m", nil, `monitor "NAME: COMMAND" (repeatable)`)
	f.StringArrayVar(&o.monitorArgs, "monitor-args", nil, "append arguments from FILE to monitor NAME, as NAME=FILE (repeatable)")
	f.StringVarP(&o.monfile, "monfile", "M", "", "monitor definition file")
	f.StringArrayVarP(&o.reporters, "reporter", "r", nil, `reporter "NAME: COMMAND" (repeatable)`)
	f.StringArrayVar(&o.reporterArgs, "reporter-args", nil, "append arguments from FILE to reporter NAME, as NAME=FILE (repeatable)")
	f.StringVarP(&o.repfile, "repfile", "R", "", "reporter definition file")
	f.StringVarP(&o.logPath, "log", "l", "", `run log file ("-" for stderr)`)
	f.StringVarP(&o.logLevel, "loglevel", "L", "", "log level: "+strings.Join(logging.LevelNames(), ", "))
	f.StringVarP(&o.header, "text", "t", "", "text placed under the summary line of the report")
	f.IntVar(&o.workers, "workers", 0, "monitors run concurrently")
	f.IntVar(&o.reporterWorkers, "reporter-workers", 0, "reporters run concurrently")
	f.StringVar(&o.history, "history", "", "sqlite run history path")
	f.StringVar(&o.metricsTextfile, "metrics-textfile", "", "write prometheus metrics to this file after each run")
}

// load reads the configuration and applies the flags that were set.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	path, explicit := o.configPath, cmd.Flags().Changed("config")
	if !explicit {
		if env := os.Getenv(config.EnvPrefix + "CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = config.DefaultPath
		}
	}
	cfg, err := config.Load(path, explicit)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	cfg.Monitors.Inline = append(cfg.Monitors.Inline, o.monitors...)
	cfg.Reporters.Inline = append(cfg.Reporters.Inline, o.reporters...)
	if err := mergeArgs(&cfg.Monitors, o.monitorArgs, "--monitor-args"); err != nil {
		return nil, err
	}
	if err := mergeArgs(&cfg.Reporters, o.reporterArgs, "--reporter-args"); err != nil {
		return nil, err
	}
	if f.Changed("monfile") {
		cfg.Monitors.File = o.monfile
	}
	if f.Changed("repfile") {
		cfg.Reporters.File = o.repfile
	}
	if f.Changed("log") {
		cfg.Log.File = o.logPath
	}
	if f.Changed("loglevel") {
		cfg.Log.Level = o.logLevel
	}
	if f.Changed("text") {
		cfg.Report.Header = o.header
	}
	if f.Changed("workers") {
		cfg.Monitors.Workers = o.workers
	}
	if f.Changed("reporter-workers") {
		cfg.Reporters.Workers = o.reporterWorkers
	}
	if f.Changed("history") {
		cfg.History.Path = o.history
	}
	if f.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = o.metricsTextfile
	}
	return cfg, nil
}

func mergeArgs(set *config.CommandSet, values []string, flag string) error {
	for _, v := range values {
		name, path, ok := strings.Cut(v, "=")
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if !ok || name == "" || path == "" {
			return fmt.Errorf("invalid %s value %q, expected NAME=FILE", flag, v)
		}
		if set.Args == nil {
			set.Args = map[string]string{}
		}
		set.Args[name] = path
	}
	return nil
}

// app is everything a command needs once configuration is settled.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	location  *time.Location
	engine    *engine.Engine
	store     *storage.Store
	collector *metrics.Collector
	closers   []io.Closer
}

// setup validates configuration and builds the engine. Configuration
// mistakes are usage errors and are reported before any monitor runs.
func (o *options) setup(cmd *cobra.Command) (*app, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return nil, usageError(err)
	}
	monitors, err := registry.ParseInline(cfg.Monitors.Inline)
	if err != nil {
		return nil, usageError(err)
	}
	reporters, err := registry.ParseInline(cfg.Reporters.Inline)
	if err != nil {
		return nil, usageError(err)
	}

	logger, logCloser, err := logging.NewRunLog(logging.Options{
		Path:       cfg.Log.File,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Format:     cfg.Log.Format,
		Name:       cfg.Service.Name,
	})
	if err != nil {
		return nil, usageError(err)
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	a.location = time.UTC
	if tz := cfg.Service.Timezone; tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			a.location = loc
		} else {
			logger.Warn("failed to load timezone, falling back to UTC", "timezone", tz, "error", err)
		}
	}

	windows, err := schedule.ParseWindows(cfg.Schedule.MaintenanceWindows, a.location, cfg.Schedule.MaintenanceDuration)
	if err != nil {
		a.Close()
		return nil, usageError(err)
	}

	a.engine = &engine.Engine{
		Runner:    process.Exec{},
		Logger:    logger,
		Monitors:  engine.CommandSet{Inline: monitors, File: cfg.Monitors.File, Args: cfg.Monitors.Args, Workers: cfg.Monitors.Workers},
		Reporters: engine.CommandSet{Inline: reporters, File: cfg.Reporters.File, Args: cfg.Reporters.Args, Workers: cfg.Reporters.Workers},
		Header:    cfg.Report.Header,
		Renderer:  render.New(),
	}
	if len(windows) > 0 {
		a.engine.Maintenance = windows
	}

	if cfg.History.Path != "" {
		store, err := storage.Open(cfg.History.Path, storage.Options{Retention: cfg.History.Retention})
		if err != nil {
			a.Close()
			return nil, &exitError{code: exitFailed, err: err}
		}
		a.store = store
		a.closers = append(a.closers, store)
		a.engine.Observers = append(a.engine.Observers, store)
	}
	a.collector = metrics.New(cfg.Metrics.Namespace, cfg.Metrics.Textfile)
	a.engine.Observers = append(a.engine.Observers, a.collector)
	return a, nil
}

// Close releases the history store and the run log, last opened first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}
