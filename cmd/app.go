// Package cmd implements the CLI subcommands. Each RunX function owns
// one verb; shared wiring lives in newApp.
package cmd

import (
	"fmt"
	"os"

	"github.com/chaollapark/homelab/internal/allowlist"
	"github.com/chaollapark/homelab/internal/config"
	"github.com/chaollapark/homelab/internal/events"
	"github.com/chaollapark/homelab/internal/i18n"
	"github.com/chaollapark/homelab/internal/lockdown"
	"github.com/chaollapark/homelab/internal/logging"
	"github.com/chaollapark/homelab/internal/ops"
	"github.com/chaollapark/homelab/internal/router"
)

var Printer = i18n.NewCLIPrinter()

// App is the wired object graph every subcommand starts from. One-shot
// verbs use it for a single operation; monitor mode keeps it alive.
type App struct {
	Config    *config.Config
	Log       *logging.Logger
	Router    *router.Client
	Allowlist *allowlist.Store
	Lockdown  *lockdown.Controller
	Ops       *ops.Handler
}

// loadConfig reads and validates the configuration. Warnings print to
// stderr; errors abort.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	errs := cfg.Validate()
	for _, w := range errs.Warnings() {
		Printer.Fprintf(os.Stderr, "warning: %s\n", w.Error())
	}
	if errs.HasErrors() {
		return nil, fmt.Errorf("config invalid: %s", errs.Error())
	}
	return cfg, nil
}

// newLogger builds the process logger from config and installs it as
// the package default so component loggers inherit it.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.DefaultConfig()

	switch cfg.Logging.LevelName() {
	case "debug":
		lc.Level = logging.LevelDebug
	case "warn", "warning":
		lc.Level = logging.LevelWarn
	case "error":
		lc.Level = logging.LevelError
	default:
		lc.Level = logging.LevelInfo
	}

	if cfg.Logging != nil {
		lc.JSON = cfg.Logging.JSON
		if cfg.Logging.File != "" {
			f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err != nil {
				return nil, fmt.Errorf("open log file: %w", err)
			}
			lc.Output = f
		}
	}

	log := logging.New(lc)
	logging.SetDefault(log)
	return log, nil
}

// newApp loads config and wires the collaborators every verb needs.
// hub may be nil; one-shot verbs have no subscribers.
func newApp(configFile string, hub *events.Hub) (*App, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := router.New(router.Config{
		URL:          cfg.Router.URL,
		Username:     cfg.Router.Username,
		Password:     cfg.Router.Password,
		ReadTimeout:  cfg.Router.ReadTimeoutDuration(),
		WriteTimeout: cfg.Router.WriteTimeoutDuration(),
	})
	if err != nil {
		return nil, err
	}

	var seeds []allowlist.Device
	for _, d := range cfg.Allowlist.SeedDevices() {
		seeds = append(seeds, allowlist.Device{Name: d.Name, MAC: d.MAC, Reason: d.Reason})
	}
	allow := allowlist.NewStore(cfg.Allowlist.FilePath(), seeds, nil)

	locker, err := lockdown.New(lockdown.Options{
		StatePath: cfg.Lockdown.StateFilePath(),
		Gateway:   gw,
		Allowlist: allow,
		Hub:       hub,
	})
	if err != nil {
		return nil, err
	}

	handler, err := ops.New(ops.Options{
		Gateway:   gw,
		Allowlist: allow,
		Lockdown:  locker,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Config:    cfg,
		Log:       log,
		Router:    gw,
		Allowlist: allow,
		Lockdown:  locker,
		Ops:       handler,
	}, nil
}
