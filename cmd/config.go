package cmd

import (
	"fmt"
	"os"

	"github.com/chaollapark/homelab/internal/brand"
	"github.com/chaollapark/homelab/internal/config"
)

// RunConfig handles configuration subcommands: example, validate, show.
func RunConfig(configFile string, args []string) error {
	if len(args) < 1 {
		printConfigUsage()
		return fmt.Errorf("missing config subcommand")
	}

	switch args[0] {
	case "example":
		Printer.Println(config.Example())
		return nil

	case "validate":
		path := configFile
		if len(args) > 1 {
			path = args[1]
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		errs := cfg.Validate()
		for _, w := range errs.Warnings() {
			Printer.Printf("warning: %s\n", w.Error())
		}
		if errs.HasErrors() {
			return fmt.Errorf("config invalid: %s", errs.Error())
		}
		Printer.Printf("%s is valid\n", path)
		return nil

	case "show":
		path := configFile
		if len(args) > 1 {
			path = args[1]
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		Printer.Printf("Router:        %s (user %s)\n", cfg.Router.URL, cfg.Router.Username)
		Printer.Printf("Poll interval: %s\n", cfg.Monitor.IntervalDuration())
		Printer.Printf("Event log:     %s\n", cfg.Monitor.EventLogPath())
		Printer.Printf("Allowlist:     %s (%d seeded)\n", cfg.Allowlist.FilePath(), len(cfg.Allowlist.SeedDevices()))
		Printer.Printf("Lockdown:      %s\n", cfg.Lockdown.StateFilePath())
		if cfg.Bot != nil && cfg.Bot.Enabled {
			Printer.Printf("Bot:           enabled (chat %s)\n", cfg.Bot.ChatID)
		} else {
			Printer.Println("Bot:           disabled")
		}
		if cfg.Metrics != nil && cfg.Metrics.Enabled {
			Printer.Printf("Metrics:       %s\n", cfg.Metrics.ListenAddr())
		} else {
			Printer.Println("Metrics:       disabled")
		}
		return nil

	default:
		printConfigUsage()
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

func printConfigUsage() {
	Printer.Fprintf(os.Stderr, `Usage: %s config <subcommand>

Subcommands:
  example    Print an annotated example configuration
  validate   Check a configuration file [path]
  show       Summarize the effective configuration [path]
`, brand.BinaryName)
}
