package main

import (
	"flag"
	"os"
	"strings"

	"github.com/chaollapark/homelab/cmd"
	"github.com/chaollapark/homelab/internal/brand"
	"github.com/chaollapark/homelab/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "monitor":
		configFile, _ := parseCommon("monitor", os.Args[2:])
		if err := cmd.RunMonitor(configFile); err != nil {
			printer.Fprintf(os.Stderr, "Monitor failed: %v\n", err)
			os.Exit(1)
		}

	case "status":
		configFile, _ := parseCommon("status", os.Args[2:])
		if err := cmd.RunStatus(configFile); err != nil {
			printer.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}

	case "devices":
		configFile, _ := parseCommon("devices", os.Args[2:])
		if err := cmd.RunDevices(configFile); err != nil {
			printer.Fprintf(os.Stderr, "Devices failed: %v\n", err)
			os.Exit(1)
		}

	case "kick":
		configFile, rest := parseCommon("kick", os.Args[2:])
		if len(rest) == 0 {
			printer.Println("Usage: " + brand.BinaryName + " kick <device-name>")
			os.Exit(1)
		}
		if err := cmd.RunKick(configFile, strings.Join(rest, " ")); err != nil {
			printer.Fprintf(os.Stderr, "Kick failed: %v\n", err)
			os.Exit(1)
		}

	case "allow":
		configFile, rest := parseCommon("allow", os.Args[2:])
		if len(rest) == 0 {
			printer.Println("Usage: " + brand.BinaryName + " allow <device-name>")
			os.Exit(1)
		}
		if err := cmd.RunAllow(configFile, strings.Join(rest, " ")); err != nil {
			printer.Fprintf(os.Stderr, "Allow failed: %v\n", err)
			os.Exit(1)
		}

	case "banned":
		configFile, _ := parseCommon("banned", os.Args[2:])
		if err := cmd.RunBanned(configFile); err != nil {
			printer.Fprintf(os.Stderr, "Banned failed: %v\n", err)
			os.Exit(1)
		}

	case "lockdown":
		configFile, rest := parseCommon("lockdown", os.Args[2:])
		if err := cmd.RunLockdown(configFile, rest); err != nil {
			printer.Fprintf(os.Stderr, "Lockdown failed: %v\n", err)
			os.Exit(1)
		}

	case "allowlist":
		configFile, rest := parseCommon("allowlist", os.Args[2:])
		if err := cmd.RunAllowlist(configFile, rest); err != nil {
			printer.Fprintf(os.Stderr, "Allowlist failed: %v\n", err)
			os.Exit(1)
		}

	case "sites":
		configFile, rest := parseCommon("sites", os.Args[2:])
		if err := cmd.RunSites(configFile, rest); err != nil {
			printer.Fprintf(os.Stderr, "Sites failed: %v\n", err)
			os.Exit(1)
		}

	case "config":
		configFile, rest := parseCommon("config", os.Args[2:])
		if err := cmd.RunConfig(configFile, rest); err != nil {
			printer.Fprintf(os.Stderr, "Config failed: %v\n", err)
			os.Exit(1)
		}

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		printer.Printf("Build: %s\n", brand.BuildTime)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// parseCommon parses the flags every command shares and returns the
// config path plus the remaining positional arguments.
func parseCommon(name string, args []string) (string, []string) {
	flags := flag.NewFlagSet(name, flag.ExitOnError)
	configFile := flags.String("config", brand.DefaultConfigPath(), "Configuration file")
	flags.StringVar(configFile, "c", brand.DefaultConfigPath(), "Configuration file (short)")
	flags.Parse(args)
	return *configFile, flags.Args()
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Daemon:
  monitor    Run the presence monitor (polls the router, sends alerts,
             serves Telegram commands)

Device Commands:
  status     Online/offline summary of the household
  devices    Full host table with hardware addresses
  kick       Block a device by name
  allow      Unblock a device by name
  banned     List devices in the block table

Access Control:
  lockdown   Manage lockdown: status, preview [-soft], start [-soft] [-n], stop
  allowlist  Manage protected devices: list, add <name> <mac>, remove <mac>
  sites      Manage the website filter: list, block <site>, unblock <site>

Other:
  config     example | validate [path] | show [path]
  version    Print version info
  help       Show this help

All commands accept --config (-c) <file>; the default is %s.

Examples:
  %s monitor
  %s kick "Johns iPhone"
  %s lockdown start -soft
  %s sites block facebook.com
`,
		brand.Name, brand.Description,
		brand.LowerName,
		brand.DefaultConfigPath(),
		brand.LowerName, brand.LowerName, brand.LowerName, brand.LowerName)
}
