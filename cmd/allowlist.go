package cmd

import (
	"fmt"
	"strings"

	"github.com/chaollapark/homelab/internal/brand"
)

// RunAllowlist handles the allowlist subcommands: list, add, remove.
func RunAllowlist(configFile string, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	app, err := newApp(configFile, nil)
	if err != nil {
		return err
	}

	switch sub {
	case "list":
		res := app.Ops.AllowlistList()
		printResult(res)
		for _, d := range res.Devices {
			Printer.Printf("  • %s  %s\n", d.MAC, d.Name)
		}
		return nil

	case "add":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s allowlist add <name> <mac> [reason]", brand.BinaryName)
		}
		reason := ""
		if len(args) > 2 {
			reason = strings.Join(args[2:], " ")
		}
		printResult(app.Ops.AllowlistAdd(args[0], args[1], reason))
		return nil

	case "remove":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s allowlist remove <mac>", brand.BinaryName)
		}
		printResult(app.Ops.AllowlistRemove(args[0]))
		return nil

	default:
		return fmt.Errorf("unknown allowlist subcommand %q\nUsage: %s allowlist [list|add|remove]", sub, brand.BinaryName)
	}
}
