package cmd

import (
	"flag"
	"fmt"

	"github.com/chaollapark/homelab/internal/brand"
)

// RunLockdown handles the lockdown subcommands: status, preview, start,
// stop. Without a subcommand it prints the current state.
func RunLockdown(configFile string, args []string) error {
	sub := "status"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "status":
		app, err := newApp(configFile, nil)
		if err != nil {
			return err
		}
		printResult(app.Ops.LockdownStatus())
		return nil

	case "preview":
		flags := flag.NewFlagSet("lockdown preview", flag.ExitOnError)
		soft := flags.Bool("soft", false, "Preview soft mode (visible devices only)")
		flags.Parse(args)

		app, err := newApp(configFile, nil)
		if err != nil {
			return err
		}
		ctx, cancel := opContext()
		defer cancel()
		defer app.Router.Logout(ctx)

		res := app.Ops.LockdownPreview(ctx, !*soft)
		printResult(res)
		printDevices(res.Devices, true)
		return nil

	case "start":
		flags := flag.NewFlagSet("lockdown start", flag.ExitOnError)
		soft := flags.Bool("soft", false, "Block only currently visible devices")
		dryRun := flags.Bool("dry-run", false, "Show what would be blocked without doing it")
		flags.BoolVar(dryRun, "n", false, "Dry run (short)")
		flags.Parse(args)

		app, err := newApp(configFile, nil)
		if err != nil {
			return err
		}
		ctx, cancel := opContext()
		defer cancel()
		defer app.Router.Logout(ctx)

		printResult(app.Ops.LockdownStart(ctx, !*soft, *dryRun))
		return nil

	case "stop":
		app, err := newApp(configFile, nil)
		if err != nil {
			return err
		}
		ctx, cancel := opContext()
		defer cancel()
		defer app.Router.Logout(ctx)

		printResult(app.Ops.LockdownStop(ctx))
		return nil

	default:
		return fmt.Errorf("unknown lockdown subcommand %q\nUsage: %s lockdown [status|preview|start|stop]", sub, brand.BinaryName)
	}
}
