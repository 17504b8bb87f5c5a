package cmd

import (
	"fmt"

	"github.com/chaollapark/homelab/internal/brand"
)

// RunSites handles the website filter subcommands: list, block, unblock.
func RunSites(configFile string, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	app, err := newApp(configFile, nil)
	if err != nil {
		return err
	}
	ctx, cancel := opContext()
	defer cancel()
	defer app.Router.Logout(ctx)

	switch sub {
	case "list":
		res := app.Ops.BlockedSites(ctx)
		printResult(res)
		for _, s := range res.Sites {
			Printer.Printf("  🚫 %s\n", s)
		}
		return nil

	case "block":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s sites block <website>", brand.BinaryName)
		}
		printResult(app.Ops.BlockSite(ctx, args[0]))
		return nil

	case "unblock":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s sites unblock <website>", brand.BinaryName)
		}
		printResult(app.Ops.UnblockSite(ctx, args[0]))
		return nil

	default:
		return fmt.Errorf("unknown sites subcommand %q\nUsage: %s sites [list|block|unblock]", sub, brand.BinaryName)
	}
}
