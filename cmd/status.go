package cmd

import (
	"context"
	"time"

	"github.com/chaollapark/homelab/internal/ops"
	"github.com/chaollapark/homelab/internal/router"
)

// opTimeout bounds one-shot router operations. Filter-table writes
// probe the gateway several times, so this is generous.
const opTimeout = 2 * time.Minute

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// RunStatus prints a quick online/offline summary of the host table.
func RunStatus(configFile string) error {
	app, err := newApp(configFile, nil)
	if err != nil {
		return err
	}
	ctx, cancel := opContext()
	defer cancel()
	defer app.Router.Logout(ctx)

	res := app.Ops.Status(ctx)
	printResult(res)
	printDevices(res.Devices, false)
	return nil
}

// RunDevices prints the full host table with hardware addresses.
func RunDevices(configFile string) error {
	app, err := newApp(configFile, nil)
	if err != nil {
		return err
	}
	ctx, cancel := opContext()
	defer cancel()
	defer app.Router.Logout(ctx)

	res := app.Ops.Status(ctx)
	printResult(res)
	printDevices(res.Devices, true)
	return nil
}

// RunKick blocks a device by name.
func RunKick(configFile, name string) error {
	app, err := newApp(configFile, nil)
	if err != nil {
		return err
	}
	ctx, cancel := opContext()
	defer cancel()
	defer app.Router.Logout(ctx)

	printResult(app.Ops.KickDevice(ctx, name))
	return nil
}

// RunAllow unblocks a device by name.
func RunAllow(configFile, name string) error {
	app, err := newApp(configFile, nil)
	if err != nil {
		return err
	}
	ctx, cancel := opContext()
	defer cancel()
	defer app.Router.Logout(ctx)

	printResult(app.Ops.AllowDevice(ctx, name))
	return nil
}

// RunBanned lists devices currently in the block table.
func RunBanned(configFile string) error {
	app, err := newApp(configFile, nil)
	if err != nil {
		return err
	}
	ctx, cancel := opContext()
	defer cancel()
	defer app.Router.Logout(ctx)

	res := app.Ops.BlockedDevices(ctx)
	printResult(res)
	for _, d := range res.Devices {
		Printer.Printf("  🚫 %s (%s)\n", d.Name, d.MAC)
	}
	return nil
}

func printResult(res ops.Result) {
	Printer.Println(res.Message)
}

func printDevices(devices []router.Device, withMAC bool) {
	for _, d := range devices {
		icon := "🔴"
		if d.Online {
			icon = "🟢"
		}
		name := d.Name
		if name == "" {
			name = d.MAC
		}
		if withMAC {
			Printer.Printf("  %s %s  %s  %s\n", icon, name, d.MAC, d.IP)
		} else {
			Printer.Printf("  %s %s (%s)\n", icon, name, d.IP)
		}
	}
}
