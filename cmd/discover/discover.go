// Package discover implements the one-shot network discovery command.
package discover

import (
	"context"
	"fmt"
	"time"

	"github.com/paularlott/cli"

	"github.com/martinsuchenak/bulbs/internal/config"
	"github.com/martinsuchenak/bulbs/internal/engine"
	"github.com/martinsuchenak/bulbs/internal/model"
)

// Command returns the "discover" subcommand.
func Command() *cli.Command {
	return &cli.Command{
		Name:        "discover",
		Usage:       "Find bulbs on the local network",
		Description: "Probe the local network for bulbs, add new ones to the inventory and query their status",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:         "timeout",
				Usage:        "Discovery window in seconds",
				DefaultValue: 5,
			},
			&cli.BoolFlag{
				Name:         "status",
				Usage:        "Query the status of every discovered bulb",
				DefaultValue: true,
			},
		},
		Run: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Load()
	if t := cmd.GetInt("timeout"); t > 0 {
		cfg.DiscoveryTimeout = time.Duration(t) * time.Second
	}

	eng, closer, err := engine.Build(cfg, true)
	if err != nil {
		return err
	}
	defer closer()

	fmt.Printf("Probing local network for bulbs (window %s)...\n", cfg.DiscoveryTimeout)
	start := time.Now()

	addrs, err := eng.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	fmt.Printf("Found %d bulb(s) in %s\n", len(addrs), time.Since(start).Round(time.Millisecond))
	if len(addrs) == 0 {
		return nil
	}

	if cmd.GetBool("status") {
		report, err := eng.Run(ctx, model.QueryStatus(addrs...))
		if err != nil {
			return err
		}
		fmt.Println()
		for _, r := range report.Results {
			if r.OK() {
				fmt.Printf("%s: power=%s brightness=%d%% color=%s\n",
					r.Address, onOff(r.State.Power), r.State.Brightness, r.State.Color)
			} else {
				fmt.Printf("%s: %s\n", r.Address, r.Failure)
			}
		}
	} else {
		for _, a := range addrs {
			fmt.Println(a)
		}
	}
	return nil
}

func onOff(power bool) string {
	if power {
		return "on"
	}
	return "off"
}
