// Package control implements the one-shot, non-interactive command
// surface: set power, brightness or color on one or many bulbs and
// print what each device reported.
package control

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/paularlott/cli"
	"golang.org/x/term"

	"github.com/martinsuchenak/bulbs/internal/config"
	"github.com/martinsuchenak/bulbs/internal/engine"
	"github.com/martinsuchenak/bulbs/internal/model"
)

// Command returns the "cli" subcommand.
func Command() *cli.Command {
	return &cli.Command{
		Name:        "cli",
		Usage:       "Control bulbs non-interactively",
		Description: "Send power, brightness and color commands to bulbs and print per-device results",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "power"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Device address(es), comma separated (overrides the stored inventory)",
			},
			&cli.IntFlag{
				Name:         "brightness",
				Aliases:      []string{"b"},
				Usage:        "Set brightness (0-100)",
				DefaultValue: -1,
			},
			&cli.StringFlag{
				Name:    "color",
				Aliases: []string{"c"},
				Usage:   "Set color (#RRGGBB)",
			},
			&cli.BoolFlag{
				Name:    "discover",
				Aliases: []string{"d"},
				Usage:   "Discover bulbs on the local network before dispatching",
			},
			&cli.BoolFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Show device status",
			},
		},
		Run: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Load()

	explicit := parseList(cmd.GetString("address"))
	brightness := cmd.GetInt("brightness")
	color := cmd.GetString("color")
	power := strings.ToLower(cmd.GetStringArg("power"))
	discover := cmd.GetBool("discover")
	status := cmd.GetBool("status")

	if brightness < 0 && color == "" && power == "" && !status {
		return fmt.Errorf("nothing to do, provide an argument or option that does something")
	}

	// Explicit addresses never touch the inventory; otherwise targets
	// come from the stored device list, optionally topped up by a
	// discovery pass.
	persist := len(explicit) == 0
	eng, closer, err := engine.Build(cfg, persist)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}

	targets, err := eng.Targets(ctx, explicit, discover)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no devices found, provide at least one device address")
	}

	// Build the command sequence in a fixed order: brightness, color,
	// power, then status. Each is its own dispatch.
	var commands []model.Command
	if brightness >= 0 {
		commands = append(commands, model.SetBrightness(brightness, targets...))
	}
	if color != "" {
		c, err := model.ParseRGB(color)
		if err != nil {
			return err
		}
		commands = append(commands, model.SetColor(c, targets...))
	}
	switch power {
	case "":
	case "on":
		commands = append(commands, model.SetPower(true, targets...))
	case "off":
		commands = append(commands, model.SetPower(false, targets...))
	case "toggle":
		commands = append(commands, model.Toggle(targets...))
	default:
		return fmt.Errorf("%w: power must be on, off or toggle", model.ErrInvalidCommand)
	}
	if status {
		commands = append(commands, model.QueryStatus(targets...))
	}

	failed := false
	for _, c := range commands {
		report, err := eng.Run(ctx, c)
		if err != nil {
			return err
		}
		if report.Outcome != model.OutcomeSuccess {
			failed = true
		}
		printFailures(report)
		if c.Kind == model.CmdQueryStatus {
			printStatus(eng)
		}
	}

	if failed {
		return fmt.Errorf("some devices did not complete the command")
	}
	return nil
}

// printFailures lists every target that did not complete the command.
func printFailures(report model.Report) {
	for _, r := range report.Results {
		if !r.OK() {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", r.Address, report.Kind, r.Failure)
		}
	}
}

// printStatus renders the registry snapshot, aligned when stdout is a
// terminal and tab-separated when piped.
func printStatus(eng *engine.Engine) {
	devices := eng.Registry().Snapshot()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		for _, d := range devices {
			fmt.Printf("%s\t%s\t%s\t%d\t%s\t%s\n",
				d.Address, d.Name, onOff(d.State.Power), d.State.Brightness, d.State.Color, d.Health)
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tPOWER\tBRIGHT\tCOLOR\tHEALTH")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			d.Address, d.Name, strings.ToUpper(onOff(d.State.Power)), d.State.Brightness, d.State.Color, d.Health)
	}
	w.Flush()
}

func onOff(power bool) string {
	if power {
		return "on"
	}
	return "off"
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
