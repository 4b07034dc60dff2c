package model

import (
	"errors"
	"fmt"
)

// ErrInvalidCommand rejects a command before dispatch: empty target set
// or an out-of-range payload. It is the only hard error a well-formed
// dispatch can return; everything else is a per-address result.
var ErrInvalidCommand = errors.New("invalid command")

// CommandKind selects the operation a Command performs.
type CommandKind string

const (
	CmdSetPower      CommandKind = "set_power"
	CmdSetBrightness CommandKind = "set_brightness"
	CmdSetColor      CommandKind = "set_color"
	CmdToggle        CommandKind = "toggle"
	CmdQueryStatus   CommandKind = "query_status"
)

// Command is one logical operation against a set of target devices.
// Commands are transient: built per invocation, never persisted.
type Command struct {
	Kind       CommandKind `json:"kind"`
	Power      bool        `json:"power,omitempty"`      // CmdSetPower
	Brightness int         `json:"brightness,omitempty"` // CmdSetBrightness
	Color      RGB         `json:"color,omitempty"`      // CmdSetColor
	Targets    []Address   `json:"targets"`
}

// SetPower builds a power command.
func SetPower(on bool, targets ...Address) Command {
	return Command{Kind: CmdSetPower, Power: on, Targets: targets}
}

// SetBrightness builds a brightness command, value in 0..MaxBrightness.
func SetBrightness(value int, targets ...Address) Command {
	return Command{Kind: CmdSetBrightness, Brightness: value, Targets: targets}
}

// SetColor builds a color command.
func SetColor(c RGB, targets ...Address) Command {
	return Command{Kind: CmdSetColor, Color: c, Targets: targets}
}

// Toggle builds a toggle command. Each target is queried and flipped
// independently.
func Toggle(targets ...Address) Command {
	return Command{Kind: CmdToggle, Targets: targets}
}

// QueryStatus builds a status query command.
func QueryStatus(targets ...Address) Command {
	return Command{Kind: CmdQueryStatus, Targets: targets}
}

// Validate checks the command before any network call is attempted.
func (c Command) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: no target devices", ErrInvalidCommand)
	}
	for _, t := range c.Targets {
		if t.IsZero() {
			return fmt.Errorf("%w: empty target address", ErrInvalidCommand)
		}
	}

	switch c.Kind {
	case CmdSetPower, CmdSetColor, CmdToggle, CmdQueryStatus:
	case CmdSetBrightness:
		if c.Brightness < 0 || c.Brightness > MaxBrightness {
			return fmt.Errorf("%w: brightness %d out of range 0..%d",
				ErrInvalidCommand, c.Brightness, MaxBrightness)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, c.Kind)
	}
	return nil
}
