package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RGB is a bulb color. The wire protocol carries it as "#RRGGBB".
type RGB struct {
	R uint8
	G uint8
	B uint8
}

// ParseRGB parses "#RRGGBB" or "RRGGBB" into an RGB value.
func ParseRGB(s string) (RGB, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("invalid color %q: want #RRGGBB", s)
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid color %q: want #RRGGBB", s)
	}

	return RGB{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, nil
}

// Hex renders the color without the leading '#', as the bulb set-color
// endpoint expects.
func (c RGB) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

// String renders the color as "#RRGGBB".
func (c RGB) String() string {
	return "#" + c.Hex()
}

// MarshalJSON encodes the color as a "#RRGGBB" string.
func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts a "#RRGGBB" (or "RRGGBB") string.
func (c *RGB) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = RGB{}
		return nil
	}
	parsed, err := ParseRGB(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
