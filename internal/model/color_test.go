package model

import (
	"encoding/json"
	"testing"
)

func TestParseRGB(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RGB
		wantErr bool
	}{
		{"with hash", "#FF0000", RGB{R: 255}, false},
		{"without hash", "00FF00", RGB{G: 255}, false},
		{"lowercase", "#00a0ff", RGB{G: 0xA0, B: 0xFF}, false},
		{"white", "#FFFFFF", RGB{255, 255, 255}, false},
		{"too short", "#FFF", RGB{}, true},
		{"too long", "#FF000000", RGB{}, true},
		{"not hex", "#GGHHII", RGB{}, true},
		{"empty", "", RGB{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRGB(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRGB(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseRGB(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRGBString(t *testing.T) {
	c := RGB{R: 0x12, G: 0xAB, B: 0x05}
	if got := c.String(); got != "#12AB05" {
		t.Errorf("String() = %q, want #12AB05", got)
	}
	if got := c.Hex(); got != "12AB05" {
		t.Errorf("Hex() = %q, want 12AB05", got)
	}
}

func TestRGBJSON(t *testing.T) {
	var st DeviceState
	if err := json.Unmarshal([]byte(`{"power":true,"brightness":80,"color":"#FF0000"}`), &st); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if st.Color != (RGB{R: 255}) {
		t.Errorf("Color = %+v, want #FF0000", st.Color)
	}

	out, err := json.Marshal(st.Color)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `"#FF0000"` {
		t.Errorf("Marshal() = %s, want \"#FF0000\"", out)
	}
}
