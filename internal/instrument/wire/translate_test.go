package wire

import (
	"errors"
	"math"
	"testing"

	"github.com/davmor83/labrig-core/internal/instrument"
)

func TestParseBool(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		want    bool
		wantErr bool
	}{
		{"one", "1", true, false},
		{"zero", "0", false, false},
		{"nonzero int", "3", true, false},
		{"on upper", "ON", true, false},
		{"on lower", "on", true, false},
		{"off mixed", "Off", false, false},
		{"quoted", `"1"`, true, false},
		{"padded", " 0\n", false, false},
		{"garbage", "maybe", false, true},
		{"empty", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBool(tt.token)
			if tt.wantErr {
				if !errors.Is(err, instrument.ErrProtocol) {
					t.Errorf("expected ErrProtocol, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBool(%q) failed: %v", tt.token, err)
			}
			if got != tt.want {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestFormatBool(t *testing.T) {
	if FormatBool(true) != "1" || FormatBool(false) != "0" {
		t.Errorf("FormatBool: got %q/%q", FormatBool(true), FormatBool(false))
	}
}

func TestNumber(t *testing.T) {
	t.Run("float token", func(t *testing.T) {
		n, err := NumberFrom(2.5e6)
		if err != nil {
			t.Fatalf("NumberFrom failed: %v", err)
		}
		if n.Token() != "2.5e+06" {
			t.Errorf("Token = %q", n.Token())
		}
	})

	t.Run("integer widths accepted", func(t *testing.T) {
		for _, v := range []any{int(5), int64(5), float32(5)} {
			n, err := NumberFrom(v)
			if err != nil {
				t.Errorf("NumberFrom(%T) failed: %v", v, err)
				continue
			}
			if n.Value != 5 {
				t.Errorf("NumberFrom(%T) = %v", v, n.Value)
			}
		}
	})

	t.Run("sentinels pass through unchanged", func(t *testing.T) {
		for _, s := range []string{"MIN", "max", " Max "} {
			n, err := NumberFrom(s)
			if err != nil {
				t.Fatalf("NumberFrom(%q) failed: %v", s, err)
			}
			tok := n.Token()
			if tok != Min && tok != Max {
				t.Errorf("NumberFrom(%q).Token() = %q", s, tok)
			}
		}
	})

	t.Run("unsupported forms rejected", func(t *testing.T) {
		for _, v := range []any{"MEDIUM", true, nil} {
			if _, err := NumberFrom(v); !errors.Is(err, instrument.ErrValueNotSupported) {
				t.Errorf("NumberFrom(%v): expected ErrValueNotSupported, got %v", v, err)
			}
		}
	})
}

func TestParseFloat(t *testing.T) {
	t.Run("plain decimal", func(t *testing.T) {
		v, err := ParseFloat("1.5e+09\n")
		if err != nil || v != 1.5e9 {
			t.Errorf("ParseFloat = %v err=%v", v, err)
		}
	})

	t.Run("out of range suffix decodes to infinity", func(t *testing.T) {
		v, err := ParseFloat("9.910000E+37INF0", "INF0")
		if err != nil {
			t.Fatalf("ParseFloat failed: %v", err)
		}
		if !math.IsInf(v, 1) {
			t.Errorf("expected +Inf, got %v", v)
		}
	})

	t.Run("suffix only applies when configured", func(t *testing.T) {
		if _, err := ParseFloat("9.9E+37INF0"); !errors.Is(err, instrument.ErrProtocol) {
			t.Errorf("expected ErrProtocol without suffix table, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := ParseFloat("OVERLOAD"); !errors.Is(err, instrument.ErrProtocol) {
			t.Errorf("expected ErrProtocol, got %v", err)
		}
	})
}

func TestTable(t *testing.T) {
	modes := NewTable([][2]string{
		{"constant_current", "CURRENT"},
		{"constant_voltage", "VOLTAGE"},
		{"constant_resistance", "RESISTANCE"},
		{"constant_power", "POWER"},
	})

	t.Run("round trip", func(t *testing.T) {
		for _, semantic := range modes.Values() {
			token, err := modes.ToWire(semantic)
			if err != nil {
				t.Fatalf("ToWire(%q) failed: %v", semantic, err)
			}
			back, err := modes.FromWire(token)
			if err != nil {
				t.Fatalf("FromWire(%q) failed: %v", token, err)
			}
			if back != semantic {
				t.Errorf("round trip %q -> %q -> %q", semantic, token, back)
			}
		}
	})

	t.Run("values keeps declaration order", func(t *testing.T) {
		vals := modes.Values()
		if len(vals) != 4 || vals[0] != "constant_current" || vals[3] != "constant_power" {
			t.Errorf("Values = %v", vals)
		}
	})

	t.Run("unknown semantic value", func(t *testing.T) {
		_, err := modes.ToWire("constant_impedance")
		if !errors.Is(err, instrument.ErrValueNotSupported) {
			t.Errorf("expected ErrValueNotSupported, got %v", err)
		}
	})

	t.Run("unknown mnemonic from instrument", func(t *testing.T) {
		_, err := modes.FromWire("LED")
		if !errors.Is(err, instrument.ErrProtocol) {
			t.Errorf("expected ErrProtocol, got %v", err)
		}
	})

	t.Run("mnemonic normalization", func(t *testing.T) {
		got, err := modes.FromWire(` "current"` + "\n")
		if err != nil || got != "constant_current" {
			t.Errorf("FromWire normalized = %q err=%v", got, err)
		}
	})

	t.Run("contains", func(t *testing.T) {
		if !modes.Contains("constant_power") || modes.Contains("dynamic") {
			t.Error("Contains misreported membership")
		}
	})
}

func TestSentinels(t *testing.T) {
	s := DefaultSentinels()

	tests := []struct {
		name  string
		value float64
		over  bool
		under bool
	}{
		{"in range", 12.5, false, false},
		{"at positive sentinel", 9.9e37, true, false},
		{"beyond positive sentinel", 1.0e38, true, false},
		{"at negative sentinel", -9.9e37, false, true},
		{"positive infinity", math.Inf(1), true, false},
		{"negative infinity", math.Inf(-1), false, true},
		{"zero", 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsOverRange(tt.value); got != tt.over {
				t.Errorf("IsOverRange(%v) = %v", tt.value, got)
			}
			if got := s.IsUnderRange(tt.value); got != tt.under {
				t.Errorf("IsUnderRange(%v) = %v", tt.value, got)
			}
			if got := s.IsOutOfRange(tt.value); got != (tt.over || tt.under) {
				t.Errorf("IsOutOfRange(%v) = %v", tt.value, got)
			}
		})
	}
}
