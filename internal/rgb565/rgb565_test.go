package rgb565

import (
	"image/color"
	"testing"
)

func TestPack(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    uint16
	}{
		{"black", 0, 0, 0, 0x0000},
		{"white", 255, 255, 255, 0xFFFF},
		{"red", 255, 0, 0, 0xF800},
		{"green", 0, 255, 0, 0x07E0},
		{"blue", 0, 0, 255, 0x001F},
		{"yellow", 255, 255, 0, 65504},
		{"magenta", 255, 0, 255, 63519},
		{"cyan", 0, 255, 255, 2047},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pack(tt.r, tt.g, tt.b)
			if got != tt.want {
				t.Errorf("Pack(%d, %d, %d) = %#04x, want %#04x", tt.r, tt.g, tt.b, got, tt.want)
			}
		})
	}
}

func TestBytesHighFirst(t *testing.T) {
	hi, lo := Bytes(Pack(255, 0, 0))
	if hi != 0xF8 || lo != 0x00 {
		t.Errorf("Bytes(red) = %#02x %#02x, want 0xf8 0x00", hi, lo)
	}

	buf := AppendPixel(nil, color.RGBA{B: 255, A: 255})
	if len(buf) != 2 || buf[0] != 0x00 || buf[1] != 0x1F {
		t.Errorf("AppendPixel(blue) = % x, want 00 1f", buf)
	}
}

func TestPackColorTransparentIsBlack(t *testing.T) {
	if got := PackColor(color.NRGBA{R: 255, G: 255, B: 255, A: 0}); got != 0 {
		t.Errorf("PackColor(transparent white) = %#04x, want 0", got)
	}
}

func TestRoundTripWithinOneStep(t *testing.T) {
	// One quantization step for a 5-bit channel is 255/31 ≈ 8.2.
	const step5 = 255.0 / 31
	const step6 = 255.0 / 63

	for v := 0; v <= 255; v++ {
		c := uint8(v)
		got := Unpack(Pack(c, c, c))
		if d := absDiff(got.R, c); d > step5 {
			t.Errorf("red %d round trip = %d (diff %.1f)", c, got.R, d)
		}
		if d := absDiff(got.G, c); d > step6 {
			t.Errorf("green %d round trip = %d (diff %.1f)", c, got.G, d)
		}
		if d := absDiff(got.B, c); d > step5 {
			t.Errorf("blue %d round trip = %d (diff %.1f)", c, got.B, d)
		}
	}
}

func TestUnpackExact(t *testing.T) {
	for _, v := range []uint16{0x0000, 0xFFFF, 0xF800, 0x07E0, 0x001F, 7852, 29787} {
		got := Pack(Unpack(v).R, Unpack(v).G, Unpack(v).B)
		if got != v {
			t.Errorf("Pack(Unpack(%#04x)) = %#04x", v, got)
		}
	}
}

func absDiff(a, b uint8) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}
