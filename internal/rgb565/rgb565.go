// Package rgb565 converts colors to and from the 16-bit R5G6B5 format the
// display uses for both the snapshot colors and the icon pixels.
package rgb565

import (
	"image/color"
	"math"
)

const (
	maxRed   = 31
	maxGreen = 63
	maxBlue  = 31
)

// Pack quantizes an 8-bit RGB triple to R5G6B5.
func Pack(r, g, b uint8) uint16 {
	r5 := scale(r, maxRed)
	g6 := scale(g, maxGreen)
	b5 := scale(b, maxBlue)

	hi := r5<<3 | g6>>3
	lo := (g6&0x07)<<5 | b5
	return hi<<8 | lo
}

// PackColor packs any color. Alpha is composited over black, which is what
// the display shows behind a transparent pixel.
func PackColor(c color.Color) uint16 {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	return Pack(rgba.R, rgba.G, rgba.B)
}

// Bytes splits a packed value into its wire order, high byte first.
func Bytes(v uint16) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}

// AppendPixel appends the two wire bytes of c to dst.
func AppendPixel(dst []byte, c color.Color) []byte {
	hi, lo := Bytes(PackColor(c))
	return append(dst, hi, lo)
}

// Unpack expands a packed value back to 8-bit channels.
func Unpack(v uint16) color.RGBA {
	r5 := (v >> 11) & maxRed
	g6 := (v >> 5) & maxGreen
	b5 := v & maxBlue
	return color.RGBA{
		R: expand(r5, maxRed),
		G: expand(g6, maxGreen),
		B: expand(b5, maxBlue),
		A: 0xff,
	}
}

func scale(ch uint8, max float64) uint16 {
	return uint16(math.Round(float64(ch) / 255 * max))
}

func expand(v uint16, max float64) uint8 {
	return uint8(math.Round(float64(v) * 255 / max))
}
