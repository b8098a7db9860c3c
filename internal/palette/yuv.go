package palette

import (
	"image/color"
	"math"
)

const (
	rWeight = 0.299
	gWeight = 0.587
	bWeight = 0.114
	uMax    = 0.436
	vMax    = 0.615
)

// YUV is a color in the analog YUV space, with Y on the 0..255 scale.
type YUV struct {
	Y, U, V float64
}

// ToYUV converts an opaque 8-bit color.
func ToYUV(c color.RGBA) YUV {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	y := rWeight*r + gWeight*g + bWeight*b
	return YUV{
		Y: y,
		U: uMax * ((b - y) / (1 - bWeight)),
		V: vMax * ((r - y) / (1 - rWeight)),
	}
}

// RGB converts back to 8-bit channels, rounding half to even and clamping.
func (c YUV) RGB() color.RGBA {
	return color.RGBA{
		R: clamp8(c.Y + 1.14*c.V),
		G: clamp8(c.Y - 0.395*c.U - 0.581*c.V),
		B: clamp8(c.Y + 2.033*c.U),
		A: 0xff,
	}
}

// Distance is the Euclidean YUV distance between two colors, scaled so
// black to white is 1.
func Distance(a, b color.RGBA) float64 {
	return yuvDistance(ToYUV(a), ToYUV(b))
}

func yuvDistance(a, b YUV) float64 {
	dy := a.Y - b.Y
	du := a.U - b.U
	dv := a.V - b.V
	return math.Sqrt(dy*dy+du*du+dv*dv) / 255
}

// Brightness is the perceived brightness of c in [0, 1].
func Brightness(c color.RGBA) float64 {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	return math.Sqrt(r*r*rWeight+g*g*gWeight+b*b*bWeight) / 255
}

// BrightenFromBackground moves the luma of c away from the background by
// amount (fraction of full scale).
func BrightenFromBackground(c, background color.RGBA, amount float64) color.RGBA {
	bg := ToYUV(background)
	out := ToYUV(c)
	if bg.Y-out.Y < 0 {
		out.Y = math.Min(out.Y+amount*255, 255)
	} else {
		out.Y = math.Max(out.Y-amount*255, 0)
	}
	return out.RGB()
}

// FadeIntoBackground moves the luma of c toward the background by amount.
func FadeIntoBackground(c, background color.RGBA, amount float64) color.RGBA {
	bg := ToYUV(background)
	out := ToYUV(c)
	if bg.Y-out.Y > 0 {
		out.Y = math.Min(out.Y+amount*255, 255)
	} else {
		out.Y = math.Max(out.Y-amount*255, 0)
	}
	return out.RGB()
}

func clamp8(v float64) uint8 {
	v = math.RoundToEven(v)
	switch {
	case v > 255:
		return 255
	case v < 0:
		return 0
	}
	return uint8(v)
}
