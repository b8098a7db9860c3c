// Package palette picks a background and two accent colors from an image,
// used to give every app on the display a color derived from its icon.
package palette

import (
	"image"
	"image/color"
	"math"
	"sort"
)

// Thresholds on the brightness gap to the background and on the distance
// between the two accents.
const (
	CandidateDiff = 0.3
	MinDiff       = 0.4
	TrackDistance = 0.25

	// clusterRadius is the YUV distance under which a pixel joins a cluster.
	clusterRadius = 0.1

	// borderInset is how far inside the image edge the background ring sits.
	borderInset = 2

	fadeAmount = 0.1
)

var fallbacks = []color.RGBA{
	{A: 0xff},
	{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
}

// ColorSet is the result of an extraction.
type ColorSet struct {
	Background color.RGBA
	Accent1    color.RGBA
	Accent2    color.RGBA
}

// Extract analyzes img. Transparent pixels count as black. An empty image
// yields the zero ColorSet.
func Extract(img image.Image) ColorSet {
	var set ColorSet

	all := pixels(img)
	if len(all) == 0 {
		return set
	}
	ring := insideBorder(img)
	if len(ring) == 0 {
		ring = all
	}

	set.Background = dominant(ring)[0]
	candidates := dominant(all)
	bgBrightness := Brightness(set.Background)

	firstFound, secondFound := false, false
	for _, c := range candidates {
		gap := math.Abs(Brightness(c) - bgBrightness)
		if gap < CandidateDiff {
			continue
		}
		if gap < MinDiff {
			c = BrightenFromBackground(c, set.Background, MinDiff-CandidateDiff)
			if math.Abs(Brightness(c)-bgBrightness) < MinDiff {
				continue
			}
		}

		if !firstFound {
			set.Accent1 = c
			firstFound = true
			continue
		}
		if Distance(set.Accent1, c) > TrackDistance {
			set.Accent2 = c
			secondFound = true
			break
		}
	}

	if !firstFound || !secondFound {
		for _, backup := range fallbacks {
			if math.Abs(Brightness(backup)-bgBrightness) < CandidateDiff {
				continue
			}
			if !firstFound {
				set.Accent1 = backup
				firstFound = true
				break
			}
			if !secondFound && Distance(set.Accent1, backup) > TrackDistance {
				set.Accent2 = backup
				secondFound = true
				break
			}
		}
	}

	if !secondFound {
		set.Accent2 = FadeIntoBackground(set.Accent1, set.Background, fadeAmount)
	}
	return set
}

// insideBorder returns the ring of pixels two in from every edge. Corners
// are visited twice.
func insideBorder(img image.Image) []color.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 2*borderInset+1 || h < 2*borderInset+1 {
		return nil
	}

	out := make([]color.RGBA, 0, 2*(w+h))
	for x := borderInset; x <= w-1-borderInset; x++ {
		out = append(out, at(img, x, borderInset), at(img, x, h-1-borderInset))
	}
	for y := borderInset; y <= h-1-borderInset; y++ {
		out = append(out, at(img, borderInset, y), at(img, w-1-borderInset, y))
	}
	return out
}

// pixels returns every pixel, column by column.
func pixels(img image.Image) []color.RGBA {
	b := img.Bounds()
	out := make([]color.RGBA, 0, b.Dx()*b.Dy())
	for x := 0; x < b.Dx(); x++ {
		for y := 0; y < b.Dy(); y++ {
			out = append(out, at(img, x, y))
		}
	}
	return out
}

func at(img image.Image, x, y int) color.RGBA {
	b := img.Bounds()
	c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
	c.A = 0xff
	return c
}

// dominant clusters colors greedily and returns cluster means, most
// populated first.
func dominant(colors []color.RGBA) []color.RGBA {
	type bucket struct {
		first   YUV
		members []color.RGBA
	}

	var buckets []*bucket
	for _, c := range colors {
		yc := ToYUV(c)
		var target *bucket
		for _, b := range buckets {
			if yuvDistance(yc, b.first) < clusterRadius {
				target = b
				break
			}
		}
		if target == nil {
			target = &bucket{first: yc}
			buckets = append(buckets, target)
		}
		target.members = append(target.members, c)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return len(buckets[i].members) > len(buckets[j].members)
	})

	means := make([]color.RGBA, len(buckets))
	for i, b := range buckets {
		means[i] = mean(b.members)
	}
	return means
}

func mean(colors []color.RGBA) color.RGBA {
	var r, g, b int
	for _, c := range colors {
		r += int(c.R)
		g += int(c.G)
		b += int(c.B)
	}
	n := float64(len(colors))
	return color.RGBA{
		R: uint8(math.RoundToEven(float64(r) / n)),
		G: uint8(math.RoundToEven(float64(g) / n)),
		B: uint8(math.RoundToEven(float64(b) / n)),
		A: 0xff,
	}
}
