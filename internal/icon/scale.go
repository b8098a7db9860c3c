package icon

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// Blank returns a fully black (transparent) size×size image.
func Blank(size int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, size, size))
}

// Fit scales img to exactly size×size with bilinear filtering. A nil or
// empty image gives Blank(size). The result always starts at (0, 0).
func Fit(img image.Image, size int) *image.RGBA {
	if img == nil || img.Bounds().Empty() {
		return Blank(size)
	}

	src := img
	if b := img.Bounds(); b.Dx() != size || b.Dy() != size {
		src = resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	}

	dst := Blank(size)
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
