package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"runtime"

	ico "github.com/sergeymakinen/go-ico"
)

const iconSize = 32

// glyph draws three volume bars of rising height.
func glyph() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	ink := color.NRGBA{0, 0, 0, 255}
	bars := []struct{ x, h int }{{4, 10}, {13, 18}, {22, 26}}
	for _, b := range bars {
		for x := b.x; x < b.x+6; x++ {
			for y := iconSize - 3 - b.h; y < iconSize-3; y++ {
				img.SetNRGBA(x, y, ink)
			}
		}
	}
	return img
}

// iconData encodes the tray icon: ICO on Windows, PNG elsewhere.
func iconData() ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if runtime.GOOS == "windows" {
		err = ico.Encode(&buf, glyph())
	} else {
		err = png.Encode(&buf, glyph())
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
