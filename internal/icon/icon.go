// Package icon turns a session's icon reference into pixels at the sizes
// the display and the color extractor need.
package icon

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackmordaunt/icns/v3"
	_ "github.com/sergeymakinen/go-bmp"
	ico "github.com/sergeymakinen/go-ico"
)

// ErrNoIcon is returned for an empty reference.
var ErrNoIcon = errors.New("icon: no icon reference")

// Resolver loads the image behind an icon reference.
type Resolver interface {
	Resolve(ref string) (image.Image, error)
}

// FileResolver resolves references that are file paths, optionally with a
// ",N" suffix selecting the Nth image of an ICO file. PNG, JPEG, GIF, BMP,
// ICO and ICNS files are understood.
type FileResolver struct{}

func (FileResolver) Resolve(ref string) (image.Image, error) {
	if ref == "" {
		return nil, ErrNoIcon
	}
	path, index := splitRef(ref)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open icon %s: %w", path, err)
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ico":
		img, err = decodeICO(f, index)
	case ".icns":
		img, err = decodeICNS(f)
	default:
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode icon %s: %w", path, err)
	}
	return img, nil
}

// splitRef separates "path,N". Index is -1 when absent.
func splitRef(ref string) (string, int) {
	i := strings.LastIndexByte(ref, ',')
	if i < 0 {
		return ref, -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(ref[i+1:]))
	if err != nil || n < 0 {
		return ref, -1
	}
	return ref[:i], n
}

func decodeICO(r io.Reader, index int) (image.Image, error) {
	if index < 0 {
		return ico.Decode(r)
	}
	all, err := ico.DecodeAll(r)
	if err != nil {
		return nil, err
	}
	if index >= len(all) {
		return nil, fmt.Errorf("index %d out of range (%d images)", index, len(all))
	}
	return all[index], nil
}

func decodeICNS(r io.Reader) (img image.Image, err error) {
	// The decoder indexes its icon list without checking for an empty file.
	defer func() {
		if p := recover(); p != nil {
			img, err = nil, fmt.Errorf("malformed icns: %v", p)
		}
	}()
	return icns.Decode(r)
}
