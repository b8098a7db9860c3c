package cli

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mixdeck-io/mixdeck/internal/icon"
	"github.com/mixdeck-io/mixdeck/internal/palette"
	"github.com/mixdeck-io/mixdeck/internal/rgb565"
)

var extractSize int

var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Show the colors the display would derive from an icon",
	Long: `Extract runs the display's color analysis on an image file and prints the
background and accent colors with their packed 16-bit values.

The image may be PNG, JPEG, GIF, BMP, ICO or ICNS. Append ",N" to pick the Nth
image of an ICO file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ex, err := extractColors(icon.FileResolver{}, args[0], extractSize)
		if err != nil {
			return err
		}
		renderExtraction(os.Stdout, args[0], ex, printer{styled: stdoutIsTerminal()})
		return nil
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractSize, "size", 64, "Analysis size in pixels")
}

// extraction is one analyzed image.
type extraction struct {
	Set        palette.ColorSet
	Background uint16
	Accent1    uint16
	Accent2    uint16
}

func extractColors(r icon.Resolver, ref string, size int) (extraction, error) {
	if size <= 0 {
		return extraction{}, fmt.Errorf("size must be positive, got %d", size)
	}
	img, err := r.Resolve(ref)
	if err != nil {
		return extraction{}, fmt.Errorf("failed to load %s: %w", ref, err)
	}

	set := palette.Extract(icon.Fit(img, size))
	return extraction{
		Set:        set,
		Background: rgb565.PackColor(set.Background),
		Accent1:    rgb565.PackColor(set.Accent1),
		Accent2:    rgb565.PackColor(set.Accent2),
	}, nil
}

func renderExtraction(w io.Writer, ref string, ex extraction, p printer) {
	fmt.Fprintln(w, p.render(styleBrand, ref))
	rows := []struct {
		name   string
		c      color.RGBA
		packed uint16
	}{
		{"background", ex.Set.Background, ex.Background},
		{"accent 1", ex.Set.Accent1, ex.Accent1},
		{"accent 2", ex.Set.Accent2, ex.Accent2},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %5d  rgb(%3d, %3d, %3d)  %s\n",
			p.render(styleLabel, fmt.Sprintf("%-10s", r.name)), r.packed, r.c.R, r.c.G, r.c.B, p.swatch(r.packed))
	}
	fmt.Fprintf(w, "\n%s %d\n", p.render(styleHint, "App color sent to the display:"), ex.Accent1)
}
