package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/mixdeck-io/mixdeck/internal/rgb565"
)

// AppOverride changes how one application, matched by its raw display
// name, appears on the display.
type AppOverride struct {
	Name     string       `yaml:"name"`
	Rename   string       `yaml:"rename,omitempty"`
	Priority *int         `yaml:"priority,omitempty"`
	Color    *PackedColor `yaml:"color,omitempty"`
}

// PackedColor is an R5G6B5 color. In YAML it is either the packed integer
// or a "#RRGGBB" string.
type PackedColor uint16

func (c *PackedColor) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: color must be a number or #RRGGBB", node.Line)
	}

	if strings.HasPrefix(node.Value, "#") {
		col, err := colorful.Hex(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: invalid color %q: %w", node.Line, node.Value, err)
		}
		r, g, b := col.RGB255()
		*c = PackedColor(rgb565.Pack(r, g, b))
		return nil
	}

	v, err := strconv.ParseUint(node.Value, 0, 16)
	if err != nil {
		return fmt.Errorf("line %d: invalid color %q: %w", node.Line, node.Value, err)
	}
	*c = PackedColor(v)
	return nil
}

// Hex renders the color as #RRGGBB.
func (c PackedColor) Hex() string {
	rgba := rgb565.Unpack(uint16(c))
	col, _ := colorful.MakeColor(rgba)
	return col.Hex()
}

// Duration is a time.Duration written as "5s" in YAML.
type Duration time.Duration

// Std returns the standard library value.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if n, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	*d = Duration(v)
	return nil
}
