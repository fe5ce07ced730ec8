package richtext

import (
	"regexp"
	"strings"
)

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// namedColors covers the CSS keywords that actually show up in chat
// markup. Values are normalized #rrggbb.
var namedColors = map[string]string{
	"black":   "#000000",
	"silver":  "#c0c0c0",
	"gray":    "#808080",
	"grey":    "#808080",
	"white":   "#ffffff",
	"maroon":  "#800000",
	"red":     "#ff0000",
	"purple":  "#800080",
	"fuchsia": "#ff00ff",
	"magenta": "#ff00ff",
	"green":   "#008000",
	"lime":    "#00ff00",
	"olive":   "#808000",
	"yellow":  "#ffff00",
	"navy":    "#000080",
	"blue":    "#0000ff",
	"teal":    "#008080",
	"aqua":    "#00ffff",
	"cyan":    "#00ffff",
	"orange":  "#ffa500",
	"brown":   "#a52a2a",
	"pink":    "#ffc0cb",
	"gold":    "#ffd700",
	"indigo":  "#4b0082",
	"violet":  "#ee82ee",
	"crimson": "#dc143c",
	"coral":   "#ff7f50",
	"salmon":  "#fa8072",
	"khaki":   "#f0e68c",
	"plum":    "#dda0dd",
	"orchid":  "#da70d6",
	"tomato":  "#ff6347",
}

// parseColor accepts a hex or named CSS color and normalizes it to
// lowercase #rrggbb. Anything else is an unsupported attribute value and
// falls back to the inherited color.
func parseColor(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if hexColorPattern.MatchString(s) {
		if len(s) == 4 {
			return "#" + strings.Repeat(string(s[1]), 2) +
				strings.Repeat(string(s[2]), 2) +
				strings.Repeat(string(s[3]), 2), true
		}
		return s, true
	}
	if hex, ok := namedColors[s]; ok {
		return hex, true
	}
	return "", false
}

// parseStyleColors pulls color and background-color declarations out of an
// inline style attribute. Everything else in the declaration list is
// ignored.
func parseStyleColors(style string) (fg, bg string) {
	for _, decl := range strings.Split(style, ";") {
		name, value, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "color":
			if c, ok := parseColor(value); ok {
				fg = c
			}
		case "background-color", "background":
			if c, ok := parseColor(value); ok {
				bg = c
			}
		}
	}
	return fg, bg
}
