package ui

import (
	"fmt"
	"os"
	"strings"
)

// Color escapes used by every Print helper. They are rewritten once at
// startup by the selected theme and stay empty when color is off.
var (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[91m"
	ColorGreen  = "\033[92m"
	ColorYellow = "\033[93m"
	ColorBlue   = "\033[94m"
	ColorPurple = "\033[95m"
	ColorCyan   = "\033[96m"
	ColorBold   = "\033[1m"
	ActiveTheme = "nord"
)

// Symbols prefixing output lines, one per kind of event.
var (
	SymbolCheck    = "✓"
	SymbolCross    = "✗"
	SymbolArrow    = "→"
	SymbolMusic    = "♪"
	SymbolUpload   = "⬆"
	SymbolDownload = "⬇"
	SymbolInfo     = "ℹ"
	SymbolWarning  = "⚠"
	SymbolKey      = "🔑"
	SymbolBook     = "📖"
	SymbolVideo    = "🎬"
	SymbolRecord   = "⏺"
)

type colorDepth int

const (
	depthBasic colorDepth = iota
	depth256
	depthTrue
)

func detectColorDepth(getenv func(string) string) colorDepth {
	term := strings.ToLower(getenv("TERM"))
	colorTerm := strings.ToLower(getenv("COLORTERM"))
	for _, s := range []string{term, colorTerm} {
		if strings.Contains(s, "truecolor") || strings.Contains(s, "24bit") {
			return depthTrue
		}
	}
	if strings.Contains(term, "256color") {
		return depth256
	}
	return depthBasic
}

// rgb is a truecolor triple plus its nearest xterm-256 index.
type rgb struct {
	r, g, b uint8
	x256    int
}

func (c rgb) escape(depth colorDepth) string {
	switch depth {
	case depthTrue:
		return fmt.Sprintf("\033[1;38;2;%d;%d;%dm", c.r, c.g, c.b)
	case depth256:
		return fmt.Sprintf("\033[1;38;5;%dm", c.x256)
	default:
		return ""
	}
}

// palette holds the six accent colors of a theme. bright switches the
// basic-ANSI fallback to bold variants.
type palette struct {
	red, green, yellow, blue, purple, cyan rgb
	bright                                 bool
}

var palettes = map[string]palette{
	"nord": {
		red:    rgb{224, 108, 117, 210},
		green:  rgb{152, 195, 121, 114},
		yellow: rgb{229, 192, 123, 222},
		blue:   rgb{143, 188, 255, 111},
		purple: rgb{180, 142, 255, 183},
		cyan:   rgb{136, 220, 255, 159},
	},
	"vivid": {
		red:    rgb{255, 76, 102, 203},
		green:  rgb{80, 250, 123, 84},
		yellow: rgb{255, 221, 87, 227},
		blue:   rgb{110, 196, 255, 81},
		purple: rgb{215, 130, 255, 177},
		cyan:   rgb{0, 245, 255, 51},
		bright: true,
	},
}

func init() {
	InitColorPalette()
}

// InitColorPalette applies the theme named by UDL_THEME (nord, vivid or
// plain). NO_COLOR or a plain theme turns color off.
func InitColorPalette() {
	name := strings.ToLower(strings.TrimSpace(os.Getenv("UDL_THEME")))
	if os.Getenv("NO_COLOR") != "" {
		name = "plain"
	}
	applyTheme(name, detectColorDepth(os.Getenv))
}

func applyTheme(name string, depth colorDepth) {
	if name == "plain" {
		ActiveTheme = name
		disableColors()
		return
	}
	p, ok := palettes[name]
	if !ok {
		name, p = "nord", palettes["nord"]
	}
	ActiveTheme = name

	if depth == depthBasic {
		// Keep the stock 16-color escapes, bolded for bright themes.
		if p.bright {
			ColorRed, ColorGreen, ColorYellow = "\033[1;91m", "\033[1;92m", "\033[1;93m"
			ColorBlue, ColorPurple, ColorCyan = "\033[1;94m", "\033[1;95m", "\033[1;96m"
		}
		return
	}
	ColorRed = p.red.escape(depth)
	ColorGreen = p.green.escape(depth)
	ColorYellow = p.yellow.escape(depth)
	ColorBlue = p.blue.escape(depth)
	ColorPurple = p.purple.escape(depth)
	ColorCyan = p.cyan.escape(depth)
}

func disableColors() {
	for _, c := range []*string{&ColorReset, &ColorRed, &ColorGreen, &ColorYellow, &ColorBlue, &ColorPurple, &ColorCyan, &ColorBold} {
		*c = ""
	}
}
