package palette

import "sync"

// The Palm web-safe palette: the 216-color cube ordered from white down to
// black (blue varying fastest), followed by ten intermediate grays and the
// five halftone system colors the cube cannot express. Indices 231-255 pad
// out with black. Index 0 must be white and grayscale ramps run light to
// dark: Xiino treats low indices as light.

var (
	initOnce sync.Once

	color256 *Palette
	gray16   *Palette
	gray4    *Palette
	gray2    *Palette
)

func buildColor256() *Palette {
	ramp := [6]uint8{0xFF, 0xCC, 0x99, 0x66, 0x33, 0x00}
	colors := make([]RGB, 0, 256)
	for _, r := range ramp {
		for _, g := range ramp {
			for _, b := range ramp {
				colors = append(colors, RGB{r, g, b})
			}
		}
	}
	for _, v := range [10]uint8{0xEE, 0xDD, 0xBB, 0xAA, 0x88, 0x77, 0x55, 0x44, 0x22, 0x11} {
		colors = append(colors, RGB{v, v, v})
	}
	colors = append(colors,
		RGB{0xC0, 0xC0, 0xC0},
		RGB{0x80, 0x80, 0x80},
		RGB{0x80, 0x00, 0x00},
		RGB{0x00, 0x80, 0x00},
		RGB{0x00, 0x00, 0x80},
	)
	for len(colors) < 256 {
		colors = append(colors, RGB{0, 0, 0})
	}
	return New(colors, false)
}

// buildGray returns a grayscale ramp with the requested number of levels,
// perceptually even in L* and ordered white to black.
func buildGray(levels int) *Palette {
	colors := make([]RGB, levels)
	for i := 0; i < levels; i++ {
		l := 100 * float64(levels-1-i) / float64(levels-1)
		colors[i] = LabToRGB(Lab{L: l})
	}
	return New(colors, true)
}

func initPalettes() {
	initOnce.Do(func() {
		color256 = buildColor256()
		gray16 = buildGray(16)
		gray4 = buildGray(4)
		gray2 = buildGray(2)
	})
}

// Color256 returns the 256-entry Palm web-safe palette.
func Color256() *Palette {
	initPalettes()
	return color256
}

// Gray16 returns the 16-entry grayscale palette used by 4-bit devices.
func Gray16() *Palette {
	initPalettes()
	return gray16
}

// ForDepth returns the palette for a device of the given color capability
// and bit depth. Unknown depths fall back to the richest palette of their
// class.
func ForDepth(colorDevice bool, depth int) *Palette {
	initPalettes()
	if colorDevice {
		return color256
	}
	switch depth {
	case 1:
		return gray2
	case 2:
		return gray4
	default:
		return gray16
	}
}
