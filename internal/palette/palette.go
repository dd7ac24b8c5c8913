package palette

import "image/color"

// Palette is a fixed, ordered set of colors. The ordinal index of each
// entry is wire-level meaningful: EBDImage pixel bytes index into it.
// Palettes are immutable after construction.
type Palette struct {
	colors []RGB
	lab    []Lab
	cube   []uint8 // cubeBits^3 sRGB buckets -> nearest palette index
	gray   bool
}

// RGB is an 8-bit sRGB triple.
type RGB struct {
	R, G, B uint8
}

const (
	cubeBits  = 5 // 32 buckets per channel
	cubeSize  = 1 << cubeBits
	cubeShift = 8 - cubeBits
)

// New builds a palette from the given colors, precomputing the LAB entries
// and the sRGB lookup cube. The cube maps each of 32x32x32 sRGB buckets
// (bucket center) to its nearest entry by deltaE*76; ties break toward the
// lower index.
func New(colors []RGB, gray bool) *Palette {
	p := &Palette{
		colors: colors,
		lab:    make([]Lab, len(colors)),
		gray:   gray,
	}
	for i, c := range colors {
		p.lab[i] = RGBToLab(c)
	}
	p.cube = make([]uint8, cubeSize*cubeSize*cubeSize)
	for r := 0; r < cubeSize; r++ {
		for g := 0; g < cubeSize; g++ {
			for b := 0; b < cubeSize; b++ {
				c := RGB{
					R: uint8(r<<cubeShift | 1<<(cubeShift-1)),
					G: uint8(g<<cubeShift | 1<<(cubeShift-1)),
					B: uint8(b<<cubeShift | 1<<(cubeShift-1)),
				}
				p.cube[r<<(2*cubeBits)|g<<cubeBits|b] = p.nearest(RGBToLab(c))
			}
		}
	}
	return p
}

// Len returns the number of entries.
func (p *Palette) Len() int { return len(p.colors) }

// Gray reports whether this is a grayscale palette.
func (p *Palette) Gray() bool { return p.gray }

// At returns the color at index i.
func (p *Palette) At(i int) RGB { return p.colors[i] }

// LabAt returns the precomputed LAB value at index i.
func (p *Palette) LabAt(i int) Lab { return p.lab[i] }

// IndexOf returns the palette index nearest to c, using the precomputed
// lookup cube. This is the fast path used per pixel; the cube trades a
// bounded quantization error for a single table read.
func (p *Palette) IndexOf(c color.Color) uint8 {
	r, g, b, _ := c.RGBA()
	return p.IndexOfRGB(RGB{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)})
}

// IndexOfRGB returns the palette index nearest to c via the lookup cube.
func (p *Palette) IndexOfRGB(c RGB) uint8 {
	return p.cube[int(c.R>>cubeShift)<<(2*cubeBits)|
		int(c.G>>cubeShift)<<cubeBits|
		int(c.B>>cubeShift)]
}

// NearestLab returns the palette index nearest to the given LAB value by
// exact deltaE*76 search. Slower than IndexOfRGB; used by the dithering
// path where the working pixel is already in LAB.
func (p *Palette) NearestLab(l Lab) uint8 {
	return p.nearest(l)
}

func (p *Palette) nearest(l Lab) uint8 {
	best := 0
	bestDist := l.DistanceSq(p.lab[0])
	for i := 1; i < len(p.lab); i++ {
		d := l.DistanceSq(p.lab[i])
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return uint8(best)
}
