package imageproc

import (
	"image"

	"github.com/openxiino/dataserver/internal/config"
	"github.com/openxiino/dataserver/internal/palette"
)

// bayer8 is the classic 8x8 ordered-dither threshold matrix, values 0-63.
var bayer8 = [8][8]int{
	{0, 32, 8, 40, 2, 34, 10, 42},
	{48, 16, 56, 24, 50, 18, 58, 26},
	{12, 44, 4, 36, 14, 46, 6, 38},
	{60, 28, 52, 20, 62, 30, 54, 22},
	{3, 35, 11, 43, 1, 33, 9, 41},
	{51, 19, 59, 27, 49, 17, 57, 25},
	{15, 47, 7, 39, 13, 45, 5, 37},
	{63, 31, 55, 23, 61, 29, 53, 21},
}

// quantize reduces img to palette indices using the configured dithering
// strategy.
func quantize(img *image.RGBA, pal *palette.Palette, priority config.DitherPriority) []uint8 {
	if priority == config.DitherPerformance {
		return orderedDither(img, pal)
	}
	return diffusionDither(img, pal)
}

// diffusionDither runs Floyd-Steinberg error diffusion with the working
// pixels and the propagated error held in LAB, so the diffusion follows
// perceived rather than numeric color differences. Rows alternate
// direction (serpentine) to avoid the left-to-right drift plain raster
// order produces.
func diffusionDither(img *image.RGBA, pal *palette.Palette) []uint8 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	work := make([]palette.Lab, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			work[y*w+x] = palette.RGBToLab(palette.RGB{
				R: img.Pix[o], G: img.Pix[o+1], B: img.Pix[o+2],
			})
		}
	}

	indices := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		ltr := y%2 == 0
		for i := 0; i < w; i++ {
			x := i
			if !ltr {
				x = w - 1 - i
			}
			px := work[y*w+x]
			idx := pal.NearestLab(px)
			indices[y*w+x] = idx

			chosen := pal.LabAt(int(idx))
			errL := px.L - chosen.L
			errA := px.A - chosen.A
			errB := px.B - chosen.B

			// Floyd-Steinberg weights, mirrored on right-to-left rows.
			spread := func(dx, dy int, weight float64) {
				if !ltr {
					dx = -dx
				}
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= w || ny >= h {
					return
				}
				n := &work[ny*w+nx]
				n.L += errL * weight
				n.A += errA * weight
				n.B += errB * weight
			}
			spread(1, 0, 7.0/16)
			spread(-1, 1, 3.0/16)
			spread(0, 1, 5.0/16)
			spread(1, 1, 1.0/16)
		}
	}
	return indices
}

// orderedDither applies the 8x8 Bayer matrix in RGB with no error
// propagation. Each pixel is perturbed by its cell's threshold and mapped
// through the palette lookup cube; rows are independent.
func orderedDither(img *image.RGBA, pal *palette.Palette) []uint8 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	indices := make([]uint8, w*h)

	for y := 0; y < h; y++ {
		row := bayer8[y%8]
		for x := 0; x < w; x++ {
			o := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			// Threshold centered on zero, scaled to roughly one palette
			// step: (t/64 - 0.5) * 32.
			t := row[x%8]
			offset := t/2 - 16
			indices[y*w+x] = pal.IndexOfRGB(palette.RGB{
				R: clampU8(int(img.Pix[o]) + offset),
				G: clampU8(int(img.Pix[o+1]) + offset),
				B: clampU8(int(img.Pix[o+2]) + offset),
			})
		}
	}
	return indices
}

func clampU8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
