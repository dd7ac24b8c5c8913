package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// decodeRaster decodes any registered raster format. Animated formats
// contribute their first frame only (the gif decoder's Decode does this).
func decodeRaster(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imageproc: decoding: %w", err)
	}
	return img, nil
}

// flattenToRGBA mattes the image onto a white background, discarding any
// alpha channel. Xiino has no notion of transparency.
func flattenToRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
	return out
}

// looksLikeSVG sniffs the payload for an svg document root; content types
// are not always honest about vector images.
func looksLikeSVG(contentType string, data []byte) bool {
	if strings.Contains(contentType, "svg") {
		return true
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}
