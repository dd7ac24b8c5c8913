// Package imageproc turns upstream image bytes into EBDImages: decode,
// bound, resize, quantize, encode, all under the request budget.
package imageproc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"

	"github.com/hashicorp/go-hclog"
	"github.com/nfnt/resize"
	"golang.org/x/sync/semaphore"

	"github.com/openxiino/dataserver/internal/budget"
	"github.com/openxiino/dataserver/internal/config"
	"github.com/openxiino/dataserver/internal/device"
	"github.com/openxiino/dataserver/internal/ebd"
	"github.com/openxiino/dataserver/internal/palette"
)

var (
	// ErrTooLarge rejects images over the admission or decoded-bounds caps.
	ErrTooLarge = errors.New("imageproc: image too large")
	// ErrTimeout is returned when a processing stage ran out of time.
	ErrTimeout = errors.New("imageproc: processing timeout")
	// ErrBudget is returned when the page budget cannot absorb the encoded
	// image. The caller substitutes ALT text; the page itself survives.
	ErrBudget = errors.New("imageproc: page budget exhausted")
)

// xiinoMaxWidth is the widest screen any supported device has; sources
// wider than this are fixed to half the screen.
const xiinoMaxWidth = 306

// Attrs are the replacement attributes for a rewritten IMG tag.
type Attrs struct {
	Src       string
	EBDWidth  int
	EBDHeight int
}

// Processor runs the CPU-bound image pipeline on a bounded worker pool so
// image work cannot starve the request handlers.
type Processor struct {
	cfg     *config.Config
	log     hclog.Logger
	workers *semaphore.Weighted
}

// New creates a processor with a pool sized to the logical CPU count.
func New(cfg *config.Config, log hclog.Logger) *Processor {
	return &Processor{
		cfg:     cfg,
		log:     log,
		workers: semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
}

// ScaleDimensions applies the Xiino scaling law: sources wider than 306 px
// land at 153 px; everything else halves. Height follows the width ratio.
// Results never drop below one pixel.
func ScaleDimensions(w, h int) (int, int) {
	var tw int
	if w > xiinoMaxWidth {
		tw = xiinoMaxWidth / 2
	} else {
		tw = w / 2
	}
	if tw < 1 {
		tw = 1
	}
	th := h * tw / w
	if th < 1 {
		th = 1
	}
	return tw, th
}

// Transcode converts one image through the full pipeline. Image-level
// failures are returned as errors for the caller to isolate; the page they
// came from is never failed here.
func (p *Processor) Transcode(ctx context.Context, data []byte, contentType string, dev device.Profile, b *budget.Budget) (*ebd.Image, Attrs, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ImageTimeout())
	defer cancel()

	// Admission: reject before any decode work.
	if len(data) > p.cfg.MaxImageBytes() {
		return nil, Attrs{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	isSVG := looksLikeSVG(contentType, data)
	if isSVG && len(data) > p.cfg.MaxSVGBytes() {
		return nil, Attrs{}, fmt.Errorf("%w: svg %d bytes", ErrTooLarge, len(data))
	}

	// Stages 2-5 are CPU-bound; hold a worker slot for all of them.
	if err := p.workers.Acquire(ctx, 1); err != nil {
		return nil, Attrs{}, fmt.Errorf("%w: waiting for worker", ErrTimeout)
	}
	defer p.workers.Release(1)

	var flat *image.RGBA
	if isSVG {
		var err error
		flat, err = p.renderSVG(ctx, data)
		if err != nil {
			return nil, Attrs{}, err
		}
	} else {
		img, err := decodeRaster(data)
		if err != nil {
			return nil, Attrs{}, err
		}
		bounds := img.Bounds()
		w, h := bounds.Dx(), bounds.Dy()
		if w*h > p.cfg.Image.MaxPixels || w > p.cfg.Image.MaxDimension || h > p.cfg.Image.MaxDimension {
			return nil, Attrs{}, fmt.Errorf("%w: %dx%d", ErrTooLarge, w, h)
		}
		flat = p.resizeImage(img)
	}

	if err := ctx.Err(); err != nil {
		return nil, Attrs{}, fmt.Errorf("%w: before quantize", ErrTimeout)
	}

	pal := palette.ForDepth(dev.Color, dev.Depth)
	indices := quantize(flat, pal, p.cfg.Image.DitherPriority)

	w := flat.Bounds().Dx()
	h := flat.Bounds().Dy()
	im, err := ebd.Encode(w, h, dev.Depth, indices)
	if err != nil {
		return nil, Attrs{}, err
	}
	im.Gray = !dev.Color

	if !b.TakeImage(im.Size()) {
		return nil, Attrs{}, fmt.Errorf("%w: %d bytes over remainder", ErrBudget, im.Size())
	}

	src := im.Serialize()
	if p.cfg.Image.EBDCompress {
		src = im.SerializeCompressed()
	}
	p.log.Debug("transcoded image",
		"size", len(data), "out", im.Size(), "dims", fmt.Sprintf("%dx%d", w, h), "depth", dev.Depth)

	return im, Attrs{Src: src, EBDWidth: w, EBDHeight: h}, nil
}

// renderSVG rasterizes directly at the post-resize dimensions so the
// document's notional size never allocates a large intermediate.
func (p *Processor) renderSVG(ctx context.Context, data []byte) (*image.RGBA, error) {
	nw, nh := svgNotionalSize(data)
	tw, th := ScaleDimensions(nw, nh)

	svgCtx, cancel := context.WithTimeout(ctx, p.cfg.SVGTimeout())
	defer cancel()
	img, err := rasterizeSVG(svgCtx, data, tw, th)
	if err != nil {
		return nil, err
	}
	return flattenToRGBA(img), nil
}

func (p *Processor) resizeImage(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	tw, th := ScaleDimensions(bounds.Dx(), bounds.Dy())

	interp := resize.Lanczos3
	if p.cfg.Image.DitherPriority == config.DitherPerformance {
		interp = resize.Bilinear
	}
	return flattenToRGBA(resize.Resize(uint(tw), uint(th), img, interp))
}
