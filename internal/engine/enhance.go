package engine

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Enhancer prepares page images for local OCR: grayscale, a percentile
// contrast stretch, and upscaling of narrow scans.
type Enhancer struct {
	MinWidth int     // pages narrower than this are upscaled; 0 disables
	Clip     float64 // fraction of pixels clipped at each end of the histogram
}

func NewEnhancer() *Enhancer {
	return &Enhancer{MinWidth: 1600, Clip: 0.01}
}

// Process returns the enhanced image encoded as PNG.
func (e *Enhancer) Process(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	gray := toGray(src)
	stretchContrast(gray, e.Clip)

	var out image.Image = gray
	if b := gray.Bounds(); e.MinWidth > 0 && b.Dx() > 0 && b.Dx() < e.MinWidth {
		scale := float64(e.MinWidth) / float64(b.Dx())
		dst := image.NewGray(image.Rect(0, 0, e.MinWidth, int(float64(b.Dy())*scale+0.5)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), gray, b, draw.Src, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// stretchContrast maps the [lo, hi] percentile band of g onto the full 0-255 range.
func stretchContrast(g *image.Gray, clip float64) {
	var hist [256]int
	for _, p := range g.Pix {
		hist[p]++
	}
	total := len(g.Pix)
	if total == 0 {
		return
	}
	cut := int(float64(total) * clip)

	lo, acc := 0, 0
	for ; lo < 255; lo++ {
		acc += hist[lo]
		if acc > cut {
			break
		}
	}
	hi := 255
	acc = 0
	for ; hi > 0; hi-- {
		acc += hist[hi]
		if acc > cut {
			break
		}
	}
	if hi <= lo {
		return
	}

	var lut [256]uint8
	for i := range lut {
		switch {
		case i <= lo:
			lut[i] = 0
		case i >= hi:
			lut[i] = 255
		default:
			lut[i] = uint8((i - lo) * 255 / (hi - lo))
		}
	}
	for i, p := range g.Pix {
		g.Pix[i] = lut[p]
	}
}
