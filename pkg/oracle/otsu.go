package oracle

import (
	"context"
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"mvprep/pkg/mask"
)

// OtsuSegmenter separates foreground from background with a global Otsu
// threshold on luminance. The class whose mean differs most from the region's
// border is taken as foreground. Prompts restrict the region that is thresholded.
type OtsuSegmenter struct{}

// NewOtsuSegmenter creates a local segmenter.
func NewOtsuSegmenter() *OtsuSegmenter {
	return &OtsuSegmenter{}
}

// Segment thresholds the whole image.
func (s *OtsuSegmenter) Segment(ctx context.Context, img image.Image) (*mask.Mask, error) {
	gray := grayOf(img)
	return s.segmentRegion(gray, gray.Rect), nil
}

// SegmentWithPrompt thresholds the prompt box, or the bounding box of the prompt
// mask padded by a quarter of its larger side so the background is sampled too.
func (s *OtsuSegmenter) SegmentWithPrompt(ctx context.Context, img image.Image, p Prompt) (*mask.Mask, error) {
	gray := grayOf(img)
	region := gray.Rect
	switch {
	case p.Box != nil:
		region = p.Box.Intersect(gray.Rect)
	case p.Mask != nil:
		if p.Mask.Width != gray.Rect.Dx() || p.Mask.Height != gray.Rect.Dy() {
			return nil, errors.Errorf("prompt mask %dx%d does not match image %dx%d",
				p.Mask.Width, p.Mask.Height, gray.Rect.Dx(), gray.Rect.Dy())
		}
		support, ok := p.Mask.Support()
		if !ok {
			return mask.New(gray.Rect.Dx(), gray.Rect.Dy()), nil
		}
		pad := support.Dx()
		if support.Dy() > pad {
			pad = support.Dy()
		}
		pad = pad/4 + 1
		region = support.Inset(-pad).Intersect(gray.Rect)
	}
	if region.Empty() {
		return mask.New(gray.Rect.Dx(), gray.Rect.Dy()), nil
	}
	return s.segmentRegion(gray, region), nil
}

func (s *OtsuSegmenter) segmentRegion(gray *image.Gray, region image.Rectangle) *mask.Mask {
	out := mask.New(gray.Rect.Dx(), gray.Rect.Dy())

	var hist [256]float64
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}
	threshold, ok := otsuThreshold(hist)
	if !ok {
		return out
	}

	border := borderValues(gray, region)
	borderMean := stat.Mean(border, nil)
	lowMean, highMean := classMeans(hist, threshold)
	brightForeground := math.Abs(highMean-borderMean) >= math.Abs(lowMean-borderMean)

	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			high := gray.GrayAt(x, y).Y > threshold
			out.Set(x, y, high == brightForeground)
		}
	}
	return out
}

// otsuThreshold returns the level maximizing between-class variance; values
// above it form the high class. ok is false for single-valued histograms.
func otsuThreshold(hist [256]float64) (uint8, bool) {
	levels := make([]float64, 256)
	for i := range levels {
		levels[i] = float64(i)
	}
	total := 0.0
	for _, c := range hist {
		total += c
	}
	if total == 0 {
		return 0, false
	}
	mean := stat.Mean(levels, hist[:])

	best, bestVar := 0, -1.0
	w0, sum0 := 0.0, 0.0
	for t := 0; t < 255; t++ {
		w0 += hist[t]
		sum0 += float64(t) * hist[t]
		w1 := total - w0
		if w0 == 0 || w1 == 0 {
			continue
		}
		m0 := sum0 / w0
		m1 := (mean*total - sum0) / w1
		v := w0 * w1 * (m0 - m1) * (m0 - m1)
		if v > bestVar {
			best, bestVar = t, v
		}
	}
	if bestVar < 0 {
		return 0, false
	}
	return uint8(best), true
}

func classMeans(hist [256]float64, threshold uint8) (low, high float64) {
	levels := make([]float64, 256)
	for i := range levels {
		levels[i] = float64(i)
	}
	t := int(threshold) + 1
	return stat.Mean(levels[:t], hist[:t]), stat.Mean(levels[t:], hist[t:])
}

func borderValues(gray *image.Gray, r image.Rectangle) []float64 {
	var out []float64
	for x := r.Min.X; x < r.Max.X; x++ {
		out = append(out, float64(gray.GrayAt(x, r.Min.Y).Y), float64(gray.GrayAt(x, r.Max.Y-1).Y))
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		out = append(out, float64(gray.GrayAt(r.Min.X, y).Y), float64(gray.GrayAt(r.Max.X-1, y).Y))
	}
	return out
}

func grayOf(img image.Image) *image.Gray {
	n := imaging.Grayscale(img)
	g := image.NewGray(n.Rect)
	draw.Draw(g, g.Rect, n, n.Rect.Min, draw.Src)
	return g
}
