package flow

import (
	"context"
	"image"
	"image/draw"
	"math"

	"github.com/pkg/errors"
)

// BlockMatcher estimates flow by exhaustive block matching: every block of the
// first image is assigned the integer shift within SearchRadius that minimizes the
// sum of absolute luminance differences, and all pixels of the block share it.
type BlockMatcher struct {
	BlockSize    int
	SearchRadius int
}

// NewBlockMatcher creates a block matcher.
func NewBlockMatcher(blockSize, searchRadius int) *BlockMatcher {
	return &BlockMatcher{BlockSize: blockSize, SearchRadius: searchRadius}
}

// EstimateFlow returns the displacement field from a to b.
func (bm *BlockMatcher) EstimateFlow(ctx context.Context, a, b image.Image) (*Field, error) {
	if a.Bounds().Size() != b.Bounds().Size() {
		return nil, errors.Errorf("image sizes differ: %v vs %v", a.Bounds().Size(), b.Bounds().Size())
	}
	if bm.BlockSize < 1 || bm.SearchRadius < 0 {
		return nil, errors.Errorf("invalid block matcher settings %d/%d", bm.BlockSize, bm.SearchRadius)
	}
	ga, gb := toGray(a), toGray(b)
	w, h := ga.Rect.Dx(), ga.Rect.Dy()
	field := NewField(w, h)

	for by := 0; by < h; by += bm.BlockSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for bx := 0; bx < w; bx += bm.BlockSize {
			block := image.Rect(bx, by, bx+bm.BlockSize, by+bm.BlockSize).Intersect(ga.Rect)
			dx, dy := bm.bestShift(ga, gb, block)
			for y := block.Min.Y; y < block.Max.Y; y++ {
				for x := block.Min.X; x < block.Max.X; x++ {
					field.Set(x, y, float32(dx), float32(dy))
				}
			}
		}
	}
	return field, nil
}

// bestShift prefers the smallest shift among equal costs so flat regions stay at zero.
func (bm *BlockMatcher) bestShift(a, b *image.Gray, block image.Rectangle) (int, int) {
	bestCost := math.Inf(1)
	bestDX, bestDY := 0, 0
	bestMag := 0
	for dy := -bm.SearchRadius; dy <= bm.SearchRadius; dy++ {
		for dx := -bm.SearchRadius; dx <= bm.SearchRadius; dx++ {
			shifted := block.Add(image.Pt(dx, dy))
			if !shifted.In(b.Rect) {
				continue
			}
			cost := 0.0
			for y := block.Min.Y; y < block.Max.Y; y++ {
				for x := block.Min.X; x < block.Max.X; x++ {
					d := int(a.GrayAt(x, y).Y) - int(b.GrayAt(x+dx, y+dy).Y)
					if d < 0 {
						d = -d
					}
					cost += float64(d)
				}
			}
			mag := dx*dx + dy*dy
			if cost < bestCost || (cost == bestCost && mag < bestMag) {
				bestCost, bestDX, bestDY, bestMag = cost, dx, dy, mag
			}
		}
	}
	return bestDX, bestDY
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Rect, img, b.Min, draw.Src)
	return g
}
