package propagation

import (
	"image"
	"math"

	"github.com/pkg/errors"

	"mvprep/pkg/flow"
	"mvprep/pkg/mask"
)

// PredictBox warps the previous full-resolution mask into the next frame and
// returns the prompt box for it, in full-resolution pixels.
//
// The mask is reduced by factor to the resolution of the flow field, every
// foreground pixel is moved by its displacement, and the bounding box of the
// moved pixels is grown by shrink times its extent on each side. The box is then
// scaled back up, with the inclusive maximum pixel mapping to the exclusive edge,
// and clipped to bounds. An empty mask, or a box that leaves the image entirely,
// yields bounds. A NaN or infinite displacement under the mask is an error.
func PredictBox(prev *mask.Mask, field *flow.Field, factor int, shrink float64, bounds image.Rectangle) (image.Rectangle, error) {
	if factor < 1 {
		factor = 1
	}
	reduced := prev.Reduce(factor)
	if reduced.Width != field.Width || reduced.Height != field.Height {
		return image.Rectangle{}, errors.Errorf("flow field is %dx%d, reduced mask is %dx%d",
			field.Width, field.Height, reduced.Width, reduced.Height)
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for y := 0; y < reduced.Height; y++ {
		for x := 0; x < reduced.Width; x++ {
			if !reduced.Pix[y*reduced.Width+x] {
				continue
			}
			dx, dy := field.At(x, y)
			if !finite(dx) || !finite(dy) {
				return image.Rectangle{}, errors.Errorf("non-finite flow (%g, %g) at (%d, %d)", dx, dy, x, y)
			}
			wx, wy := float64(x)+float64(dx), float64(y)+float64(dy)
			minX, maxX = math.Min(minX, wx), math.Max(maxX, wx)
			minY, maxY = math.Min(minY, wy), math.Max(maxY, wy)
		}
	}
	if math.IsInf(minX, 1) {
		return bounds, nil
	}

	mx, my := shrink*(maxX-minX), shrink*(maxY-minY)
	minX, maxX = minX-mx, maxX+mx
	minY, maxY = minY-my, maxY+my

	s := float64(factor)
	box := image.Rect(
		int(math.Floor(minX*s)),
		int(math.Floor(minY*s)),
		int(math.Ceil((maxX+1)*s)),
		int(math.Ceil((maxY+1)*s)),
	).Intersect(bounds)
	if box.Empty() {
		return bounds, nil
	}
	return box, nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
