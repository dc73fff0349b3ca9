// Package propagation carries an object mask through an ordered image sequence.
//
// The first frame is segmented from scratch. Every later frame is segmented with
// a box prompt predicted by warping the previous mask with optical flow computed
// on downscaled images, and only the largest connected component is kept.
package propagation

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mvprep/internal/errdefs"
	"mvprep/pkg/mask"
	"mvprep/pkg/oracle"
)

// Options tunes propagation.
type Options struct {
	// ReduceFactor is the integer downscale applied before flow estimation
	ReduceFactor int

	// Shrink is the margin added on every side of the predicted box, as a
	// fraction of the box extent
	Shrink float64
}

// DefaultOptions returns the default propagation options.
func DefaultOptions() Options {
	return Options{ReduceFactor: 2, Shrink: 0.02}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.ReduceFactor < 1 {
		return errdefs.InvalidArgument("reduce factor must be at least 1, got %d", o.ReduceFactor)
	}
	if o.Shrink < 0 {
		return errdefs.InvalidArgument("shrink must be non-negative, got %g", o.Shrink)
	}
	return nil
}

// Engine runs mask propagation against a segmentation and a flow oracle.
type Engine struct {
	seg    oracle.Segmenter
	flow   oracle.FlowEstimator
	opts   Options
	logger *zap.SugaredLogger
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(seg oracle.Segmenter, fe oracle.FlowEstimator, opts Options, logger *zap.SugaredLogger) (*Engine, error) {
	if seg == nil || fe == nil {
		return nil, errdefs.InvalidArgument("segmenter and flow estimator are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{seg: seg, flow: fe, opts: opts, logger: logger}, nil
}

// state is what the fold carries from one frame to the next.
type state struct {
	prevImage image.Image
	prevMask  *mask.Mask
}

// Run returns one mask per image, in order. Any oracle failure aborts the run.
func (e *Engine) Run(ctx context.Context, images []image.Image) ([]*mask.Mask, error) {
	masks := make([]*mask.Mask, 0, len(images))
	var st state
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			m   *mask.Mask
			err error
		)
		if i == 0 {
			m, err = e.bootstrap(ctx, img)
		} else {
			m, err = e.propagate(ctx, st, img)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", i)
		}
		if !m.Bounds().Eq(img.Bounds().Sub(img.Bounds().Min)) {
			return nil, errors.Errorf("frame %d: segmenter returned a %dx%d mask for a %dx%d image",
				i, m.Width, m.Height, img.Bounds().Dx(), img.Bounds().Dy())
		}
		e.logger.Debugw("propagated mask", "frame", i, "foreground", m.Count())
		masks = append(masks, m)
		st = state{prevImage: img, prevMask: m}
	}
	return masks, nil
}

// bootstrap segments the first frame: a coarse unprompted pass seeds a refined
// mask-prompted pass.
func (e *Engine) bootstrap(ctx context.Context, img image.Image) (*mask.Mask, error) {
	rough, err := e.seg.Segment(ctx, img)
	if err != nil {
		return nil, errors.Wrap(err, "initial segmentation")
	}
	refined, err := e.seg.SegmentWithPrompt(ctx, img, oracle.MaskPrompt(rough))
	if err != nil {
		return nil, errors.Wrap(err, "refined segmentation")
	}
	return refined, nil
}

func (e *Engine) propagate(ctx context.Context, st state, img image.Image) (*mask.Mask, error) {
	f := e.opts.ReduceFactor
	prev := reduceImage(st.prevImage, f)
	cur := reduceImage(img, f)
	field, err := e.flow.EstimateFlow(ctx, prev, cur)
	if err != nil {
		return nil, errors.Wrap(err, "optical flow")
	}

	bounds := img.Bounds().Sub(img.Bounds().Min)
	box, err := PredictBox(st.prevMask, field, f, e.opts.Shrink, bounds)
	if err != nil {
		return nil, err
	}
	e.logger.Debugw("predicted box", "box", box)

	seg, err := e.seg.SegmentWithPrompt(ctx, img, oracle.BoxPrompt(box))
	if err != nil {
		return nil, errors.Wrap(err, "box segmentation")
	}
	largest, sel := mask.KeepLargest(seg)
	if !sel.Found {
		e.logger.Debug("no foreground component, using the full image")
		return mask.Full(seg.Width, seg.Height), nil
	}
	return largest, nil
}

// reduceImage downscales img by an integer factor with a box filter. The result
// has ceil(w/factor) x ceil(h/factor) pixels, matching mask.Reduce.
func reduceImage(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	w := (b.Dx() + factor - 1) / factor
	h := (b.Dy() + factor - 1) / factor
	return imaging.Resize(img, w, h, imaging.Box)
}
