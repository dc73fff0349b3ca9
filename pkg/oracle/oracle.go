// Package oracle defines the external model services the masking pipeline
// consults: a promptable segmentation model and a dense optical-flow model.
//
// Two backends are provided: Client talks to a model server over HTTP and the
// local backend (OtsuSegmenter plus flow.BlockMatcher) runs without one.
package oracle

import (
	"context"
	"image"

	"mvprep/pkg/flow"
	"mvprep/pkg/mask"
)

// Prompt seeds a segmentation with a prior. Exactly one of Mask or Box should be
// set; a zero Prompt asks for an unprompted segmentation.
type Prompt struct {
	// Mask is a rough prior mask with the image's size
	Mask *mask.Mask

	// Box is a half-open pixel rectangle enclosing the object
	Box *image.Rectangle
}

// BoxPrompt returns a Prompt holding a copy of r.
func BoxPrompt(r image.Rectangle) Prompt {
	return Prompt{Box: &r}
}

// MaskPrompt returns a Prompt holding m.
func MaskPrompt(m *mask.Mask) Prompt {
	return Prompt{Mask: m}
}

// Segmenter is a promptable foreground segmentation model.
type Segmenter interface {
	// Segment returns a coarse foreground mask without any prior.
	Segment(ctx context.Context, img image.Image) (*mask.Mask, error)

	// SegmentWithPrompt returns a foreground mask guided by a prior mask or box.
	SegmentWithPrompt(ctx context.Context, img image.Image, p Prompt) (*mask.Mask, error)
}

// FlowEstimator is a dense optical-flow model.
type FlowEstimator interface {
	// EstimateFlow returns the per-pixel displacement from a to b.
	EstimateFlow(ctx context.Context, a, b image.Image) (*flow.Field, error)
}

var _ FlowEstimator = (*flow.BlockMatcher)(nil)
