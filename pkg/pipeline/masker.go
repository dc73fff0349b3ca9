// Package pipeline runs the object masking pipeline over a dataset: mask
// propagation, masked copies of the originals, camera normalization, scene
// carving and re-cropping, and persistence of the results.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mvprep/internal/errdefs"
	"mvprep/internal/models"
	"mvprep/pkg/carving"
	"mvprep/pkg/dataset"
	"mvprep/pkg/mask"
	"mvprep/pkg/oracle"
	"mvprep/pkg/posemath"
	"mvprep/pkg/propagation"
)

// Params holds the masking pipeline configuration.
type Params struct {
	// Propagation tunes the mask propagation engine
	Propagation propagation.Options

	// Carving controls the voxel grid used to carve the shared volume
	Carving carving.Options

	// CopyOrg saves each original composited with its raw mask, and the raw mask
	CopyOrg bool

	// AdjustCameras normalizes, carves and re-crops after propagation
	AdjustCameras bool

	// MaskDir receives raw masks (<stem>.png) and final masks (%06d.png)
	MaskDir string

	// MaskedImageDir receives masked originals and cropped images (%06d.png)
	MaskedImageDir string

	// Workers bounds concurrent file reads and writes
	Workers int

	// SaveIntermediaryResults determines whether to save intermediary processing results.
	SaveIntermediaryResults bool

	// IntermediaryDir is the directory where intermediary results will be saved.
	IntermediaryDir string
}

// Masker computes object masks for every frame of a dataset.
type Masker struct {
	params *Params
	engine *propagation.Engine
	logger *zap.SugaredLogger
}

// NewMasker creates a masker consulting seg and fe. A nil logger disables logging.
func NewMasker(params *Params, seg oracle.Segmenter, fe oracle.FlowEstimator, logger *zap.SugaredLogger) (*Masker, error) {
	if params.MaskDir == "" || params.MaskedImageDir == "" {
		return nil, errdefs.InvalidArgument("mask and masked image directories are required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	engine, err := propagation.NewEngine(seg, fe, params.Propagation, logger.Named("propagation"))
	if err != nil {
		return nil, err
	}
	return &Masker{params: params, engine: engine, logger: logger}, nil
}

// run is the state of one Process call.
type run struct {
	*Masker
	logger *zap.SugaredLogger
}

// Process runs the pipeline and returns the new dataset and the final masks.
// An attached reconstruction is dropped from the result: masking and cropping
// invalidate it. The input dataset is never modified.
func (m *Masker) Process(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, []*mask.Mask, error) {
	r := &run{Masker: m, logger: m.logger.With("run", uuid.New().String())}
	start := time.Now()

	if len(ds.Frames) == 0 {
		return nil, nil, errdefs.DegenerateInput("dataset has no frames")
	}
	if m.params.AdjustCameras {
		for i, f := range ds.Frames {
			if !f.Camera.IsPinhole() {
				return nil, nil, errdefs.PreconditionViolation("frame %d: camera model %s is not a pinhole model", i, f.Camera.Model)
			}
		}
	}
	if ds.Reconstruction != nil {
		r.logger.Warn("dataset has a sparse reconstruction; masking will invalidate it and it is dropped from the result")
	}
	out := ds.WithoutReconstruction()

	for _, dir := range []string{m.params.MaskDir, m.params.MaskedImageDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, errors.Wrap(err, "failed to create output directory")
		}
	}

	// Step 1: Load frame images
	r.logger.Infof("Step 1: Loading %d frame images...", len(out.Frames))
	images, err := r.loadImages(ctx, out.Frames, func(f models.Frame) string { return f.ImagePath })
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load images")
	}

	// Step 2: Propagate the object mask
	r.logger.Info("Step 2: Propagating object masks...")
	masks, err := r.engine.Run(ctx, images)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mask propagation failed")
	}
	for i, mk := range masks {
		if err := r.saveIntermediaryResult("01_propagated_masks", mk, i); err != nil {
			r.logger.Warnf("Failed to save propagated mask %d: %v", i, err)
		}
	}

	// Step 3: Save masked originals and raw masks
	if m.params.CopyOrg {
		r.logger.Info("Step 3: Saving masked originals and raw masks...")
		if err := r.copyOrg(ctx, out.Frames, masks); err != nil {
			return nil, nil, errors.Wrap(err, "failed to copy originals")
		}
	}

	// Step 4: Normalize, carve and crop
	if m.params.AdjustCameras {
		r.logger.Info("Step 4: Adjusting cameras to the carved volume...")
		if out, masks, err = r.adjustCameras(ctx, out, images, masks); err != nil {
			return nil, nil, errors.Wrap(err, "failed to adjust cameras")
		}
	}

	// Step 5: Save final masks
	r.logger.Info("Step 5: Saving final masks...")
	err = r.forEachFrame(ctx, out.Frames, func(i int, f *models.Frame) error {
		path := filepath.Join(m.params.MaskDir, fmt.Sprintf("%06d.png", i))
		if err := masks[i].Save(path); err != nil {
			return err
		}
		f.MaskPath = path
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to save masks")
	}

	r.logger.Infow("masking done", "frames", len(out.Frames), "elapsed", time.Since(start))
	return out, masks, nil
}

// forEachFrame runs fn for every frame with at most Workers in flight. Each call
// owns its frame; fn must only write to paths unique to that frame.
func (r *run) forEachFrame(ctx context.Context, frames []models.Frame, fn func(i int, f *models.Frame) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if r.params.Workers > 0 {
		g.SetLimit(r.params.Workers)
	}
	for i := range frames {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i, &frames[i]); err != nil {
				return errors.Wrapf(err, "frame %d", i)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *run) loadImages(ctx context.Context, frames []models.Frame, path func(models.Frame) string) ([]image.Image, error) {
	images := make([]image.Image, len(frames))
	err := r.forEachFrame(ctx, frames, func(i int, f *models.Frame) error {
		img, err := imaging.Open(path(*f))
		if err != nil {
			return err
		}
		images[i] = img
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// copyOrg composites every original onto a transparent background with its
// mask and saves it, then saves the raw mask under the original's name up to
// its first dot.
func (r *run) copyOrg(ctx context.Context, frames []models.Frame, masks []*mask.Mask) error {
	return r.forEachFrame(ctx, frames, func(i int, f *models.Frame) error {
		orgPath := f.OrgPath
		if orgPath == "" {
			orgPath = f.ImagePath
		}
		org, err := imaging.Open(orgPath)
		if err != nil {
			return err
		}
		mk := masks[i]
		if s := org.Bounds().Size(); s.X != mk.Width || s.Y != mk.Height {
			mk = mask.FromImage(imaging.Resize(mk.Gray(), s.X, s.Y, imaging.NearestNeighbor))
		}
		masked, err := mk.Apply(org)
		if err != nil {
			return err
		}
		maskedPath := filepath.Join(r.params.MaskedImageDir, filepath.Base(orgPath))
		if err := imaging.Save(masked, maskedPath); err != nil {
			return errors.Wrapf(err, "failed to save %s", maskedPath)
		}

		stem, _, _ := strings.Cut(filepath.Base(orgPath), ".")
		rawPath := filepath.Join(r.params.MaskDir, stem+".png")
		if err := masks[i].Save(rawPath); err != nil {
			return err
		}
		f.OrgPath = maskedPath
		f.SegmentationMaskPath = rawPath
		return nil
	})
}

// adjustCameras normalizes the cameras, carves the shared volume, crops every
// view to it and saves the cropped masked images. Nothing is written unless
// every computation succeeded.
func (r *run) adjustCameras(ctx context.Context, ds *dataset.Dataset, images []image.Image, masks []*mask.Mask) (*dataset.Dataset, []*mask.Mask, error) {
	normalized, err := ds.NormalizeCameras(true, 1.0)
	if err != nil {
		return nil, nil, err
	}

	cameras := make([]models.Camera, len(normalized.Frames))
	poses := make([]posemath.Pose, len(normalized.Frames))
	for i, f := range normalized.Frames {
		cameras[i], poses[i] = f.Camera, f.Pose
	}

	carved, err := carving.Carve(ctx, masks, cameras, poses, r.params.Carving)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Debugw("carved volume", "voxels", carved.Volume.Occupied(), "center", carved.Center, "radius", carved.Radius)
	if err := r.saveIntermediaryResult("02_carved_volume", carved.Volume, 0); err != nil {
		r.logger.Warnf("Failed to save carved volume: %v", err)
	}

	cropped, err := carving.Crop(images, masks, cameras, carved.Poses, carved.Box)
	if err != nil {
		return nil, nil, err
	}

	err = r.forEachFrame(ctx, normalized.Frames, func(i int, f *models.Frame) error {
		masked, err := cropped.Masks[i].Apply(cropped.Images[i])
		if err != nil {
			return err
		}
		path := filepath.Join(r.params.MaskedImageDir, fmt.Sprintf("%06d.png", i))
		if err := imaging.Save(masked, path); err != nil {
			return errors.Wrapf(err, "failed to save %s", path)
		}
		f.ImagePath = path
		f.Pose = carved.Poses[i]
		f.Camera = cropped.Cameras[i]
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return normalized, cropped.Masks, nil
}
