// Package dataset implements the dataset record: the ordered frame sequence
// with its optional sparse reconstruction, the whole-sequence camera
// normalization, and JSON persistence.
//
// A Dataset is treated as a value: operations that change frames return a new
// Dataset with an incremented Version and leave the receiver untouched.
package dataset

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"

	"mvprep/internal/errdefs"
	"mvprep/internal/models"
	"mvprep/pkg/sparse"
)

// Dataset is an ordered sequence of frames plus provenance.
type Dataset struct {
	// Source describes where the frames came from, e.g. "colmap"
	Source string

	// Frames are in propagation order; adjacent frames are expected to overlap
	Frames []models.Frame

	// Reconstruction is the optional sparse model the poses were taken from
	Reconstruction *sparse.Reconstruction

	// Version counts the transformations applied since the dataset was created
	Version int
}

// New creates a dataset from frames.
func New(source string, frames []models.Frame) *Dataset {
	return &Dataset{Source: source, Frames: frames}
}

func (d *Dataset) String() string {
	recon := "None"
	if d.Reconstruction != nil {
		recon = "[Valid Reconstruction]"
	}
	return fmt.Sprintf("{source: %q, reconstruction: %s, frames: %d, version: %d}",
		d.Source, recon, len(d.Frames), d.Version)
}

// Clone returns a deep copy with the same version.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Source:  d.Source,
		Frames:  make([]models.Frame, len(d.Frames)),
		Version: d.Version,
	}
	for i, f := range d.Frames {
		f.Camera.Distortion = append([]float64(nil), f.Camera.Distortion...)
		out.Frames[i] = f
	}
	if d.Reconstruction != nil {
		out.Reconstruction = d.Reconstruction.Clone()
	}
	return out
}

// next returns a deep copy marked as the following version.
func (d *Dataset) next() *Dataset {
	out := d.Clone()
	out.Version++
	return out
}

// WithoutReconstruction returns the next version with the sparse model dropped.
func (d *Dataset) WithoutReconstruction() *Dataset {
	out := d.next()
	out.Reconstruction = nil
	return out
}

// Up returns the common up direction: the normalized negative mean of every
// camera's local Y axis in world space. It is zero when the axes cancel out.
func (d *Dataset) Up() r3.Vector {
	var up r3.Vector
	for _, f := range d.Frames {
		up = up.Sub(f.Pose.Column(1))
	}
	if up.Norm() == 0 {
		return r3.Vector{}
	}
	return up.Normalize()
}

// NormalizeCameras recenters and rescales all camera centers. The offset is the
// center of the camera bounding box (its floor in z when positiveZ is set); after
// subtracting it, centers are scaled so the farthest lies at distance scaleFactor.
// The attached reconstruction receives the same similarity transform.
func (d *Dataset) NormalizeCameras(positiveZ bool, scaleFactor float64) (*Dataset, error) {
	if scaleFactor <= 0 {
		return nil, errdefs.InvalidArgument("scale factor must be positive, got %g", scaleFactor)
	}
	if len(d.Frames) == 0 {
		return nil, errdefs.DegenerateInput("no cameras to normalize")
	}

	n := len(d.Frames)
	xs, ys, zs := make([]float64, n), make([]float64, n), make([]float64, n)
	for i, f := range d.Frames {
		t := f.Pose.Translation()
		xs[i], ys[i], zs[i] = t.X, t.Y, t.Z
	}

	offset := r3.Vector{
		X: (floats.Min(xs) + floats.Max(xs)) / 2,
		Y: (floats.Min(ys) + floats.Max(ys)) / 2,
		Z: (floats.Min(zs) + floats.Max(zs)) / 2,
	}
	if positiveZ {
		offset.Z = floats.Min(zs)
	}

	centered := make([]r3.Vector, n)
	norms := make([]float64, n)
	for i := range d.Frames {
		centered[i] = r3.Vector{X: xs[i], Y: ys[i], Z: zs[i]}.Sub(offset)
		norms[i] = centered[i].Norm()
	}
	maxNorm := floats.Max(norms)
	if maxNorm == 0 {
		return nil, errdefs.DegenerateInput("all %d camera centers coincide", n)
	}
	scale := scaleFactor / maxNorm

	out := d.next()
	for i := range out.Frames {
		out.Frames[i].Pose = out.Frames[i].Pose.WithTranslation(centered[i].Mul(scale))
	}
	if out.Reconstruction != nil {
		out.Reconstruction.WorldTranslate(offset.Mul(-1))
		out.Reconstruction.WorldScale(scale)
	}
	return out, nil
}

// UndistortImages is not supported.
func (d *Dataset) UndistortImages() error {
	return errdefs.NotImplemented("undistort images")
}

// Export3DGS is not supported. The target layout is
// <outDir>/images/* and <outDir>/sparse/0/{cameras,images,points3D}.bin.
func (d *Dataset) Export3DGS(outDir string) error {
	return errdefs.NotImplemented("export 3dgs")
}
