package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvprep/internal/errdefs"
	"mvprep/internal/models"
	"mvprep/pkg/posemath"
	"mvprep/pkg/sparse"
)

func frameAt(t r3.Vector) models.Frame {
	return models.Frame{
		Pose: posemath.Identity().WithTranslation(t),
		Camera: models.Camera{
			Width: 64, Height: 48, Fx: 50, Fy: 50, Cx: 32, Cy: 24, Model: models.Pinhole,
		},
	}
}

func ringDataset() *Dataset {
	return New("test", []models.Frame{
		frameAt(r3.Vector{X: 4, Y: 2, Z: 1}),
		frameAt(r3.Vector{X: -2, Y: 6, Z: 3}),
		frameAt(r3.Vector{X: 1, Y: -1, Z: 5}),
		frameAt(r3.Vector{X: 0, Y: 3, Z: 2}),
	})
}

func TestNormalizeCamerasScaleInvariant(t *testing.T) {
	for _, positiveZ := range []bool{true, false} {
		for _, s := range []float64{1.0, 1.1, 3.5} {
			ds := ringDataset()
			out, err := ds.NormalizeCameras(positiveZ, s)
			require.NoError(t, err)

			maxNorm := 0.0
			var minX, maxX, minY, maxY, minZ = math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1), math.Inf(1)
			for _, f := range out.Frames {
				c := f.Pose.Translation()
				maxNorm = math.Max(maxNorm, c.Norm())
				minX, maxX = math.Min(minX, c.X), math.Max(maxX, c.X)
				minY, maxY = math.Min(minY, c.Y), math.Max(maxY, c.Y)
				minZ = math.Min(minZ, c.Z)
			}
			assert.InDelta(t, s, maxNorm, 1e-12, "positiveZ=%v s=%v", positiveZ, s)
			assert.InDelta(t, 0, (minX+maxX)/2, 1e-12)
			assert.InDelta(t, 0, (minY+maxY)/2, 1e-12)
			if positiveZ {
				assert.InDelta(t, 0, minZ, 1e-12)
			}
		}
	}
}

func TestNormalizeCamerasIsPure(t *testing.T) {
	ds := ringDataset()
	before := ds.Clone()
	out, err := ds.NormalizeCameras(true, 1)
	require.NoError(t, err)

	assert.Equal(t, before, ds)
	assert.Equal(t, ds.Version+1, out.Version)
	// Rotations are untouched.
	assert.Equal(t, ds.Frames[0].Pose.Rotation(), out.Frames[0].Pose.Rotation())
}

func TestNormalizeCamerasKnownValues(t *testing.T) {
	ds := New("test", []models.Frame{
		frameAt(r3.Vector{X: -2, Y: 0, Z: 0}),
		frameAt(r3.Vector{X: 2, Y: 0, Z: 0}),
	})
	out, err := ds.NormalizeCameras(false, 1)
	require.NoError(t, err)
	assert.InDelta(t, -1, out.Frames[0].Pose.Translation().X, 1e-12)
	assert.InDelta(t, 1, out.Frames[1].Pose.Translation().X, 1e-12)
}

func TestNormalizeCamerasDegenerate(t *testing.T) {
	single := New("test", []models.Frame{frameAt(r3.Vector{X: 1, Y: 2, Z: 3})})
	_, err := single.NormalizeCameras(false, 1)
	assert.True(t, errors.Is(err, errdefs.ErrDegenerateInput), "got %v", err)

	same := New("test", []models.Frame{frameAt(r3.Vector{X: 1}), frameAt(r3.Vector{X: 1})})
	_, err = same.NormalizeCameras(true, 1)
	assert.True(t, errors.Is(err, errdefs.ErrDegenerateInput), "got %v", err)

	_, err = New("test", nil).NormalizeCameras(true, 1)
	assert.True(t, errors.Is(err, errdefs.ErrDegenerateInput), "got %v", err)

	_, err = ringDataset().NormalizeCameras(true, 0)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument), "got %v", err)
}

func TestNormalizeCamerasMovesReconstruction(t *testing.T) {
	ds := ringDataset()
	recon := sparse.New()
	recon.Points[1] = &sparse.Point3D{ID: 1, XYZ: r3.Vector{X: 4, Y: 2, Z: 1}}
	ds.Reconstruction = recon

	out, err := ds.NormalizeCameras(true, 2)
	require.NoError(t, err)

	// The point coincided with camera 0 and must still do so.
	got := out.Reconstruction.Points[1].XYZ
	want := out.Frames[0].Pose.Translation()
	assert.InDelta(t, want.X, got.X, 1e-12)
	assert.InDelta(t, want.Y, got.Y, 1e-12)
	assert.InDelta(t, want.Z, got.Z, 1e-12)
	assert.Equal(t, r3.Vector{X: 4, Y: 2, Z: 1}, recon.Points[1].XYZ, "input reconstruction must not change")
}

func TestUp(t *testing.T) {
	// OpenCV cameras looking along +z with y down: up is -y.
	ds := ringDataset()
	assert.Equal(t, r3.Vector{Y: -1}, ds.Up())

	flipped, err := posemath.ConvertCameraPose(posemath.Identity(), posemath.CV, posemath.GL)
	require.NoError(t, err)
	cancel := New("test", []models.Frame{{Pose: posemath.Identity()}, {Pose: flipped}})
	assert.Equal(t, r3.Vector{}, cancel.Up())
}

func TestNotImplemented(t *testing.T) {
	ds := ringDataset()
	before := ds.Clone()
	assert.True(t, errors.Is(ds.UndistortImages(), errdefs.ErrNotImplemented))
	dir := filepath.Join(t.TempDir(), "3dgs")
	assert.True(t, errors.Is(ds.Export3DGS(dir), errdefs.ErrNotImplemented))
	assert.Equal(t, before, ds)
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestWithoutReconstruction(t *testing.T) {
	ds := ringDataset()
	ds.Reconstruction = sparse.New()
	out := ds.WithoutReconstruction()
	assert.Nil(t, out.Reconstruction)
	assert.NotNil(t, ds.Reconstruction)
	assert.Equal(t, 1, out.Version)
	assert.Contains(t, ds.String(), "[Valid Reconstruction]")
}
