// Package visualization renders the carved occupancy volume as images for
// inspecting intermediary results.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"mvprep/internal/models"
)

// Axis selects the axis a slice is taken across.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
)

// ParseAxis accepts x, y or z in either case.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return "", errors.Errorf("invalid axis: %s (must be x, y, or z)", s)
}

// Viewer slices a volume into grayscale images. Voxel values are mapped from
// [0, 1] to [0, 255].
type Viewer struct {
	vol *models.Volume
}

// NewViewer creates a viewer over vol.
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// length returns the number of slices across axis.
func (v *Viewer) length(axis Axis) int {
	switch axis {
	case AxisX:
		return v.vol.Width
	case AxisY:
		return v.vol.Height
	default:
		return v.vol.Depth
	}
}

// planeSize returns the image size of a slice across axis. X slices are laid
// out as (z, y), Y slices as (x, z) and Z slices as (x, y).
func (v *Viewer) planeSize(axis Axis) (int, int) {
	switch axis {
	case AxisX:
		return v.vol.Depth, v.vol.Height
	case AxisY:
		return v.vol.Width, v.vol.Depth
	default:
		return v.vol.Width, v.vol.Height
	}
}

// voxel returns the volume value at image position (i, j) of slice pos.
func (v *Viewer) voxel(axis Axis, pos, i, j int) float64 {
	var x, y, z int
	switch axis {
	case AxisX:
		x, y, z = pos, j, i
	case AxisY:
		x, y, z = i, pos, j
	default:
		x, y, z = i, j, pos
	}
	return v.vol.Data[v.vol.Index(x, y, z)]
}

func toGray(value float64) color.Gray {
	return color.Gray{Y: uint8(math.Round(math.Max(0, math.Min(1, value)) * 255))}
}

// ExtractSlice extracts the 2D slice at position across axis.
func (v *Viewer) ExtractSlice(axis Axis, position int) (*image.Gray, error) {
	if _, err := ParseAxis(string(axis)); err != nil {
		return nil, err
	}
	if position < 0 || position >= v.length(axis) {
		return nil, errors.Errorf("position %d outside [0, %d) along %s", position, v.length(axis), axis)
	}

	w, h := v.planeSize(axis)
	img := image.NewGray(image.Rect(0, 0, w, h))
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			img.SetGray(i, j, toGray(v.voxel(axis, position, i, j)))
		}
	}
	return img, nil
}

// Projection returns the maximum intensity projection along axis, i.e. the
// silhouette of the carved hull seen down that axis.
func (v *Viewer) Projection(axis Axis) (*image.Gray, error) {
	if _, err := ParseAxis(string(axis)); err != nil {
		return nil, err
	}
	w, h := v.planeSize(axis)
	img := image.NewGray(image.Rect(0, 0, w, h))
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			best := 0.0
			for pos := 0; pos < v.length(axis); pos++ {
				best = math.Max(best, v.voxel(axis, pos, i, j))
			}
			img.SetGray(i, j, toGray(best))
		}
	}
	return img, nil
}

// SaveSlice saves an image; the format follows the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return imaging.Save(img, filename)
}

// SaveSliceSequence extracts and saves every slice across axis as
// slice_<axis>_NNN.png, plus the projection as projection_<axis>.png.
func (v *Viewer) SaveSliceSequence(axis Axis, outputDir string) error {
	if _, err := ParseAxis(string(axis)); err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create slice directory")
	}

	for pos := 0; pos < v.length(axis); pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return errors.Wrapf(err, "failed to save slice %d", pos)
		}
	}

	proj, err := v.Projection(axis)
	if err != nil {
		return err
	}
	return v.SaveSlice(proj, filepath.Join(outputDir, fmt.Sprintf("projection_%s.png", axis)))
}
