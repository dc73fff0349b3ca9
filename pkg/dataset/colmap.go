package dataset

import (
	"path/filepath"

	"mvprep/internal/errdefs"
	"mvprep/internal/models"
	"mvprep/pkg/sparse"
)

// SourceColmap tags datasets imported from a COLMAP model.
const SourceColmap = "colmap"

// FromColmap builds a dataset from a COLMAP text model. Frames are ordered by
// image name and point at imageDir/<name>; the model stays attached.
func FromColmap(sparseDir, imageDir string) (*Dataset, error) {
	recon, err := sparse.ReadText(sparseDir)
	if err != nil {
		return nil, err
	}
	return FromReconstruction(recon, imageDir)
}

// FromReconstruction builds a dataset from an in-memory sparse model.
func FromReconstruction(recon *sparse.Reconstruction, imageDir string) (*Dataset, error) {
	images := recon.SortedImages()
	frames := make([]models.Frame, 0, len(images))
	for _, im := range images {
		cam, ok := recon.Cameras[im.CameraID]
		if !ok {
			return nil, errdefs.InvalidArgument("image %q references unknown camera %d", im.Name, im.CameraID)
		}
		intr, err := cameraFromColmap(cam)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(imageDir, im.Name)
		frames = append(frames, models.Frame{
			ImagePath: path,
			OrgPath:   path,
			Pose:      im.CameraToWorld(),
			Camera:    intr,
		})
	}
	ds := New(SourceColmap, frames)
	ds.Reconstruction = recon
	return ds, nil
}

func cameraFromColmap(c *sparse.Camera) (models.Camera, error) {
	out := models.Camera{Width: c.Width, Height: c.Height, Model: c.Model}
	need := map[models.CameraModel]int{
		models.SimplePinhole: 3,
		models.Pinhole:       4,
		models.SimpleRadial:  4,
		models.Radial:        5,
		models.OpenCV:        8,
	}
	n, ok := need[c.Model]
	if !ok {
		return out, errdefs.InvalidArgument("unsupported camera model %q", string(c.Model))
	}
	if len(c.Params) != n {
		return out, errdefs.InvalidArgument("camera %d: model %s needs %d params, got %d", c.ID, c.Model, n, len(c.Params))
	}
	p := c.Params
	switch c.Model {
	case models.Pinhole, models.OpenCV:
		out.Fx, out.Fy, out.Cx, out.Cy = p[0], p[1], p[2], p[3]
		out.Distortion = append([]float64(nil), p[4:]...)
	default:
		out.Fx, out.Fy, out.Cx, out.Cy = p[0], p[0], p[1], p[2]
		out.Distortion = append([]float64(nil), p[3:]...)
	}
	if len(out.Distortion) == 0 {
		out.Distortion = nil
	}
	return out, nil
}
