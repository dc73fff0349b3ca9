// Package models holds the plain data types shared by the mvprep pipeline.
package models

import (
	"gonum.org/v1/gonum/mat"

	"mvprep/internal/errdefs"
)

// CameraModel is the intrinsic model tag, named after the COLMAP camera models.
type CameraModel string

const (
	Pinhole       CameraModel = "PINHOLE"
	SimplePinhole CameraModel = "SIMPLE_PINHOLE"
	SimpleRadial  CameraModel = "SIMPLE_RADIAL"
	Radial        CameraModel = "RADIAL"
	OpenCV        CameraModel = "OPENCV"
)

// Camera holds the intrinsic parameters of one frame.
type Camera struct {
	// Width and Height are the image size in pixels
	Width  int
	Height int

	// Fx and Fy are the focal lengths in pixels
	Fx float64
	Fy float64

	// Cx and Cy are the principal point in pixels
	Cx float64
	Cy float64

	// Model is the intrinsic model tag
	Model CameraModel

	// Distortion holds the model's distortion coefficients, empty for pinhole models
	Distortion []float64
}

// IsPinhole reports whether the camera has no distortion terms.
func (c Camera) IsPinhole() bool {
	return c.Model == Pinhole || c.Model == SimplePinhole
}

// K returns the 3x3 intrinsic matrix.
func (c Camera) K() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		c.Fx, 0, c.Cx,
		0, c.Fy, c.Cy,
		0, 0, 1,
	})
}

// WithK returns a copy of c with focal lengths and principal point taken from k.
func (c Camera) WithK(k mat.Matrix) Camera {
	c.Fx, c.Fy = k.At(0, 0), k.At(1, 1)
	c.Cx, c.Cy = k.At(0, 2), k.At(1, 2)
	return c
}

// CheckValid checks that the intrinsics can be used for projection.
func (c Camera) CheckValid() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errdefs.InvalidArgument("invalid camera size (%d, %d)", c.Width, c.Height)
	}
	if c.Fx <= 0 || c.Fy <= 0 {
		return errdefs.InvalidArgument("invalid focal length (%g, %g)", c.Fx, c.Fy)
	}
	return nil
}

// Project maps a point in camera coordinates to pixel coordinates.
// ok is false for points at or behind the image plane.
func (c Camera) Project(x, y, z float64) (u, v float64, ok bool) {
	if z <= 0 {
		return 0, 0, false
	}
	return x/z*c.Fx + c.Cx, y/z*c.Fy + c.Cy, true
}
