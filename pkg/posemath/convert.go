package posemath

import (
	"strings"

	"mvprep/internal/errdefs"
)

// Convention names a camera axis convention.
type Convention string

const (
	// CV is the OpenCV/COLMAP convention: x right, y down, z forward.
	CV Convention = "cv"
	// GL is the OpenGL convention: x right, y up, z backward.
	GL Convention = "gl"
	// Blender uses the OpenGL axes.
	Blender Convention = "blender"
)

// flipYZ converts between CV and GL. It is its own inverse.
var flipYZ = Pose{
	{1, 0, 0, 0},
	{0, -1, 0, 0},
	{0, 0, -1, 0},
	{0, 0, 0, 1},
}

// rot90 maps camera axes for an image rotated 90 degrees clockwise.
var rot90 = Pose{
	{0, 1, 0, 0},
	{-1, 0, 0, 0},
	{0, 0, 1, 0},
	{0, 0, 0, 1},
}

// ParseConvention parses a convention name, case-insensitively.
func ParseConvention(s string) (Convention, error) {
	c := Convention(strings.ToLower(strings.TrimSpace(s)))
	if err := c.validate(); err != nil {
		return "", err
	}
	return c, nil
}

func (c Convention) validate() error {
	switch c {
	case CV, GL, Blender:
		return nil
	default:
		return errdefs.InvalidArgument("pose convention %q not in [cv gl blender]", string(c))
	}
}

func (c Convention) canonical() Convention {
	if c == Blender {
		return GL
	}
	return c
}

// ConvertCameraPose converts a camera-to-world pose between axis conventions.
func ConvertCameraPose(pose Pose, in, out Convention) (Pose, error) {
	if err := in.validate(); err != nil {
		return Pose{}, err
	}
	if err := out.validate(); err != nil {
		return Pose{}, err
	}
	if in.canonical() == out.canonical() {
		return pose, nil
	}
	return pose.Mul(flipYZ), nil
}

// RotationFromQuaternion converts a unit quaternion (w, x, y, z) to a rotation matrix.
// The quaternion is not normalized.
func RotationFromQuaternion(q [4]float64) Rotation {
	w, x, y, z := q[0], q[1], q[2], q[3]
	return Rotation{
		{1 - 2*y*y - 2*z*z, 2*x*y - 2*w*z, 2*z*x + 2*w*y},
		{2*x*y + 2*w*z, 1 - 2*x*x - 2*z*z, 2*y*z - 2*w*x},
		{2*z*x - 2*w*y, 2*y*z + 2*w*x, 1 - 2*x*x - 2*y*y},
	}
}

// Rotate90Camera returns the pose and intrinsics of a camera whose image has been
// rotated 90 degrees clockwise. height is the original image height.
func Rotate90Camera(pose Pose, fx, fy, cx, cy, height float64) (Pose, float64, float64, float64, float64) {
	return pose.Mul(rot90), fy, fx, height - cy, cx
}
