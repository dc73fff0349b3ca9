package carving

import (
	"github.com/golang/geo/r3"

	"mvprep/internal/models"
	"mvprep/pkg/posemath"
)

// projector maps world points to pixels of one view.
type projector struct {
	cam models.Camera
	w2c posemath.Pose
}

func newProjector(cam models.Camera, pose posemath.Pose) projector {
	return projector{cam: cam, w2c: pose.Inverse()}
}

// project returns the pixel coordinates of x. ok is false when x is not in
// front of the camera.
func (pr projector) project(x r3.Vector) (u, v float64, ok bool) {
	c := pr.w2c.Apply(x)
	return pr.cam.Project(c.X, c.Y, c.Z)
}

// pixel returns the pixel containing the projection of x. ok is false when x is
// behind the camera or falls outside the image.
func (pr projector) pixel(x r3.Vector) (px, py int, ok bool) {
	u, v, ok := pr.project(x)
	if !ok || u < 0 || v < 0 {
		return 0, 0, false
	}
	px, py = int(u), int(v)
	if px >= pr.cam.Width || py >= pr.cam.Height {
		return 0, 0, false
	}
	return px, py, true
}
