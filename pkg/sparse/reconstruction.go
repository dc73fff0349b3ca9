// Package sparse holds a sparse structure-from-motion reconstruction (COLMAP
// cameras, registered images and 3D points) and the world-space similarity
// transforms applied to it when cameras are normalized.
package sparse

import (
	"sort"

	"github.com/golang/geo/r3"

	"mvprep/internal/models"
	"mvprep/pkg/posemath"
)

// Camera is a COLMAP camera entry.
type Camera struct {
	ID     int
	Model  models.CameraModel
	Width  int
	Height int
	Params []float64
}

// Point2D is a keypoint of a registered image. Point3DID is -1 when untriangulated.
type Point2D struct {
	X, Y      float64
	Point3DID int64
}

// Image is a registered image with its world-to-camera transform.
type Image struct {
	ID       int
	QVec     [4]float64 // w, x, y, z
	TVec     r3.Vector
	CameraID int
	Name     string
	Points2D []Point2D
}

// TrackElement references an observation of a 3D point.
type TrackElement struct {
	ImageID    int
	Point2DIdx int
}

// Point3D is a triangulated point.
type Point3D struct {
	ID    int64
	XYZ   r3.Vector
	RGB   [3]uint8
	Error float64
	Track []TrackElement
}

// Reconstruction is a sparse model keyed by COLMAP ids.
type Reconstruction struct {
	Cameras map[int]*Camera
	Images  map[int]*Image
	Points  map[int64]*Point3D
}

// New returns an empty reconstruction.
func New() *Reconstruction {
	return &Reconstruction{
		Cameras: map[int]*Camera{},
		Images:  map[int]*Image{},
		Points:  map[int64]*Point3D{},
	}
}

// WorldToCamera returns the world-to-camera transform of a registered image.
func (im *Image) WorldToCamera() posemath.Pose {
	return posemath.FromRotationTranslation(posemath.RotationFromQuaternion(im.QVec), im.TVec)
}

// CameraToWorld returns the camera pose in the OpenCV convention.
func (im *Image) CameraToWorld() posemath.Pose {
	return im.WorldToCamera().Inverse()
}

// WorldTranslate moves the world by d: every point X becomes X+d.
func (r *Reconstruction) WorldTranslate(d r3.Vector) {
	for _, p := range r.Points {
		p.XYZ = p.XYZ.Add(d)
	}
	for _, im := range r.Images {
		rot := posemath.RotationFromQuaternion(im.QVec)
		im.TVec = im.TVec.Sub(rot.Apply(d))
	}
}

// WorldScale scales the world about the origin by s.
func (r *Reconstruction) WorldScale(s float64) {
	for _, p := range r.Points {
		p.XYZ = p.XYZ.Mul(s)
	}
	for _, im := range r.Images {
		im.TVec = im.TVec.Mul(s)
	}
}

// Clone returns a deep copy.
func (r *Reconstruction) Clone() *Reconstruction {
	out := New()
	for id, c := range r.Cameras {
		cc := *c
		cc.Params = append([]float64(nil), c.Params...)
		out.Cameras[id] = &cc
	}
	for id, im := range r.Images {
		ic := *im
		ic.Points2D = append([]Point2D(nil), im.Points2D...)
		out.Images[id] = &ic
	}
	for id, p := range r.Points {
		pc := *p
		pc.Track = append([]TrackElement(nil), p.Track...)
		out.Points[id] = &pc
	}
	return out
}

// SortedImages returns registered images ordered by name.
func (r *Reconstruction) SortedImages() []*Image {
	out := make([]*Image, 0, len(r.Images))
	for _, im := range r.Images {
		out = append(out, im)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}
