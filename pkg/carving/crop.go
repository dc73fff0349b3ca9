package carving

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"

	"mvprep/internal/errdefs"
	"mvprep/internal/models"
	"mvprep/pkg/mask"
	"mvprep/pkg/posemath"
)

// CropResult holds the re-cropped views. Every image and mask has the same size.
type CropResult struct {
	Images  []*image.NRGBA
	Masks   []*mask.Mask
	Cameras []models.Camera

	// Windows are the crop rectangles in source pixel coordinates; they may
	// extend past the source image
	Windows []image.Rectangle
}

// Crop cuts every view down to a window of common size that holds both the
// view's silhouette and the projection of box. Each window is centered on that
// support; pixels outside the source are transparent black in images and
// background in masks. The principal points are shifted by the window origin.
func Crop(images []image.Image, masks []*mask.Mask, cameras []models.Camera, poses []posemath.Pose, box models.Box) (*CropResult, error) {
	if len(images) != len(masks) {
		return nil, errdefs.PreconditionViolation("got %d images and %d masks", len(images), len(masks))
	}
	if err := checkViews(masks, cameras, poses); err != nil {
		return nil, err
	}
	for i, img := range images {
		if s := img.Bounds().Size(); s.X != masks[i].Width || s.Y != masks[i].Height {
			return nil, errdefs.PreconditionViolation("view %d: image %dx%d does not match mask %dx%d",
				i, s.X, s.Y, masks[i].Width, masks[i].Height)
		}
	}

	supports := make([]image.Rectangle, len(images))
	var w, h int
	for i := range images {
		s := viewSupport(masks[i], newProjector(cameras[i], poses[i]), box)
		if s.Empty() {
			s = masks[i].Bounds()
		}
		supports[i] = s
		w = max(w, s.Dx())
		h = max(h, s.Dy())
	}

	res := &CropResult{
		Images:  make([]*image.NRGBA, len(images)),
		Masks:   make([]*mask.Mask, len(images)),
		Cameras: make([]models.Camera, len(images)),
		Windows: make([]image.Rectangle, len(images)),
	}
	for i, img := range images {
		s := supports[i]
		x0 := (s.Min.X+s.Max.X)/2 - w/2
		y0 := (s.Min.Y+s.Max.Y)/2 - h/2
		win := image.Rect(x0, y0, x0+w, y0+h)

		canvas := imaging.New(w, h, color.NRGBA{})
		res.Images[i] = imaging.Paste(canvas, img, image.Pt(-x0, -y0))
		res.Masks[i] = masks[i].Crop(win)

		cam := cameras[i].WithK(shiftK(cameras[i].K(), x0, y0))
		cam.Width, cam.Height = w, h
		res.Cameras[i] = cam
		res.Windows[i] = win
	}
	return res, nil
}

// shiftK moves the principal point of k into a window whose origin is (x0, y0).
func shiftK(k mat.Matrix, x0, y0 int) *mat.Dense {
	t := mat.NewDense(3, 3, []float64{
		1, 0, -float64(x0),
		0, 1, -float64(y0),
		0, 0, 1,
	})
	var out mat.Dense
	out.Mul(t, k)
	return &out
}

// viewSupport is the union of the silhouette's bounding box and the projected
// box corners clipped to the image.
func viewSupport(m *mask.Mask, pr projector, box models.Box) image.Rectangle {
	support, _ := m.Support()

	minU, minV := math.Inf(1), math.Inf(1)
	maxU, maxV := math.Inf(-1), math.Inf(-1)
	for _, c := range box.Corners() {
		u, v, ok := pr.project(c)
		if !ok {
			continue
		}
		minU, maxU = math.Min(minU, u), math.Max(maxU, u)
		minV, maxV = math.Min(minV, v), math.Max(maxV, v)
	}
	if math.IsInf(minU, 1) {
		return support
	}

	bounds := m.Bounds()
	projected := image.Rect(
		int(math.Floor(math.Max(minU, float64(bounds.Min.X)))),
		int(math.Floor(math.Max(minV, float64(bounds.Min.Y)))),
		int(math.Ceil(math.Min(maxU, float64(bounds.Max.X)))),
		int(math.Ceil(math.Min(maxV, float64(bounds.Max.Y)))),
	).Intersect(bounds)
	return support.Union(projected)
}
