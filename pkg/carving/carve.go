// Package carving carves a visual hull out of per-view silhouettes and re-crops
// every view to the shared volume it defines.
package carving

import (
	"context"
	"math"
	"runtime"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"mvprep/internal/errdefs"
	"mvprep/internal/models"
	"mvprep/pkg/mask"
	"mvprep/pkg/posemath"
)

// Options controls the voxel grid.
type Options struct {
	// Resolution is the number of voxels along each axis
	Resolution int

	// Extent is the half size of the carved cube [-Extent, Extent]^3
	Extent float64

	// Workers is the number of goroutines sharing the z slices
	Workers int
}

// DefaultOptions returns a 64^3 grid over the unit cube.
func DefaultOptions() Options {
	return Options{Resolution: 64, Extent: 1.0, Workers: runtime.NumCPU()}
}

// Result is the outcome of carving.
type Result struct {
	// Volume is the occupancy grid in the input world frame, 1 for kept voxels
	Volume *models.Volume

	// Center and Radius are the center and half diagonal of the kept voxels'
	// bounding box in the input world frame
	Center r3.Vector
	Radius float64

	// Box is the bounding box of the kept voxels in the adjusted frame
	Box models.Box

	// Poses are the input poses moved so that Center is the origin and the
	// box lies in the unit sphere
	Poses []posemath.Pose
}

func checkViews(masks []*mask.Mask, cameras []models.Camera, poses []posemath.Pose) error {
	if len(masks) != len(cameras) || len(cameras) != len(poses) {
		return errdefs.PreconditionViolation("got %d masks, %d cameras and %d poses", len(masks), len(cameras), len(poses))
	}
	if len(cameras) == 0 {
		return errdefs.PreconditionViolation("no views")
	}
	for i, cam := range cameras {
		if !cam.IsPinhole() {
			return errdefs.PreconditionViolation("view %d: camera model %s is not a pinhole model", i, cam.Model)
		}
		if err := cam.CheckValid(); err != nil {
			return errdefs.PreconditionViolation("view %d: %v", i, err)
		}
		if masks[i] == nil {
			return errdefs.PreconditionViolation("view %d: missing mask", i)
		}
		if masks[i].Width != cam.Width || masks[i].Height != cam.Height {
			return errdefs.PreconditionViolation("view %d: mask %dx%d does not match camera %dx%d",
				i, masks[i].Width, masks[i].Height, cam.Width, cam.Height)
		}
	}
	return nil
}

// Carve computes the visual hull of the silhouettes over the cube
// [-Extent, Extent]^3. A voxel is kept when at least one view sees it and every
// view that sees it projects it onto foreground.
func Carve(ctx context.Context, masks []*mask.Mask, cameras []models.Camera, poses []posemath.Pose, opts Options) (*Result, error) {
	if err := checkViews(masks, cameras, poses); err != nil {
		return nil, err
	}
	if opts.Resolution < 1 {
		return nil, errdefs.InvalidArgument("resolution must be positive, got %d", opts.Resolution)
	}
	if opts.Extent <= 0 {
		return nil, errdefs.InvalidArgument("extent must be positive, got %g", opts.Extent)
	}

	projectors := make([]projector, len(cameras))
	for i := range cameras {
		projectors[i] = newProjector(cameras[i], poses[i])
	}

	n := opts.Resolution
	e := opts.Extent
	vol := models.NewVolume(n, n, n, r3.Vector{X: -e, Y: -e, Z: -e}, 2*e/float64(n))

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	slicesPerWorker := (n + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * slicesPerWorker
		end := start + slicesPerWorker
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		g.Go(func() error {
			for z := start; z < end; z++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for y := 0; y < n; y++ {
					for x := 0; x < n; x++ {
						if keepVoxel(vol.Center(x, y, z), masks, projectors) {
							vol.Data[vol.Index(x, y, z)] = 1
						}
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lo, hi, ok := occupiedBounds(vol)
	if !ok {
		return nil, errdefs.DegenerateInput("the silhouettes carve away every voxel")
	}
	center := lo.Add(hi).Mul(0.5)
	radius := hi.Sub(lo).Norm() / 2

	res := &Result{
		Volume: vol,
		Center: center,
		Radius: radius,
		Box: models.Box{
			Min: lo.Sub(center).Mul(1 / radius),
			Max: hi.Sub(center).Mul(1 / radius),
		},
		Poses: make([]posemath.Pose, len(poses)),
	}
	for i, p := range poses {
		res.Poses[i] = p.WithTranslation(p.Translation().Sub(center).Mul(1 / radius))
	}
	return res, nil
}

func keepVoxel(c r3.Vector, masks []*mask.Mask, projectors []projector) bool {
	seen := false
	for i, pr := range projectors {
		px, py, ok := pr.pixel(c)
		if !ok {
			continue
		}
		if !masks[i].At(px, py) {
			return false
		}
		seen = true
	}
	return seen
}

// occupiedBounds returns the bounding box of the occupied voxels, covering each
// voxel's full extent.
func occupiedBounds(v *models.Volume) (lo, hi r3.Vector, ok bool) {
	lo = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	half := r3.Vector{X: v.VoxelSize.X / 2, Y: v.VoxelSize.Y / 2, Z: v.VoxelSize.Z / 2}
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				if v.Data[v.Index(x, y, z)] <= 0 {
					continue
				}
				c := v.Center(x, y, z)
				lo = r3.Vector{X: math.Min(lo.X, c.X-half.X), Y: math.Min(lo.Y, c.Y-half.Y), Z: math.Min(lo.Z, c.Z-half.Z)}
				hi = r3.Vector{X: math.Max(hi.X, c.X+half.X), Y: math.Max(hi.Y, c.Y+half.Y), Z: math.Max(hi.Z, c.Z+half.Z)}
				ok = true
			}
		}
	}
	return lo, hi, ok
}
