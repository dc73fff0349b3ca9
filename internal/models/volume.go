package models

import "github.com/golang/geo/r3"

// Volume represents a dense 3D occupancy grid
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order (x fastest, then y, then z)
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the depth of the volume in voxels
	Depth int

	// Origin is the world position of the corner of voxel (0, 0, 0)
	Origin r3.Vector

	// VoxelSize is the world size of each voxel along each axis
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates an empty volume.
func NewVolume(width, height, depth int, origin r3.Vector, size float64) *Volume {
	v := &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
		Origin: origin,
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = size, size, size
	return v
}

// Index returns the position of voxel (x, y, z) in Data.
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// Center returns the world position of the center of voxel (x, y, z).
func (v *Volume) Center(x, y, z int) r3.Vector {
	return r3.Vector{
		X: v.Origin.X + (float64(x)+0.5)*v.VoxelSize.X,
		Y: v.Origin.Y + (float64(y)+0.5)*v.VoxelSize.Y,
		Z: v.Origin.Z + (float64(z)+0.5)*v.VoxelSize.Z,
	}
}

// Occupied counts voxels with a positive value.
func (v *Volume) Occupied() int {
	n := 0
	for _, d := range v.Data {
		if d > 0 {
			n++
		}
	}
	return n
}

// Box is an axis-aligned 3D box.
type Box struct {
	Min, Max r3.Vector
}

// Center returns the midpoint of the box.
func (b Box) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Corners returns the eight corners of the box.
func (b Box) Corners() [8]r3.Vector {
	var out [8]r3.Vector
	for i := 0; i < 8; i++ {
		c := b.Min
		if i&1 != 0 {
			c.X = b.Max.X
		}
		if i&2 != 0 {
			c.Y = b.Max.Y
		}
		if i&4 != 0 {
			c.Z = b.Max.Z
		}
		out[i] = c
	}
	return out
}
