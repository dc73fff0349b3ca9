// Package stl exports the carved occupancy hull as a binary STL mesh.
package stl

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"mvprep/internal/models"
)

// Triangle is one facet of the mesh.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// face is one side of a unit voxel: its outward normal, the offset of the
// neighbor it faces, and its corners counter-clockwise seen from outside.
type face struct {
	normal   [3]float32
	neighbor [3]int
	corners  [4][3]float64
}

var faces = [6]face{
	{[3]float32{1, 0, 0}, [3]int{1, 0, 0}, [4][3]float64{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{[3]float32{-1, 0, 0}, [3]int{-1, 0, 0}, [4][3]float64{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{[3]float32{0, 1, 0}, [3]int{0, 1, 0}, [4][3]float64{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{[3]float32{0, -1, 0}, [3]int{0, -1, 0}, [4][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{[3]float32{0, 0, 1}, [3]int{0, 0, 1}, [4][3]float64{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	{[3]float32{0, 0, -1}, [3]int{0, 0, -1}, [4][3]float64{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// HullMesher turns the occupied voxels of a volume into a closed surface made of
// the voxel faces between occupied and empty cells.
type HullMesher struct {
	vol       *models.Volume
	threshold float64
}

// NewHullMesher creates a mesher; voxels with a value above threshold are occupied.
func NewHullMesher(vol *models.Volume, threshold float64) *HullMesher {
	return &HullMesher{vol: vol, threshold: threshold}
}

func (m *HullMesher) occupied(x, y, z int) bool {
	v := m.vol
	if x < 0 || y < 0 || z < 0 || x >= v.Width || y >= v.Height || z >= v.Depth {
		return false
	}
	return v.Data[v.Index(x, y, z)] > m.threshold
}

// GenerateTriangles returns two triangles per exposed voxel face, in world
// coordinates, with outward normals.
func (m *HullMesher) GenerateTriangles() []Triangle {
	v := m.vol
	size := r3.Vector{X: v.VoxelSize.X, Y: v.VoxelSize.Y, Z: v.VoxelSize.Z}
	var out []Triangle
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				if !m.occupied(x, y, z) {
					continue
				}
				for _, f := range faces {
					if m.occupied(x+f.neighbor[0], y+f.neighbor[1], z+f.neighbor[2]) {
						continue
					}
					var c [4][3]float32
					for i, off := range f.corners {
						c[i] = [3]float32{
							float32(v.Origin.X + (float64(x)+off[0])*size.X),
							float32(v.Origin.Y + (float64(y)+off[1])*size.Y),
							float32(v.Origin.Z + (float64(z)+off[2])*size.Z),
						}
					}
					out = append(out,
						Triangle{Normal: f.normal, Vertex1: c[0], Vertex2: c[1], Vertex3: c[2]},
						Triangle{Normal: f.normal, Vertex1: c[0], Vertex2: c[2], Vertex3: c[3]},
					)
				}
			}
		}
	}
	return out
}

// SaveToSTL writes triangles as a binary STL file: an 80 byte header, a
// little-endian uint32 count and 50 bytes per triangle.
func SaveToSTL(filename string, triangles []Triangle) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create STL file")
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	w := bufio.NewWriter(file)
	var header [80]byte
	copy(header[:], "mvprep carved hull")
	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "failed to write STL header")
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return errors.Wrap(err, "failed to write triangle count")
	}

	var buf [50]byte
	for _, t := range triangles {
		for i, vec := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for j, c := range vec {
				binary.LittleEndian.PutUint32(buf[12*i+4*j:], math.Float32bits(c))
			}
		}
		if _, err := w.Write(buf[:]); err != nil {
			return errors.Wrap(err, "failed to write triangle")
		}
	}
	return w.Flush()
}
