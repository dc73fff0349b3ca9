// Package posemath provides the closed-form camera geometry used throughout mvprep:
// 4x4 camera-to-world poses, 3x3 rotations, pose convention conversion and
// 90 degree image rotation.
package posemath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is a homogeneous 4x4 camera-to-world rigid transform, row-major.
type Pose [4][4]float64

// Rotation is a 3x3 rotation matrix, row-major.
type Rotation [3][3]float64

// Identity returns the identity pose.
func Identity() Pose {
	return Pose{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// FromRotationTranslation builds a pose from a rotation and a translation.
func FromRotationTranslation(r Rotation, t r3.Vector) Pose {
	p := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p[i][j] = r[i][j]
		}
	}
	p[0][3], p[1][3], p[2][3] = t.X, t.Y, t.Z
	return p
}

// Dense returns the pose as a gonum matrix.
func (p Pose) Dense() *mat.Dense {
	data := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		data = append(data, p[i][:]...)
	}
	return mat.NewDense(4, 4, data)
}

// PoseFromDense copies a 4x4 gonum matrix into a Pose.
func PoseFromDense(m mat.Matrix) Pose {
	var p Pose
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			p[i][j] = m.At(i, j)
		}
	}
	return p
}

// Mul returns p * q.
func (p Pose) Mul(q Pose) Pose {
	var out mat.Dense
	out.Mul(p.Dense(), q.Dense())
	return PoseFromDense(&out)
}

// Translation returns the camera center in world coordinates.
func (p Pose) Translation() r3.Vector {
	return r3.Vector{X: p[0][3], Y: p[1][3], Z: p[2][3]}
}

// WithTranslation returns a copy of p with its translation replaced.
func (p Pose) WithTranslation(t r3.Vector) Pose {
	p[0][3], p[1][3], p[2][3] = t.X, t.Y, t.Z
	return p
}

// Rotation returns the upper-left 3x3 block.
func (p Pose) Rotation() Rotation {
	var r Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = p[i][j]
		}
	}
	return r
}

// Column returns column j of the rotation block, i.e. the camera's local axis j in world space.
func (p Pose) Column(j int) r3.Vector {
	return r3.Vector{X: p[0][j], Y: p[1][j], Z: p[2][j]}
}

// Inverse returns the inverse of a rigid transform: [R^T | -R^T t].
func (p Pose) Inverse() Pose {
	rt := p.Rotation().Transpose()
	t := rt.Apply(p.Translation())
	return FromRotationTranslation(rt, t.Mul(-1))
}

// Apply transforms a point by the pose.
func (p Pose) Apply(v r3.Vector) r3.Vector {
	return p.Rotation().Apply(v).Add(p.Translation())
}

// Transpose returns r^T, which is also its inverse.
func (r Rotation) Transpose() Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[j][i]
		}
	}
	return out
}

// Apply rotates v.
func (r Rotation) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}
