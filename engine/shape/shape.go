// Package shape defines the collision shapes of the physics engine.
//
// Convex shapes are described by a support mapping around a core plus a margin.
// Spheres and capsules are pure margin around a point or a segment.
package shape

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// Kind tags the closed set of shapes
type Kind int

const (
	KindSphere Kind = iota
	KindBox
	KindCapsule
	KindCylinder
	KindConvexHull
	KindTriangle
	KindCompound
	KindStaticMesh
	KindTerrain
)

var kindNames = [...]string{"Sphere", "Box", "Capsule", "Cylinder", "ConvexHull", "Triangle", "Compound", "StaticMesh", "Terrain"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// IsConvex reports whether shapes of this kind implement Convex
func (k Kind) IsConvex() bool {
	return k <= KindTriangle
}

var (
	// ErrEmptyHull is returned when a convex hull is built from no points
	ErrEmptyHull = errors.New("shape: convex hull has no points")
	// ErrDegenerateHull is returned when the hull points do not span a volume
	ErrDegenerateHull = errors.New("shape: convex hull points are degenerate")
	// ErrInvalidDimension is returned for zero or negative sizes
	ErrInvalidDimension = errors.New("shape: invalid dimension")
	// ErrDegenerateTriangle is returned for zero area triangles
	ErrDegenerateTriangle = errors.New("shape: degenerate triangle")
	// ErrEmptyMesh is returned for meshes without triangles
	ErrEmptyMesh = errors.New("shape: mesh has no triangles")
	// ErrEmptyCompound is returned for compounds without children
	ErrEmptyCompound = errors.New("shape: compound has no children")
	// ErrBadHeightField is returned for terrains with too few or ragged rows
	ErrBadHeightField = errors.New("shape: invalid height field")
)

// Shape is implemented by all collision shapes
type Shape interface {
	Kind() Kind
	// LocalAABB bounds the shape including its margin
	LocalAABB() fixed.AABB
}

// Convex is a shape with a support mapping
type Convex interface {
	Shape
	// LocalSupport returns the extreme point of the core along dir
	LocalSupport(dir fixed.Vec3) fixed.Vec3
	// Margin is the rounding radius added around the core
	Margin() fixed.Fixed
	// LocalFeature appends the vertices of the feature (face, edge or point) most
	// extreme along dir to buf. Face vertices are returned in winding order and
	// include the margin.
	LocalFeature(dir fixed.Vec3, buf []fixed.Vec3) []fixed.Vec3
	Volume() fixed.Fixed
	// VolumeInertia is the inertia tensor at unit density around the local origin
	VolumeInertia() fixed.Mat3
	RayCastLocal(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool)
}

// RayHit is the result of a ray query
type RayHit struct {
	T      fixed.Fixed // distance along the ray, in units of the ray direction
	Normal fixed.Vec3
	// Triangle is the triangle index for mesh and terrain hits, -1 otherwise
	Triangle int
}

// Transform is a rigid pose
type Transform struct {
	Position    fixed.Vec3
	Orientation fixed.Quat
}

// IdentityTransform has no translation and no rotation
var IdentityTransform = Transform{Orientation: fixed.QuatIdentity}

// Apply maps a local point to world space
func (t Transform) Apply(v fixed.Vec3) fixed.Vec3 {
	return t.Orientation.Rotate(v).Add(t.Position)
}

// ApplyInverse maps a world point to local space
func (t Transform) ApplyInverse(v fixed.Vec3) fixed.Vec3 {
	return t.Orientation.InverseRotate(v.Sub(t.Position))
}

// Compose returns the world transform of a child posed by local relative to t
func (t Transform) Compose(local Transform) Transform {
	return Transform{
		Position:    t.Apply(local.Position),
		Orientation: t.Orientation.Mul(local.Orientation).Normalize(),
	}
}

// SupportWithMargin returns the extreme point of the full shape along dir
func SupportWithMargin(c Convex, dir fixed.Vec3) fixed.Vec3 {
	p := c.LocalSupport(dir)
	m := c.Margin()
	if m == 0 {
		return p
	}
	return p.Add(dir.Normalize().Scale(m))
}

// WorldSupport returns the extreme core point in world space for a world direction
func WorldSupport(c Convex, t Transform, dir fixed.Vec3) fixed.Vec3 {
	return t.Apply(c.LocalSupport(t.Orientation.InverseRotate(dir)))
}

// WorldFeature is LocalFeature for a world direction, returning world points
func WorldFeature(c Convex, t Transform, dir fixed.Vec3, buf []fixed.Vec3) []fixed.Vec3 {
	start := len(buf)
	buf = c.LocalFeature(t.Orientation.InverseRotate(dir), buf)
	for i := start; i < len(buf); i++ {
		buf[i] = t.Apply(buf[i])
	}
	return buf
}

// WorldAABB returns the world bounds of s under t
func WorldAABB(s Shape, t Transform) fixed.AABB {
	return fixed.TransformAABB(s.LocalAABB(), fixed.FromQuat(t.Orientation), t.Position)
}

// InertiaForMass scales the unit density inertia to the given mass.
// Shapes without volume fall back to their bounding box.
func InertiaForMass(c Convex, mass fixed.Fixed) fixed.Mat3 {
	vol := c.Volume()
	if vol == 0 {
		e := c.LocalAABB().Extents()
		return boxInertia(e, mass)
	}
	return c.VolumeInertia().Scale(mass.Div(vol))
}

func boxInertia(h fixed.Vec3, mass fixed.Fixed) fixed.Mat3 {
	x2, y2, z2 := h.X.Mul(h.X), h.Y.Mul(h.Y), h.Z.Mul(h.Z)
	return fixed.Diagonal(fixed.Vec3{
		X: mass.Mul(y2 + z2).DivInt(3),
		Y: mass.Mul(x2 + z2).DivInt(3),
		Z: mass.Mul(x2 + y2).DivInt(3),
	})
}

// featureTolerance decides when several vertices belong to the same feature
var featureTolerance = fixed.FromRatio(1, 1000)

// faceCosine is the alignment needed to report a whole face as the feature
var faceCosine = fixed.FromRatio(95, 100)
