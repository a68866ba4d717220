package shape

import (
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// CompoundChild is a convex shape posed relative to the compound origin
type CompoundChild struct {
	Shape Convex
	Local Transform
}

// Compound groups convex children into one collidable
type Compound struct {
	Children []CompoundChild
	aabb     fixed.AABB
}

// NewCompound creates a compound; the children are copied
func NewCompound(children []CompoundChild) (*Compound, error) {
	if len(children) == 0 {
		return nil, ErrEmptyCompound
	}
	c := &Compound{Children: append([]CompoundChild(nil), children...)}
	c.aabb = fixed.EmptyAABB()
	for i := range c.Children {
		ch := &c.Children[i]
		if ch.Local.Orientation == (fixed.Quat{}) {
			ch.Local.Orientation = fixed.QuatIdentity
		}
		c.aabb = c.aabb.Merge(WorldAABB(ch.Shape, ch.Local))
	}
	return c, nil
}

func (c *Compound) Kind() Kind { return KindCompound }

func (c *Compound) LocalAABB() fixed.AABB { return c.aabb }

// Volume sums the children volumes
func (c *Compound) Volume() fixed.Fixed {
	var v fixed.Fixed
	for _, ch := range c.Children {
		v += ch.Shape.Volume()
	}
	return v
}

// VolumeInertia sums the rotated child tensors shifted to the compound origin
func (c *Compound) VolumeInertia() fixed.Mat3 {
	var total fixed.Mat3
	for _, ch := range c.Children {
		r := fixed.FromQuat(ch.Local.Orientation)
		it := ch.Shape.VolumeInertia().RotateInertia(r)
		m := ch.Shape.Volume()
		d := ch.Local.Position
		// parallel axis: m * (|d|^2 E - d d^T)
		dd := d.LengthSquared()
		var shift fixed.Mat3
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				v := -d.Get(i).Mul(d.Get(j))
				if i == j {
					v += dd
				}
				shift.M[i][j] = v.Mul(m)
			}
		}
		total = total.Add(it).Add(shift)
	}
	return total
}

// InertiaForMass scales the compound's unit density inertia to mass
func (c *Compound) InertiaForMass(mass fixed.Fixed) fixed.Mat3 {
	vol := c.Volume()
	if vol == 0 {
		return boxInertia(c.aabb.Extents(), mass)
	}
	return c.VolumeInertia().Scale(mass.Div(vol))
}

// RayCastLocal returns the nearest child hit
func (c *Compound) RayCastLocal(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	best := RayHit{T: fixed.MaxValue, Triangle: -1}
	found := false
	for _, ch := range c.Children {
		lo := ch.Local.ApplyInverse(origin)
		ld := ch.Local.Orientation.InverseRotate(dir)
		if hit, ok := ch.Shape.RayCastLocal(lo, ld, maxT); ok && hit.T < best.T {
			hit.Normal = ch.Local.Orientation.Rotate(hit.Normal)
			best, found = hit, true
		}
	}
	return best, found
}
