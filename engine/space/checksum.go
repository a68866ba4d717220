package space

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/xiaonanln/gwphys/engine/fixed"
)

// Checksum hashes the tick count and the pose and velocity of every body in handle order
// with FNV-1a. Equal checksums on two peers at the same tick mean equal states.
func (s *Space) Checksum() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	putVec := func(v fixed.Vec3) {
		put(uint64(v.X.Raw()))
		put(uint64(v.Y.Raw()))
		put(uint64(v.Z.Raw()))
	}
	put(s.tick)
	for i := range s.bodies {
		slot := &s.bodies[i]
		if !slot.alive {
			continue
		}
		b := slot.body
		put(uint64(i)<<32 | uint64(slot.gen))
		putVec(b.Position)
		q := b.Orientation
		put(uint64(q.X.Raw()))
		put(uint64(q.Y.Raw()))
		put(uint64(q.Z.Raw()))
		put(uint64(q.W.Raw()))
		putVec(b.LinearVelocity)
		putVec(b.AngularVelocity)
	}
	return h.Sum64()
}
