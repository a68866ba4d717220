package scene

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/lockstep"
)

func near(a, b, tol fixed.Fixed) bool {
	return (a - b).Abs() <= tol
}

func TestBuildDeterministic(t *testing.T) {
	c := DefaultConfig()
	c.Seed = 42
	s1, err := Build(c)
	assert.T(t, err == nil)
	s2, err := Build(c)
	assert.T(t, err == nil)
	assert.Equal(t, []lockstep.PlayerID{1, 2}, s1.Players())
	assert.Equal(t, 4, len(s1.Boxes))
	assert.Equal(t, s1.Space.Checksum(), s2.Space.Checksum())

	for tick := uint64(1); tick <= 120; tick++ {
		f := lockstep.NewFrameData(tick, []lockstep.PlayerInput{
			{Player: 1, Forward: fixed.One},
			{Player: 2, Strafe: -fixed.Half},
		})
		assert.T(t, s1.Step(f) == nil)
		assert.T(t, s2.Step(f) == nil)
	}
	assert.Equal(t, s1.Space.Checksum(), s2.Space.Checksum())
}

func TestStackSettles(t *testing.T) {
	c := DefaultConfig()
	c.Boxes = 3
	c.Players = nil
	sc, err := Build(c)
	assert.T(t, err == nil)
	for tick := uint64(1); tick <= 300; tick++ {
		assert.T(t, sc.Step(lockstep.NewFrameData(tick, nil)) == nil)
	}
	tol := fixed.FromRatio(5, 100)
	for i, id := range sc.Boxes {
		b, err := sc.Space.Body(id)
		assert.T(t, err == nil)
		want := fixed.Half + fixed.FromInt(int64(i))
		assert.T(t, near(b.Position.Y, want, tol), i, b.Position)
		assert.T(t, b.LinearVelocity.Length() < tol, i, b.LinearVelocity)
	}
}

func TestAttrs(t *testing.T) {
	c := DefaultConfig()
	c.Boxes = 7
	c.TerrainCells = 8
	got, err := FromAttrs(DefaultConfig(), c.Attrs())
	assert.T(t, err == nil)
	assert.Equal(t, 7, got.Boxes)
	assert.Equal(t, 8, got.TerrainCells)

	// attrs read back from a recording carry msgpack integer types
	got, err = FromAttrs(DefaultConfig(), map[string]interface{}{"scene": "demo", "boxes": int8(2), "terrain_cells": uint64(4)})
	assert.T(t, err == nil)
	assert.Equal(t, 2, got.Boxes)
	assert.Equal(t, 4, got.TerrainCells)

	_, err = FromAttrs(DefaultConfig(), map[string]interface{}{"scene": "castle"})
	assert.T(t, err != nil)
}

func TestBuildErrors(t *testing.T) {
	c := DefaultConfig()
	c.TerrainCells = 1
	_, err := Build(c)
	assert.T(t, err != nil)
	c = DefaultConfig()
	c.Boxes = -1
	_, err = Build(c)
	assert.T(t, err != nil)
}
