package gwphys

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestFreeFall(t *testing.T) {
	sp := NewSpace(DefaultSettings())
	ball, err := NewSphere(Half)
	assert.T(t, err == nil)
	id, err := sp.AddBody(BodyDesc{Shape: ball, Position: V3(Zero, FromInt(5), Zero), Mass: One})
	assert.T(t, err == nil)
	for i := 0; i < 60; i++ {
		assert.T(t, sp.Step() == nil)
	}
	b, err := sp.Body(id)
	assert.T(t, err == nil)
	assert.Tf(t, b.Position.Y < FromInt(1), "ball at %s after one second", b.Position.Y)
}

func TestDemoSceneDeterministic(t *testing.T) {
	a, err := BuildDemoScene(5)
	assert.T(t, err == nil)
	b, err := BuildDemoScene(5)
	assert.T(t, err == nil)
	for tick := uint64(1); tick <= 30; tick++ {
		f := FrameData{Tick: tick, Inputs: []PlayerInput{{Player: 1, Forward: One}, {Player: 2}}}
		assert.T(t, a.Step(f) == nil)
		assert.T(t, b.Step(f) == nil)
	}
	assert.Equal(t, a.Space.Checksum(), b.Space.Checksum())
}
