package gwphys

import (
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/scene"
	"github.com/xiaonanln/gwphys/engine/shape"
	"github.com/xiaonanln/gwphys/engine/space"
)

// Fixed is a Q32.32 fixed point number
type Fixed = fixed.Fixed

// Vec3 is a fixed point vector
type Vec3 = fixed.Vec3

// Space is a physics world
type Space = space.Space

// Settings tunes a Space
type Settings = space.Settings

// BodyDesc describes a dynamic body to add
type BodyDesc = body.Desc

// PlayerInput is one player's input of a tick
type PlayerInput = lockstep.PlayerInput

// FrameData is the confirmed input of all players for one tick
type FrameData = lockstep.FrameData

var (
	Zero = fixed.Zero
	Half = fixed.Half
	One  = fixed.One
)

// FromInt converts an integer to Fixed
func FromInt(v int64) Fixed {
	return fixed.FromInt(v)
}

// V3 makes a vector
func V3(x, y, z Fixed) Vec3 {
	return fixed.V3(x, y, z)
}

// DefaultSettings returns the settings of a 60 ticks per second space with earth gravity
func DefaultSettings() Settings {
	return space.DefaultSettings()
}

// NewSpace creates an empty space
func NewSpace(settings Settings) *Space {
	return space.New(settings)
}

// NewSphere creates a sphere shape
func NewSphere(radius Fixed) (*shape.Sphere, error) {
	return shape.NewSphere(radius)
}

// NewBox creates a box shape from its half extents
func NewBox(half Vec3) (*shape.Box, error) {
	return shape.NewBox(half)
}

// NewSimulator binds players to bodies of sp, moving them with the default movement
func NewSimulator(sp *Space) *lockstep.Simulator {
	return lockstep.NewSimulator(sp, lockstep.DefaultMovement)
}

// NewExecutor steps sim with the frames received on channel
func NewExecutor(sim *lockstep.Simulator, sampler lockstep.Sampler, channel lockstep.FrameChannel) *lockstep.Executor {
	return lockstep.NewExecutor(sim, sampler, channel, lockstep.DefaultConfig)
}

// BuildDemoScene builds the demo scene the binaries use
func BuildDemoScene(seed int64) (*scene.Scene, error) {
	c := scene.DefaultConfig()
	c.Seed = seed
	return scene.Build(c)
}
