// Package scene builds the demo world shared by clients, replays and tests: a terrain
// with a flat middle and rough rim, one sphere per player and a stack of boxes.
package scene

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/shape"
	"github.com/xiaonanln/gwphys/engine/space"
	"github.com/xiaonanln/typeconv"
)

const (
	attrScene        = "scene"
	attrBoxes        = "boxes"
	attrTerrainCells = "terrain_cells"

	demoSceneName = "demo"
)

var (
	cellSpacing  = fixed.Two
	playerRadius = fixed.Half
	boxHalf      = fixed.V3(fixed.Half, fixed.Half, fixed.Half)
	// boxes start this far apart so the stack settles instead of exploding
	boxGap = fixed.FromRatio(1, 100)
)

// Config describes a demo scene. Equal configs build identical spaces.
type Config struct {
	Settings space.Settings
	Movement lockstep.Movement
	Players  []lockstep.PlayerID
	// Boxes is the height of the box stack
	Boxes int
	// TerrainCells is the number of terrain cells per side
	TerrainCells int
	// Seed drives the rim heights and the box jitter
	Seed int64
}

// DefaultConfig is a two player scene with a stack of four boxes
func DefaultConfig() Config {
	return Config{
		Settings:     space.DefaultSettings(),
		Movement:     lockstep.DefaultMovement,
		Players:      []lockstep.PlayerID{1, 2},
		Boxes:        4,
		TerrainCells: 16,
	}
}

// Attrs returns the values a recording needs to rebuild the scene with FromAttrs
func (c Config) Attrs() map[string]interface{} {
	return map[string]interface{}{
		attrScene:        demoSceneName,
		attrBoxes:        c.Boxes,
		attrTerrainCells: c.TerrainCells,
	}
}

// FromAttrs rebuilds a Config from Attrs output. Players, Seed, Settings and Movement
// are not part of attrs and are left as in base.
func FromAttrs(base Config, attrs map[string]interface{}) (Config, error) {
	if name, _ := attrs[attrScene].(string); name != demoSceneName {
		return base, errors.Errorf("scene: unknown scene %q", attrs[attrScene])
	}
	base.Boxes = int(typeconv.Int(attrs[attrBoxes]))
	base.TerrainCells = int(typeconv.Int(attrs[attrTerrainCells]))
	return base, nil
}

// Scene is a built demo world
type Scene struct {
	*lockstep.Simulator
	// Boxes lists the stack from bottom to top
	Boxes []space.BodyID
}

// Build creates the space and binds each player to its sphere
func Build(c Config) (*Scene, error) {
	if c.TerrainCells < 2 {
		return nil, errors.Errorf("scene: terrain needs at least 2 cells, got %d", c.TerrainCells)
	}
	if c.Boxes < 0 {
		return nil, errors.Errorf("scene: negative box count %d", c.Boxes)
	}
	rnd := rand.New(rand.NewSource(c.Seed))
	sp := space.New(c.Settings)

	ter, err := buildTerrain(c.TerrainCells, rnd)
	if err != nil {
		return nil, err
	}
	if _, err := sp.AddTerrain(ter, space.StaticDesc{}); err != nil {
		return nil, errors.Wrap(err, "scene: add terrain")
	}

	sc := &Scene{Simulator: lockstep.NewSimulator(sp, c.Movement)}
	for i, player := range c.Players {
		sph, err := shape.NewSphere(playerRadius)
		if err != nil {
			return nil, err
		}
		pos := fixed.V3(fixed.FromInt(int64(2*i-len(c.Players)+1)), playerRadius, fixed.FromInt(4))
		id, err := sp.AddBody(body.Desc{Shape: sph, Position: pos, Mass: fixed.One})
		if err != nil {
			return nil, errors.Wrapf(err, "scene: add player %d", player)
		}
		if err := sc.SetPlayer(player, id); err != nil {
			return nil, err
		}
	}

	y := boxHalf.Y
	for i := 0; i < c.Boxes; i++ {
		box, err := shape.NewBox(boxHalf)
		if err != nil {
			return nil, err
		}
		jitter := fixed.FromRatio(rnd.Int63n(5)-2, 100)
		pos := fixed.V3(jitter, y, fixed.Zero)
		id, err := sp.AddBody(body.Desc{Shape: box, Position: pos, Mass: fixed.One})
		if err != nil {
			return nil, errors.Wrapf(err, "scene: add box %d", i)
		}
		sc.Boxes = append(sc.Boxes, id)
		y += boxHalf.Y.MulInt(2) + boxGap
	}
	gwlog.Debugf("scene: built %d players, %d boxes on %dx%d terrain", len(c.Players), c.Boxes, c.TerrainCells, c.TerrainCells)
	return sc, nil
}

// buildTerrain makes a flat middle where the stack and players stand, with a rough rim
func buildTerrain(cells int, rnd *rand.Rand) (*shape.Terrain, error) {
	n := cells + 1
	rim := cells / 4
	heights := make([][]fixed.Fixed, n)
	for r := range heights {
		heights[r] = make([]fixed.Fixed, n)
		for col := range heights[r] {
			if r < rim || r >= n-rim || col < rim || col >= n-rim {
				heights[r][col] = fixed.FromRatio(rnd.Int63n(5), 4)
			}
		}
	}
	half := cellSpacing.MulInt(int64(cells)).DivInt(2)
	return shape.NewTerrain(heights, cellSpacing, cellSpacing, shape.Transform{
		Position:    fixed.V3(-half, fixed.Zero, -half),
		Orientation: fixed.QuatIdentity,
	})
}
