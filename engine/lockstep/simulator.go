package lockstep

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/space"
)

// ErrUnknownPlayer is returned for inputs naming a player with no body
var ErrUnknownPlayer = errors.New("lockstep: unknown player")

// Movement maps input axes onto player bodies
type Movement struct {
	// Speed is the planar speed at full axis deflection
	Speed fixed.Fixed
	// JumpSpeed is the upward speed set by ButtonJump while the body is not moving vertically
	JumpSpeed fixed.Fixed
	// GroundedVelocity is the vertical speed under which a body counts as grounded
	GroundedVelocity fixed.Fixed
}

// DefaultMovement moves players at 5 units per second and jumps at 5
var DefaultMovement = Movement{
	Speed:            fixed.FromInt(5),
	JumpSpeed:        fixed.FromInt(5),
	GroundedVelocity: fixed.FromRatio(1, 10),
}

// Simulator is a space plus the bodies players control in it
type Simulator struct {
	Space    *space.Space
	Movement Movement
	players  map[PlayerID]space.BodyID
}

// NewSimulator wraps sp
func NewSimulator(sp *space.Space, movement Movement) *Simulator {
	return &Simulator{
		Space:    sp,
		Movement: movement,
		players:  map[PlayerID]space.BodyID{},
	}
}

// SetPlayer binds a player to a body of the space
func (sim *Simulator) SetPlayer(player PlayerID, id space.BodyID) error {
	if _, err := sim.Space.Body(id); err != nil {
		return err
	}
	sim.players[player] = id
	return nil
}

// RemovePlayer unbinds a player; its body stays in the space
func (sim *Simulator) RemovePlayer(player PlayerID) {
	delete(sim.players, player)
}

// PlayerBody returns the body bound to player
func (sim *Simulator) PlayerBody(player PlayerID) (space.BodyID, bool) {
	id, ok := sim.players[player]
	return id, ok
}

// Players returns the bound players in ascending order
func (sim *Simulator) Players() []PlayerID {
	players := make([]PlayerID, 0, len(sim.players))
	for p := range sim.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })
	return players
}

// Validate checks that every input of f names a bound player whose body is alive
func (sim *Simulator) Validate(f FrameData) error {
	for _, in := range f.Inputs {
		id, ok := sim.players[in.Player]
		if !ok {
			return errors.Wrapf(ErrUnknownPlayer, "tick %d player %d", f.Tick, in.Player)
		}
		if _, err := sim.Space.Body(id); err != nil {
			return errors.Wrapf(err, "tick %d player %d", f.Tick, in.Player)
		}
	}
	return nil
}

// Apply overrides the planar velocity of every player body named in f. Forward maps to -Z
// and Strafe to +X. The vertical velocity is kept unless a grounded body jumps.
func (sim *Simulator) Apply(f FrameData) error {
	if err := sim.Validate(f); err != nil {
		return err
	}
	mv := sim.Movement
	for _, in := range f.Inputs {
		b, _ := sim.Space.Body(sim.players[in.Player])
		if !b.IsDynamic() {
			continue
		}
		forward := fixed.Clamp(in.Forward, -fixed.One, fixed.One)
		strafe := fixed.Clamp(in.Strafe, -fixed.One, fixed.One)
		v := b.LinearVelocity
		v.X = strafe.Mul(mv.Speed)
		v.Z = forward.Mul(mv.Speed).Neg()
		if in.Buttons&ButtonBrake != 0 {
			v.X, v.Z = fixed.Zero, fixed.Zero
		}
		if in.Buttons&ButtonJump != 0 && v.Y.Abs() < mv.GroundedVelocity {
			v.Y = mv.JumpSpeed
		}
		if v == b.LinearVelocity && b.Sleeping {
			continue
		}
		b.SetVelocity(v, b.AngularVelocity)
	}
	return nil
}

// Step applies f and advances the space by one tick
func (sim *Simulator) Step(f FrameData) error {
	if err := sim.Apply(f); err != nil {
		return err
	}
	return sim.Space.Step()
}
