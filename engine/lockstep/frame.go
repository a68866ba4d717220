// Package lockstep buffers confirmed input frames and drives a space exactly once per frame.
package lockstep

import (
	"fmt"

	"github.com/xiaonanln/gwphys/engine/fixed"
)

// PlayerID identifies a player slot assigned by the authority
type PlayerID uint16

// Button bits of PlayerInput.Buttons
const (
	ButtonJump uint32 = 1 << iota
	ButtonBrake
)

// PlayerInput is one player's input for one tick. Forward and Strafe are axis values in [-1, 1].
type PlayerInput struct {
	Player  PlayerID    `msgpack:"p"`
	Forward fixed.Fixed `msgpack:"f"`
	Strafe  fixed.Fixed `msgpack:"s"`
	Buttons uint32      `msgpack:"b"`
}

// FrameData holds the inputs of all players for one tick. Inputs are sorted by player.
type FrameData struct {
	Tick   uint64        `msgpack:"t"`
	Inputs []PlayerInput `msgpack:"i"`
}

// NewFrameData builds a frame owning a copy of inputs
func NewFrameData(tick uint64, inputs []PlayerInput) FrameData {
	return FrameData{Tick: tick, Inputs: append([]PlayerInput(nil), inputs...)}
}

func (f FrameData) clone() FrameData {
	return NewFrameData(f.Tick, f.Inputs)
}

func (f FrameData) String() string {
	return fmt.Sprintf("FrameData<%d|%d inputs>", f.Tick, len(f.Inputs))
}

// InputSample is what a client sends once per tick: its local inputs stamped with the
// last tick it has confirmed.
type InputSample struct {
	Tick   uint64        `msgpack:"t"`
	Inputs []PlayerInput `msgpack:"i"`
}

// Checksum is a space checksum taken right after a tick was stepped
type Checksum struct {
	Tick uint64 `msgpack:"t"`
	Sum  uint64 `msgpack:"s"`
}

func (c Checksum) String() string {
	return fmt.Sprintf("Checksum<%d|%016x>", c.Tick, c.Sum)
}
