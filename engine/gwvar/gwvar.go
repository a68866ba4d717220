// Package gwvar publishes process state through expvar, served at /debug/vars by the binutil http server.
package gwvar

import "expvar"

// Bool is an expvar published as 0 or 1
type Bool struct {
	val *expvar.Int
}

// NewBool publishes a Bool under name
func NewBool(name string) *Bool {
	return &Bool{
		val: expvar.NewInt(name),
	}
}

func (b *Bool) Value() bool {
	return b.val.Value() > 0
}

func (b *Bool) Set(v bool) {
	if v {
		b.val.Set(1)
	} else {
		b.val.Set(0)
	}
}

var (
	// IsSessionStarted is set once the authority emitted its first frame
	IsSessionStarted = NewBool("IsSessionStarted")
	// JoinedPlayers is the number of connected players on the authority
	JoinedPlayers = expvar.NewInt("JoinedPlayers")
	// EmittedTick is the last frame tick the authority emitted
	EmittedTick = expvar.NewInt("EmittedTick")
	// ConsumedTick is the last frame tick the client stepped
	ConsumedTick = expvar.NewInt("ConsumedTick")
	// IsStalled is set while the client waits for a frame
	IsStalled = NewBool("IsStalled")
)
