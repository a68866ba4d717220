package replaycommon

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/lockstep"
)

// ErrNotFound is returned when loading a session that was never created
var ErrNotFound = errors.New("replay: session not found")

// Meta describes a recorded session
type Meta struct {
	Session  string              `msgpack:"session"`
	Created  int64               `msgpack:"created"`
	Player   lockstep.PlayerID   `msgpack:"player"`
	Players  []lockstep.PlayerID `msgpack:"players"`
	TickRate int                 `msgpack:"tick_rate"`
	Seed     int64               `msgpack:"seed"`
	// Attrs holds what is needed to rebuild the world, such as scene parameters
	Attrs map[string]interface{} `msgpack:"attrs,omitempty"`
}

func (m Meta) String() string {
	return fmt.Sprintf("Meta<%s|player %d of %v>", m.Session, m.Player, m.Players)
}

// Batch is one journal write
type Batch struct {
	Frames    []lockstep.FrameData `msgpack:"f,omitempty"`
	Checksums []lockstep.Checksum  `msgpack:"c,omitempty"`
}

// Empty reports whether the batch carries nothing
func (b Batch) Empty() bool {
	return len(b.Frames) == 0 && len(b.Checksums) == 0
}

// Recording is a loaded session
type Recording struct {
	Meta      Meta
	Frames    []lockstep.FrameData
	Checksums []lockstep.Checksum
}

// Add appends a batch read back from a journal
func (r *Recording) Add(b Batch) {
	r.Frames = append(r.Frames, b.Frames...)
	r.Checksums = append(r.Checksums, b.Checksums...)
}

// Backend defines the interface of replay storage backends
type Backend interface {
	// Create stores the meta of a new session
	Create(meta Meta) error
	// Append adds a batch to the journal of a session
	Append(session string, batch Batch) error
	Load(session string) (*Recording, error)
	List() ([]string, error)
	Close()
	IsEOF(err error) bool
}
