// Package transport carries lockstep messages between clients and the authority.
package transport

import (
	"fmt"

	"github.com/xiaonanln/gwphys/engine/lockstep"
)

// MsgType tells which field of a Message is set
type MsgType uint16

const (
	// MsgHello is the first message of a client
	MsgHello MsgType = iota + 1
	// MsgWelcome answers MsgHello with the player slot
	MsgWelcome
	// MsgInput carries a client InputSample
	MsgInput
	// MsgFrame carries a confirmed FrameData
	MsgFrame
	// MsgChecksum carries a space checksum, from a client or relayed by the authority
	MsgChecksum
	// MsgReject refuses a MsgHello
	MsgReject
)

func (t MsgType) String() string {
	switch t {
	case MsgHello:
		return "Hello"
	case MsgWelcome:
		return "Welcome"
	case MsgInput:
		return "Input"
	case MsgFrame:
		return "Frame"
	case MsgChecksum:
		return "Checksum"
	case MsgReject:
		return "Reject"
	}
	return fmt.Sprintf("MsgType<%d>", uint16(t))
}

// ProtocolVersion is sent in Hello and must match on both ends
const ProtocolVersion = 1

// Hello introduces a client
type Hello struct {
	Version int    `msgpack:"v"`
	Name    string `msgpack:"n"`
}

// Welcome assigns a player slot and describes the session
type Welcome struct {
	Player  lockstep.PlayerID   `msgpack:"p"`
	Players []lockstep.PlayerID `msgpack:"ps"`
	Session string              `msgpack:"s"`
	// TickRate is the number of ticks per second
	TickRate int `msgpack:"r"`
	// StartTick is the first tick the authority will emit
	StartTick uint64 `msgpack:"t"`
	// Seed seeds the demo scene
	Seed int64 `msgpack:"d"`
	// Slots is the number of player slots the scene spawns
	Slots int `msgpack:"n"`
	// Scene holds the scene attributes, see scene.FromAttrs
	Scene map[string]interface{} `msgpack:"a,omitempty"`
}

// Message is the unit on the wire. Exactly one payload field matches Type.
type Message struct {
	Type     MsgType               `msgpack:"y"`
	Hello    *Hello                `msgpack:"h,omitempty"`
	Welcome  *Welcome              `msgpack:"w,omitempty"`
	Input    *lockstep.InputSample `msgpack:"i,omitempty"`
	Frame    *lockstep.FrameData   `msgpack:"f,omitempty"`
	Checksum *lockstep.Checksum    `msgpack:"c,omitempty"`
	Reason   string                `msgpack:"r,omitempty"`
}

func (m *Message) String() string {
	switch m.Type {
	case MsgFrame:
		if m.Frame != nil {
			return fmt.Sprintf("Message<%s|%s>", m.Type, *m.Frame)
		}
	case MsgChecksum:
		if m.Checksum != nil {
			return fmt.Sprintf("Message<%s|%s>", m.Type, *m.Checksum)
		}
	case MsgInput:
		if m.Input != nil {
			return fmt.Sprintf("Message<%s|%d>", m.Type, m.Input.Tick)
		}
	}
	return fmt.Sprintf("Message<%s>", m.Type)
}

// valid checks that the payload of Type is present
func (m *Message) valid() bool {
	switch m.Type {
	case MsgHello:
		return m.Hello != nil
	case MsgWelcome:
		return m.Welcome != nil
	case MsgInput:
		return m.Input != nil
	case MsgFrame:
		return m.Frame != nil
	case MsgChecksum:
		return m.Checksum != nil
	case MsgReject:
		return true
	}
	return false
}
