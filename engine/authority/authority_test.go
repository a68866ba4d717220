package authority

import (
	"context"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/transport"
)

type mismatch struct {
	tick          uint64
	player        lockstep.PlayerID
	expected, got uint64
}

type recorder struct {
	joins      map[lockstep.PlayerID]string
	leaves     []lockstep.PlayerID
	mismatches []mismatch
	frames     []lockstep.FrameData
	sums       []lockstep.Checksum
}

func newRecorder() *recorder {
	return &recorder{joins: map[lockstep.PlayerID]string{}}
}

func (r *recorder) OnJoin(player lockstep.PlayerID, name string) { r.joins[player] = name }
func (r *recorder) OnLeave(player lockstep.PlayerID)             { r.leaves = append(r.leaves, player) }
func (r *recorder) OnChecksumMismatch(tick uint64, player lockstep.PlayerID, expected, got uint64) {
	r.mismatches = append(r.mismatches, mismatch{tick, player, expected, got})
}
func (r *recorder) RecordFrame(f lockstep.FrameData)  { r.frames = append(r.frames, f) }
func (r *recorder) RecordChecksum(c lockstep.Checksum) { r.sums = append(r.sums, c) }

// pumpUntil plays the authority main routine until cond holds
func pumpUntil(t *testing.T, a *Authority, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		a.ProcessInbound()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the authority")
		}
		time.Sleep(time.Millisecond)
	}
}

// recv reads the next message from c while pumping a
func recv(t *testing.T, a *Authority, c *transport.Conn) *transport.Message {
	ch := make(chan *transport.Message, 1)
	go func() {
		m, err := c.Recv()
		if err != nil {
			m = nil
		}
		ch <- m
	}()
	var m *transport.Message
	pumpUntil(t, a, func() bool {
		select {
		case m = <-ch:
			return true
		default:
			return false
		}
	})
	if m == nil {
		t.Fatal("recv failed")
	}
	return m
}

func recvFrame(t *testing.T, a *Authority, c *transport.Conn) lockstep.FrameData {
	m := recv(t, a, c)
	assert.Equal(t, transport.MsgFrame, m.Type)
	return *m.Frame
}

func join(t *testing.T, a *Authority, port int, name string) (*transport.Conn, *transport.Message) {
	c, err := transport.Dial(transport.TCP, "127.0.0.1", port, false)
	assert.Tf(t, err == nil, "dial: %v", err)
	assert.T(t, c.SendHello(context.Background(), name) == nil)
	return c, recv(t, a, c)
}

func TestAuthoritySession(t *testing.T) {
	a := New(Config{Players: 2, MinPlayers: 1, InputDelayTicks: 2, Session: "test", Seed: 7})
	r := newRecorder()
	a.Observer = r
	a.Journal = r
	srv, err := transport.Listen(transport.TCP, "127.0.0.1:0", false, a.Serve)
	assert.T(t, err == nil)
	defer srv.Close()

	a.Tick()
	assert.Equal(t, uint64(1), a.NextTick())

	alice, m := join(t, a, srv.Port(), "alice")
	defer alice.Close()
	assert.Equal(t, transport.MsgWelcome, m.Type)
	assert.Equal(t, transport.Welcome{
		Player: 1, Players: []lockstep.PlayerID{1}, Session: "test", TickRate: 60, StartTick: 1, Seed: 7, Slots: 2,
	}, *m.Welcome)
	assert.Equal(t, "alice", r.joins[1])

	a.Tick()
	assert.Equal(t, lockstep.NewFrameData(1, []lockstep.PlayerInput{{Player: 1}}), recvFrame(t, a, alice))

	// the player field is forced to the sender's slot
	ctx := context.Background()
	in := lockstep.PlayerInput{Player: 9, Forward: fixed.One, Buttons: lockstep.ButtonJump}
	assert.T(t, alice.SendInput(ctx, lockstep.InputSample{Tick: 1, Inputs: []lockstep.PlayerInput{in}}) == nil)
	pumpUntil(t, a, func() bool { return len(a.pending[4]) == 1 })
	in.Player = 1
	for tick := uint64(2); tick <= 4; tick++ {
		a.Tick()
		f := recvFrame(t, a, alice)
		assert.Equal(t, tick, f.Tick)
		if tick == 4 {
			assert.Equal(t, []lockstep.PlayerInput{in}, f.Inputs)
		} else {
			assert.Equal(t, []lockstep.PlayerInput{{Player: 1}}, f.Inputs)
		}
	}

	// a late sample lands on the next emitted tick
	late := lockstep.PlayerInput{Strafe: -fixed.Half}
	assert.T(t, alice.SendInput(ctx, lockstep.InputSample{Tick: 0, Inputs: []lockstep.PlayerInput{late}}) == nil)
	pumpUntil(t, a, func() bool { return len(a.pending[5]) == 1 })
	a.Tick()
	late.Player = 1
	assert.Equal(t, []lockstep.PlayerInput{late}, recvFrame(t, a, alice).Inputs)

	// bob joins late and replays the session
	bob, m := join(t, a, srv.Port(), "bob")
	defer bob.Close()
	assert.Equal(t, transport.MsgWelcome, m.Type)
	assert.Equal(t, lockstep.PlayerID(2), m.Welcome.Player)
	assert.Equal(t, []lockstep.PlayerID{1, 2}, m.Welcome.Players)
	assert.Equal(t, uint64(6), m.Welcome.StartTick)
	for tick := uint64(1); tick <= 5; tick++ {
		assert.Equal(t, r.frames[tick-1], recvFrame(t, a, bob))
	}
	a.Tick()
	both := []lockstep.PlayerInput{{Player: 1}, {Player: 2}}
	assert.Equal(t, both, recvFrame(t, a, alice).Inputs)
	assert.Equal(t, both, recvFrame(t, a, bob).Inputs)
	assert.Equal(t, 6, len(r.frames))

	// the first checksum of a tick is relayed, later ones are compared to it
	assert.T(t, alice.SendChecksum(ctx, lockstep.Checksum{Tick: 5, Sum: 42}) == nil)
	for _, c := range []*transport.Conn{alice, bob} {
		m := recv(t, a, c)
		assert.Equal(t, transport.MsgChecksum, m.Type)
		assert.Equal(t, lockstep.Checksum{Tick: 5, Sum: 42}, *m.Checksum)
	}
	assert.T(t, bob.SendChecksum(ctx, lockstep.Checksum{Tick: 5, Sum: 42}) == nil)
	assert.T(t, bob.SendChecksum(ctx, lockstep.Checksum{Tick: 5, Sum: 43}) == nil)
	pumpUntil(t, a, func() bool { return len(r.mismatches) == 1 })
	assert.Equal(t, mismatch{5, 2, 42, 43}, r.mismatches[0])
	assert.Equal(t, []lockstep.Checksum{{Tick: 5, Sum: 42}}, r.sums)

	// no free slot
	carol, m := join(t, a, srv.Port(), "carol")
	defer carol.Close()
	assert.Equal(t, transport.MsgReject, m.Type)

	// a returning name reclaims its slot
	alice.Close()
	pumpUntil(t, a, func() bool { return len(r.leaves) == 1 })
	assert.Equal(t, lockstep.PlayerID(1), r.leaves[0])
	alice2, m := join(t, a, srv.Port(), "alice")
	defer alice2.Close()
	assert.Equal(t, transport.MsgWelcome, m.Type)
	assert.Equal(t, lockstep.PlayerID(1), m.Welcome.Player)
	assert.Equal(t, uint64(7), m.Welcome.StartTick)
}

func TestAuthorityWaitsForPlayers(t *testing.T) {
	a := New(Config{Players: 3, MinPlayers: 2})
	srv, err := transport.Listen(transport.TCP, "127.0.0.1:0", false, a.Serve)
	assert.T(t, err == nil)
	defer srv.Close()

	c1, _ := join(t, a, srv.Port(), "one")
	defer c1.Close()
	a.Tick()
	assert.Equal(t, uint64(1), a.NextTick())

	c2, m := join(t, a, srv.Port(), "two")
	defer c2.Close()
	assert.Equal(t, lockstep.PlayerID(2), m.Welcome.Player)
	a.Tick()
	assert.Equal(t, uint64(2), a.NextTick())
	assert.Equal(t, []lockstep.PlayerInput{{Player: 1}, {Player: 2}}, recvFrame(t, a, c1).Inputs)
}

func TestAuthorityRun(t *testing.T) {
	a := New(Config{TickRate: 100, Players: 1})
	assert.Equal(t, 100, a.Config().TickRate)
	srv, err := transport.Listen(transport.TCP, "127.0.0.1:0", false, a.Serve)
	assert.T(t, err == nil)
	defer srv.Close()
	go a.Run()

	c, err := transport.Dial(transport.TCP, "127.0.0.1", srv.Port(), false)
	assert.T(t, err == nil)
	defer c.Close()
	assert.T(t, c.SendHello(context.Background(), "runner") == nil)
	m, err := c.Recv()
	assert.T(t, err == nil)
	assert.Equal(t, transport.MsgWelcome, m.Type)

	fc := transport.FrameChannel{Conn: c}
	for tick := uint64(1); tick <= 5; tick++ {
		msg, err := fc.Recv()
		assert.T(t, err == nil)
		assert.Equal(t, tick, msg.Frame.Tick)
	}
	a.Close()
	for {
		if _, err := c.Recv(); err != nil {
			break
		}
	}
}

func TestCloseWithoutRun(t *testing.T) {
	a := New(Config{})
	a.Close()
	assert.Equal(t, 1, a.Config().Players)
	assert.Equal(t, 60, a.Config().TickRate)
}

func TestJoinAfterClose(t *testing.T) {
	a := New(Config{})
	srv, err := transport.Listen(transport.TCP, "127.0.0.1:0", false, a.Serve)
	assert.T(t, err == nil)
	defer srv.Close()
	a.Close()

	c, err := transport.Dial(transport.TCP, "127.0.0.1", srv.Port(), false)
	assert.T(t, err == nil)
	defer c.Close()
	assert.T(t, c.SendHello(context.Background(), "late") == nil)
	done := make(chan error, 1)
	go func() {
		_, err := c.Recv()
		done <- err
	}()
	select {
	case err := <-done:
		assert.T(t, err != nil)
	case <-time.After(5 * time.Second):
		t.Fatal("join was left waiting after Close")
	}
}
