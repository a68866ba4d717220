package transport

import (
	"context"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/lockstep"
)

// echoAuthority welcomes a client then turns each input into a frame for the next tick
func echoAuthority(c *Conn) {
	defer c.Close()
	ctx := context.Background()
	m, err := c.Recv()
	if err != nil || m.Type != MsgHello {
		return
	}
	if m.Hello.Version != ProtocolVersion {
		c.SendReject(ctx, "version")
		return
	}
	c.SendWelcome(ctx, Welcome{Player: 3, Players: []lockstep.PlayerID{3}, Session: "s", TickRate: 60, StartTick: 1})
	for {
		m, err := c.Recv()
		if err != nil {
			return
		}
		switch m.Type {
		case MsgInput:
			c.SendFrame(ctx, lockstep.NewFrameData(m.Input.Tick+1, m.Input.Inputs))
		case MsgChecksum:
			c.SendChecksum(ctx, *m.Checksum)
		}
	}
}

func testLoopback(t *testing.T, network Network, compress bool) {
	srv, err := Listen(network, "127.0.0.1:0", compress, echoAuthority)
	assert.T(t, err == nil)
	defer srv.Close()

	c, err := Dial(network, "127.0.0.1", srv.Port(), compress)
	assert.Tf(t, err == nil, "dial: %v", err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.T(t, c.SendHello(ctx, "tester") == nil)
	m, err := c.Recv()
	assert.T(t, err == nil)
	assert.Equal(t, MsgWelcome, m.Type)
	assert.Equal(t, lockstep.PlayerID(3), m.Welcome.Player)
	assert.Equal(t, 60, m.Welcome.TickRate)

	fc := FrameChannel{c}
	var _ lockstep.FrameChannel = fc
	var _ lockstep.FrameStream = fc
	for tick := uint64(0); tick < 20; tick++ {
		in := lockstep.PlayerInput{Player: 3, Forward: fixed.FromRatio(int64(tick), 7), Strafe: -fixed.Half, Buttons: lockstep.ButtonJump}
		assert.T(t, fc.Send(ctx, lockstep.InputSample{Tick: tick, Inputs: []lockstep.PlayerInput{in}}) == nil)
		msg, err := fc.Recv()
		assert.T(t, err == nil)
		assert.T(t, msg.Frame != nil)
		assert.Equal(t, tick+1, msg.Frame.Tick)
		assert.Equal(t, []lockstep.PlayerInput{in}, msg.Frame.Inputs)
	}

	sum := lockstep.Checksum{Tick: 60, Sum: 0xdeadbeefcafef00d}
	assert.T(t, fc.SendChecksum(ctx, sum) == nil)
	msg, err := fc.Recv()
	assert.T(t, err == nil)
	assert.Equal(t, sum, *msg.Checksum)
}

func TestLoopbackTCP(t *testing.T) {
	testLoopback(t, TCP, false)
}

func TestLoopbackTCPCompressed(t *testing.T) {
	testLoopback(t, TCP, true)
}

func TestLoopbackKCP(t *testing.T) {
	testLoopback(t, KCP, false)
}

func TestLoopbackWebSocket(t *testing.T) {
	testLoopback(t, WebSocket, false)
}

func TestClosedConn(t *testing.T) {
	srv, err := Listen(TCP, "127.0.0.1:0", false, func(c *Conn) {
		c.Recv()
	})
	assert.T(t, err == nil)
	defer srv.Close()
	c, err := Dial(TCP, "127.0.0.1", srv.Port(), false)
	assert.T(t, err == nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Recv()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	assert.T(t, c.Close() == nil)
	assert.Equal(t, ErrClosed, <-done)
	assert.Equal(t, ErrClosed, c.SendHello(context.Background(), "late"))
	assert.T(t, c.IsClosed())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c2, err := Dial(TCP, "127.0.0.1", srv.Port(), false)
	assert.T(t, err == nil)
	defer c2.Close()
	assert.Equal(t, context.Canceled, c2.SendHello(ctx, "cancelled"))
}

func TestParseNetwork(t *testing.T) {
	for s, n := range map[string]Network{"tcp": TCP, "KCP": KCP, " ws": WebSocket, "": TCP} {
		got, err := ParseNetwork(s)
		assert.T(t, err == nil)
		assert.Equal(t, n, got)
	}
	_, err := ParseNetwork("quic")
	assert.T(t, err != nil)
}
