package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/netutil"
)

var (
	// ErrClosed is returned by operations on a closed Conn
	ErrClosed = errors.New("transport: connection closed")
	// ErrBadMessage is returned for messages whose payload does not match the type
	ErrBadMessage = errors.New("transport: malformed message")
)

// Conn sends and receives Messages over a buffered stream connection.
// Sends may come from several goroutines; Recv must be called from one.
type Conn struct {
	conn     netutil.Connection
	raw      net.Conn
	sendLock sync.Mutex
	closed   xnsyncutil.AtomicBool
}

// NewConn wraps an established connection
func NewConn(raw net.Conn, compress bool) *Conn {
	return &Conn{
		conn: netutil.NewConnection(raw, compress),
		raw:  raw,
	}
}

func (c *Conn) String() string {
	return fmt.Sprintf("Conn<%s>", c.RemoteAddr())
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Send writes and flushes m. A deadline on ctx becomes the write deadline.
func (c *Conn) Send(ctx context.Context, m *Message) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sendLock.Lock()
	defer c.sendLock.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.raw.SetWriteDeadline(deadline)
		defer c.raw.SetWriteDeadline(time.Time{})
	}
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: send %s", c, m)
	}
	if err := netutil.WriteMsg(c.conn, m); err != nil {
		return errors.Wrapf(err, "%s send %s", c, m.Type)
	}
	return errors.Wrapf(c.conn.Flush(), "%s flush", c)
}

// Recv blocks until the next message arrives
func (c *Conn) Recv() (*Message, error) {
	m := &Message{}
	if err := netutil.ReadMsg(c.conn, m); err != nil {
		if c.closed.Load() {
			return nil, ErrClosed
		}
		return nil, err
	}
	if !m.valid() {
		return nil, errors.Wrapf(ErrBadMessage, "%s", m)
	}
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: recv %s", c, m)
	}
	return m, nil
}

// SendHello sends MsgHello
func (c *Conn) SendHello(ctx context.Context, name string) error {
	return c.Send(ctx, &Message{Type: MsgHello, Hello: &Hello{Version: ProtocolVersion, Name: name}})
}

// SendWelcome sends MsgWelcome
func (c *Conn) SendWelcome(ctx context.Context, w Welcome) error {
	return c.Send(ctx, &Message{Type: MsgWelcome, Welcome: &w})
}

// SendReject sends MsgReject
func (c *Conn) SendReject(ctx context.Context, reason string) error {
	return c.Send(ctx, &Message{Type: MsgReject, Reason: reason})
}

// SendFrame sends MsgFrame
func (c *Conn) SendFrame(ctx context.Context, f lockstep.FrameData) error {
	return c.Send(ctx, &Message{Type: MsgFrame, Frame: &f})
}

// SendInput sends MsgInput
func (c *Conn) SendInput(ctx context.Context, sample lockstep.InputSample) error {
	return c.Send(ctx, &Message{Type: MsgInput, Input: &sample})
}

// SendChecksum sends MsgChecksum
func (c *Conn) SendChecksum(ctx context.Context, sum lockstep.Checksum) error {
	return c.Send(ctx, &Message{Type: MsgChecksum, Checksum: &sum})
}

// Close closes the underlying connection; a blocked Recv returns ErrClosed
func (c *Conn) Close() error {
	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)
	return c.raw.Close()
}

// IsClosed reports whether Close was called
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// FrameChannel adapts a Conn to lockstep.FrameChannel and lockstep.FrameStream
type FrameChannel struct {
	*Conn
}

// Send sends the local input sample
func (fc FrameChannel) Send(ctx context.Context, sample lockstep.InputSample) error {
	return fc.Conn.SendInput(ctx, sample)
}

// Recv returns the next frame or relayed checksum, skipping other messages
func (fc FrameChannel) Recv() (lockstep.Message, error) {
	for {
		m, err := fc.Conn.Recv()
		if err != nil {
			return lockstep.Message{}, err
		}
		switch m.Type {
		case MsgFrame:
			return lockstep.Message{Frame: m.Frame}, nil
		case MsgChecksum:
			return lockstep.Message{Checksum: m.Checksum}, nil
		default:
			gwlog.Warnf("%s: unexpected %s", fc.Conn, m)
		}
	}
}
