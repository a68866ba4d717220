package authority

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/transport"
)

const clientSendTimeout = time.Second * 5

// client is a connected player. Fields other than the send queue belong to the main routine.
type client struct {
	conn   *transport.Conn
	name   string
	player lockstep.PlayerID
	sendq  chan *transport.Message
	closed xnsyncutil.AtomicBool
}

func newClient(conn *transport.Conn, name string) *client {
	return &client{
		conn:  conn,
		name:  name,
		sendq: make(chan *transport.Message, consts.SEND_QUEUE_SIZE),
	}
}

func (c *client) String() string {
	return fmt.Sprintf("client<%d|%s@%s>", c.player, c.name, c.conn.RemoteAddr())
}

// send queues m; a client too slow to drain its queue is disconnected
func (c *client) send(m *transport.Message) {
	if c.closed.Load() {
		return
	}
	select {
	case c.sendq <- m:
	default:
		gwlog.Warnf("%s: send queue full, disconnecting", c)
		c.close()
	}
}

func (c *client) sendRoutine() {
	for m := range c.sendq {
		ctx, cancel := context.WithTimeout(context.Background(), clientSendTimeout)
		err := c.conn.Send(ctx, m)
		cancel()
		if err != nil {
			if !c.closed.Load() {
				gwlog.Warnf("%s: send %s failed: %v", c, m.Type, err)
			}
			c.close()
			// drain so that send never blocks
			for range c.sendq {
			}
			return
		}
	}
}

func (c *client) close() {
	if c.closed.Load() {
		return
	}
	c.closed.Store(true)
	c.conn.Close()
}
