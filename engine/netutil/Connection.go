package netutil

import (
	"net"

	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/netconnutil"
)

// Connection is a stream connection whose writes are flushed explicitly
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn adapts an unbuffered net.Conn to Connection
type NetConn struct {
	net.Conn
}

// Flush is a no-op for unbuffered connections
func (n NetConn) Flush() error {
	return nil
}

// NewConnection wraps conn so that temporary errors are retried, writes are buffered and,
// when compress is set, the stream is snappy compressed
func NewConnection(conn net.Conn, compress bool) Connection {
	conn = netconnutil.NewNoTempErrorConn(conn)
	var c Connection = NetConn{conn}
	if compress {
		c = netconnutil.NewSnappyConn(c)
	}
	c = netconnutil.NewBufferedConn(c, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)
	return c
}
