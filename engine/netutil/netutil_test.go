package netutil

import (
	"net"
	"testing"

	"github.com/bmizerany/assert"
)

type testFrame struct {
	Tick   uint64
	Inputs []int64
}

type testEchoServer struct {
	compress bool
}

func (ts *testEchoServer) ServeTCPConnection(conn net.Conn) {
	c := NewConnection(conn, ts.compress)
	defer c.Close()
	for {
		var f testFrame
		if err := ReadMsg(c, &f); err != nil {
			return
		}
		f.Tick++
		if WriteMsg(c, &f) != nil || c.Flush() != nil {
			return
		}
	}
}

func testEcho(t *testing.T, compress bool) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.T(t, err == nil)
	defer ln.Close()
	go ServeTCP(ln, &testEchoServer{compress: compress})

	addr := ln.Addr().(*net.TCPAddr)
	raw, err := ConnectTCP("127.0.0.1", addr.Port)
	assert.T(t, err == nil)
	c := NewConnection(raw, compress)
	for i := uint64(0); i < 100; i++ {
		assert.T(t, WriteMsg(c, &testFrame{Tick: i, Inputs: []int64{int64(i), -1 << 40}}) == nil)
	}
	assert.T(t, c.Flush() == nil)
	for i := uint64(0); i < 100; i++ {
		var f testFrame
		assert.T(t, ReadMsg(c, &f) == nil)
		assert.Equal(t, i+1, f.Tick)
		assert.Equal(t, []int64{int64(i), -1 << 40}, f.Inputs)
	}
	c.Close()
}

func TestEcho(t *testing.T) {
	testEcho(t, false)
}

func TestEchoCompressed(t *testing.T) {
	testEcho(t, true)
}

func TestIsConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.T(t, err == nil)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()
	conn, err := net.Dial("tcp", ln.Addr().String())
	assert.T(t, err == nil)
	var f testFrame
	err = ReadMsg(NewConnection(conn, false), &f)
	assert.T(t, IsConnectionError(err))
	assert.T(t, !IsConnectionError(nil))
	assert.T(t, !IsConnectionError("text"))
	ln.Close()
	conn.Close()
}
