// Package netutil wraps stream connections and frames msgpack messages on them.
package netutil

import (
	"fmt"
	"io"
	"net"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/consts"
)

// IsConnectionError check if the error is a connection error (close)
func IsConnectionError(_err interface{}) bool {
	err, ok := _err.(error)
	if !ok {
		return false
	}

	err = errors.Cause(err)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return true
	}

	neterr, ok := err.(net.Error)
	if !ok {
		return false
	}
	return !neterr.Timeout()
}

// ConnectTCP connects to host:port in TCP
func ConnectTCP(host string, port int) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, consts.DIAL_TIMEOUT)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", addr)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(consts.CLIENT_SET_TCP_NO_DELAY)
	}
	return conn, nil
}
