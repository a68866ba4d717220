package transport

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/gwutils"
	"github.com/xiaonanln/gwphys/engine/netutil"
	"github.com/xtaci/kcp-go"
	"golang.org/x/net/websocket"
)

// Network is the stream transport under a Conn
type Network string

const (
	// TCP is a plain tcp stream
	TCP Network = "tcp"
	// KCP is a reliable stream over udp
	KCP Network = "kcp"
	// WebSocket is a binary websocket on the /ws path
	WebSocket Network = "ws"
)

// WebSocketPath is the http path of the websocket endpoint
const WebSocketPath = "/ws"

// ParseNetwork parses tcp, kcp or ws
func ParseNetwork(s string) (Network, error) {
	switch n := Network(strings.ToLower(strings.TrimSpace(s))); n {
	case TCP, KCP, WebSocket:
		return n, nil
	case "":
		return TCP, nil
	}
	return "", errors.Errorf("transport: unknown network %q", s)
}

func setupKCPSession(conn *kcp.UDPSession) {
	conn.SetReadBuffer(consts.KCP_SOCKET_BUFFER_SIZE)
	conn.SetWriteBuffer(consts.KCP_SOCKET_BUFFER_SIZE)
	conn.SetStreamMode(consts.KCP_SET_STREAM_MODE)
	conn.SetWriteDelay(consts.KCP_SET_WRITE_DELAY)
	conn.SetNoDelay(consts.KCP_NODELAY, consts.KCP_INTERVAL, consts.KCP_RESEND, consts.KCP_NO_CONGESTION)
}

// Dial connects to an authority
func Dial(network Network, host string, port int, compress bool) (*Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	var raw net.Conn
	switch network {
	case TCP:
		conn, err := netutil.ConnectTCP(host, port)
		if err != nil {
			return nil, err
		}
		raw = conn
	case KCP:
		conn, err := kcp.DialWithOptions(addr, nil, consts.KCP_DATA_SHARDS, consts.KCP_PARITY_SHARDS)
		if err != nil {
			return nil, errors.Wrapf(err, "kcp dial %s", addr)
		}
		setupKCPSession(conn)
		raw = conn
	case WebSocket:
		conn, err := websocket.Dial("ws://"+addr+WebSocketPath, "", "http://"+addr+"/")
		if err != nil {
			return nil, errors.Wrapf(err, "websocket dial %s", addr)
		}
		conn.PayloadType = websocket.BinaryFrame
		raw = conn
	default:
		return nil, errors.Errorf("transport: unknown network %q", network)
	}
	gwlog.Infof("transport: connected to %s over %s", addr, network)
	return NewConn(raw, compress), nil
}

// Server accepts Conns and passes each to its handler on a new goroutine
type Server struct {
	network  Network
	addr     net.Addr
	closer   io.Closer
	compress bool
	handler  func(*Conn)
}

func (s *Server) String() string {
	return fmt.Sprintf("Server<%s@%s>", s.network, s.addr)
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Port returns the bound port
func (s *Server) Port() int {
	switch a := s.addr.(type) {
	case *net.TCPAddr:
		return a.Port
	case *net.UDPAddr:
		return a.Port
	}
	return 0
}

// Close stops accepting
func (s *Server) Close() error {
	return s.closer.Close()
}

// ServeTCPConnection implements netutil.TCPServerDelegate
func (s *Server) ServeTCPConnection(conn net.Conn) {
	s.handler(NewConn(conn, s.compress))
}

func (s *Server) serveWebSocket(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	gwlog.Infof("%s: websocket connection from %s", s, conn.Request().RemoteAddr)
	// the handler returning closes the websocket
	s.handler(NewConn(conn, s.compress))
}

// Listen starts serving network on addr
func Listen(network Network, addr string, compress bool, handler func(*Conn)) (*Server, error) {
	s := &Server{network: network, compress: compress, handler: handler}
	switch network {
	case TCP:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, errors.Wrapf(err, "listen %s", addr)
		}
		s.addr, s.closer = ln.Addr(), ln
		go func() {
			if err := netutil.ServeTCP(ln, s); err != nil {
				gwlog.Infof("%s stopped: %v", s, err)
			}
		}()
	case KCP:
		ln, err := kcp.ListenWithOptions(addr, nil, consts.KCP_DATA_SHARDS, consts.KCP_PARITY_SHARDS)
		if err != nil {
			return nil, errors.Wrapf(err, "kcp listen %s", addr)
		}
		s.addr, s.closer = ln.Addr(), ln
		gwlog.Infof("Listening on KCP: %s ...", s.addr)
		go gwutils.RepeatUntilPanicless(func() {
			for {
				conn, err := ln.AcceptKCP()
				if err != nil {
					gwlog.Infof("%s stopped: %v", s, err)
					return
				}
				setupKCPSession(conn)
				go s.handler(NewConn(conn, s.compress))
			}
		})
	case WebSocket:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, errors.Wrapf(err, "listen %s", addr)
		}
		s.addr, s.closer = ln.Addr(), ln
		mux := http.NewServeMux()
		mux.Handle(WebSocketPath, websocket.Handler(s.serveWebSocket))
		gwlog.Infof("Listening on WebSocket: ws://%s%s ...", s.addr, WebSocketPath)
		go func() {
			if err := http.Serve(ln, mux); err != nil {
				gwlog.Infof("%s stopped: %v", s, err)
			}
		}()
	default:
		return nil, errors.Errorf("transport: unknown network %q", network)
	}
	return s, nil
}
