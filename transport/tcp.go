// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"
	"net"
)

// TCPListener wraps a net.Listener's accept loop as a Listener. There is
// no HTTP upgrade handshake: this module speaks its own frame format
// straight over the accepted stream, so accept simply wraps the
// connection and hands it back.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP binds addr (e.g. ":9001") and returns a Listener ready for
// Accept.
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: tcp listen %s: %w", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

// Accept blocks for the next inbound connection and wraps it as a
// StreamConn.
func (l *TCPListener) Accept() (Transport, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn), nil
}

func (l *TCPListener) Close() error { return l.ln.Close() }

// Addr returns the listener's bound address, useful when binding to
// ":0" for an OS-assigned port (tests, ephemeral servers).
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// DialTCP connects to addr and wraps the resulting connection.
func DialTCP(addr string) (Transport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: tcp dial %s: %w", addr, err)
	}
	return NewStreamConn(conn), nil
}

var _ Listener = (*TCPListener)(nil)
