// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"

	"github.com/rs/xid"
)

// StreamConn wraps a net.Conn (TCP or any other stream socket) as a
// Transport, keyed by a compact unique id minted at accept/dial time.
// Read/Write/Close pass straight through to the underlying net.Conn;
// pooling happens at the frame/reassemble layer above, not here.
type StreamConn struct {
	conn net.Conn
	key  string
}

// NewStreamConn wraps conn, minting a fresh xid as its peer key. xid is
// the same compact-unique-id generator the sibling socket-diagnostics
// tools in this pack (runZeroInc-conniver, runZeroInc-sockstats) use for
// connection tracking.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{conn: conn, key: xid.New().String()}
}

func (s *StreamConn) Key() string                    { return s.key }
func (s *StreamConn) Read(p []byte) (int, error)     { return s.conn.Read(p) }
func (s *StreamConn) Write(p []byte) (int, error)    { return s.conn.Write(p) }
func (s *StreamConn) Close() error                   { return s.conn.Close() }

var _ Transport = (*StreamConn)(nil)
