// Package transport abstracts the stream (TCP) and datagram (UDP)
// carriers a Conn can ride on, so the rest of the runtime never branches
// on the concrete socket kind.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package transport

import (
	"io"
	"net"
)

// Transport is one connected endpoint's byte carrier: a stream socket or
// a single peer's slot on a shared datagram socket. Read delivers
// whatever bytes are currently available (not necessarily a whole
// frame); Write sends exactly the given bytes as one unit on datagram
// transports, or appends to the stream on stream transports.
type Transport interface {
	io.ReadWriteCloser
	// Key returns a string uniquely identifying this peer, suitable for
	// use in registry.Registry.
	Key() string
}

// Listener accepts new Transports, one per connecting peer.
type Listener interface {
	Accept() (Transport, error)
	Close() error
	// Addr returns the listener's bound local address, useful when
	// binding to an OS-assigned port (":0") in tests and ephemeral
	// servers.
	Addr() net.Addr
}
