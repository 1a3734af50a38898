// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// errTransportClosed is returned by Read/Write once Close has run.
var errTransportClosed = errors.New("transport: closed")

// DatagramConn is one peer's slot on a shared net.PacketConn. Reads pull
// from an internal channel fed by the owning DatagramListener's single
// demultiplexing goroutine (a net.PacketConn only supports one concurrent
// ReadFrom caller); writes go straight to the shared socket addressed at
// this peer's remote address.
type DatagramConn struct {
	key    string
	addr   net.Addr
	pconn  net.PacketConn
	inbox  chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *DatagramConn) Key() string { return c.key }

// Read delivers the next datagram payload addressed to this peer. It
// never partially fills p across multiple datagrams — one Read yields at
// most one datagram, truncated to len(p) if the datagram was larger.
func (c *DatagramConn) Read(p []byte) (int, error) {
	b, ok := <-c.inbox
	if !ok {
		return 0, errTransportClosed
	}
	n := copy(p, b)
	return n, nil
}

// Write sends p as a single datagram to this peer's remote address.
func (c *DatagramConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, errTransportClosed
	}
	return c.pconn.WriteTo(p, c.addr)
}

// Close removes this peer's slot; the shared socket itself is closed by
// the owning DatagramListener.
func (c *DatagramConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.inbox)
	return nil
}

var _ Transport = (*DatagramConn)(nil)

// DatagramListener runs a single read loop over a net.PacketConn and
// demultiplexes inbound datagrams by remote address into per-peer
// DatagramConns, handing newly-seen peers out through Accept.
type DatagramListener struct {
	pconn  net.PacketConn
	accept chan Transport

	mu    sync.Mutex
	peers map[string]*DatagramConn

	closeOnce sync.Once
	closed    chan struct{}
}

// ListenUDP binds addr and starts the demultiplexing read loop.
func ListenUDP(addr string) (*DatagramListener, error) {
	pconn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: udp listen %s: %w", addr, err)
	}
	l := &DatagramListener{
		pconn:  pconn,
		accept: make(chan Transport, 64),
		peers:  make(map[string]*DatagramConn),
		closed: make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

// Addr returns the listener's bound local address.
func (l *DatagramListener) Addr() net.Addr { return l.pconn.LocalAddr() }

func (l *DatagramListener) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, addr, err := l.pconn.ReadFrom(buf)
		if err != nil {
			select {
			case <-l.closed:
				return
			default:
			}
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])

		key := addr.String()
		l.mu.Lock()
		peer, ok := l.peers[key]
		if ok {
			peer.mu.Lock()
			ok = !peer.closed // a closed slot counts as removed
			peer.mu.Unlock()
		}
		if !ok {
			peer = &DatagramConn{
				key:   key,
				addr:  addr,
				pconn: l.pconn,
				inbox: make(chan []byte, 256),
			}
			l.peers[key] = peer
		}
		l.mu.Unlock()

		if !ok {
			select {
			case l.accept <- peer:
			case <-l.closed:
				return
			}
		}
		peer.mu.Lock()
		if !peer.closed {
			select {
			case peer.inbox <- chunk:
			default:
				// peer inbox full: drop the datagram rather than block the
				// shared read loop.
			}
		}
		peer.mu.Unlock()
	}
}

// Accept blocks until a new remote address sends its first datagram.
func (l *DatagramListener) Accept() (Transport, error) {
	select {
	case t := <-l.accept:
		return t, nil
	case <-l.closed:
		return nil, errTransportClosed
	}
}

// Close shuts down the shared socket and every peer slot.
func (l *DatagramListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.pconn.Close()
		l.mu.Lock()
		for _, p := range l.peers {
			p.Close()
		}
		l.mu.Unlock()
	})
	return nil
}

var _ Listener = (*DatagramListener)(nil)

// DialUDP connects to addr, returning a Transport for a one-shot client
// peer keyed by its remote address.
func DialUDP(addr string) (Transport, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: udp dial %s: %w", addr, err)
	}
	return &dialedDatagram{conn: conn.(*net.UDPConn), key: conn.RemoteAddr().String()}, nil
}

// dialedDatagram is the client-side counterpart to DatagramConn: it owns
// its own connected UDP socket (no demultiplexing needed, since a dialed
// UDP socket only ever receives from the one address it connected to).
type dialedDatagram struct {
	conn *net.UDPConn
	key  string
}

func (d *dialedDatagram) Key() string                 { return d.key }
func (d *dialedDatagram) Read(p []byte) (int, error)  { return d.conn.Read(p) }
func (d *dialedDatagram) Write(p []byte) (int, error) { return d.conn.Write(p) }
func (d *dialedDatagram) Close() error                { return d.conn.Close() }

var _ Transport = (*dialedDatagram)(nil)
