// Package conn implements the per-connection lifecycle: receive loop
// (ring write → reassemble → dispatch), send path (frame → transport →
// pool release on every path), PING echo, CONNECT/DISCONNECT handling,
// and a two-bit state-flag byte tracking whether the connection can
// still send, receive, both, or neither.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package conn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/framenet/api"
	"github.com/momentics/framenet/dispatch"
	"github.com/momentics/framenet/frame"
	"github.com/momentics/framenet/pool"
	"github.com/momentics/framenet/reassemble"
	"github.com/momentics/framenet/respond"
	"github.com/momentics/framenet/ring"
	"github.com/momentics/framenet/transport"
	"github.com/momentics/framenet/wire"
)

// State-flag bits: a single byte per connection.
const (
	flagReceive byte = 0x01
	flagSend    byte = 0x02
)

// ConnectFactory decides whether to accept a CONNECT handshake and, if
// so, produces the opaque peer-state value stored in the registry
// →
// (accepted, peer_state)"). payload is the CONNECT frame's payload.
type ConnectFactory func(key string, payload []byte) (accepted bool, value any)

// Lifecycle carries the notifications a Conn's owner (server or client)
// wants on peer and disconnect events.
type Lifecycle struct {
	OnConnected    func(key string, value any)
	OnDisconnected func(key string, reason api.DisconnectReason)
}

// Conn drives one transport endpoint's receive and send paths. It is
// safe to call Send concurrently with the receive loop; Close is
// idempotent and safe to call from any goroutine.
type Conn struct {
	key       string
	transport transport.Transport
	bp        *pool.BufferPool
	tbl       *dispatch.Table
	router    *respond.Router // non-nil on client-side conns only
	factory   ConnectFactory  // non-nil on server-side conns only
	lifecycle Lifecycle

	maxPacketSize uint16
	closeTimeout  time.Duration

	state      atomic.Uint32 // low byte holds the state-flag byte
	closeOnce  sync.Once
	closedCh   chan struct{}
	reasm      *reassemble.Reassembler
}

// Config bundles the per-connection tunables.
type Config struct {
	RingSize      int
	MaxPacketSize uint16
	CloseTimeout  time.Duration
}

// DefaultConfig returns safe defaults for a single connection.
func DefaultConfig() Config {
	return Config{
		RingSize:      int(wire.PacketSizeMax),
		MaxPacketSize: wire.PacketSizeMax,
		CloseTimeout:  10 * time.Second,
	}
}

// New builds a Conn over t. factory may be nil for client-side
// connections (which never receive CONNECT); router may be nil for
// server-side connections (which never originate requests).
func New(t transport.Transport, bp *pool.BufferPool, tbl *dispatch.Table, router *respond.Router, factory ConnectFactory, lifecycle Lifecycle, cfg Config) *Conn {
	c := &Conn{
		key:           t.Key(),
		transport:     t,
		bp:            bp,
		tbl:           tbl,
		router:        router,
		factory:       factory,
		lifecycle:     lifecycle,
		maxPacketSize: cfg.MaxPacketSize,
		closeTimeout:  cfg.CloseTimeout,
		closedCh:      make(chan struct{}),
	}
	c.state.Store(uint32(flagReceive | flagSend))
	r := ring.New(cfg.RingSize)
	c.reasm = reassemble.New(r, bp, c.onFrame)
	return c
}

// Key returns the peer key this Conn was built from.
func (c *Conn) Key() string { return c.key }

func (c *Conn) flags() byte { return byte(c.state.Load()) }

func (c *Conn) clearFlag(bit byte) {
	for {
		old := c.state.Load()
		nw := old &^ uint32(bit)
		if c.state.CompareAndSwap(old, nw) {
			return
		}
	}
}

// Start launches the receive loop in its own goroutine. The caller
// (server accept loop or client Connect) is responsible for calling
// Start exactly once per Conn.
func (c *Conn) Start() {
	go c.recvLoop()
}

func (c *Conn) recvLoop() {
	buf := make([]byte, 4096)
	for {
		if c.flags()&flagReceive == 0 {
			return
		}
		n, err := c.transport.Read(buf)
		if err != nil {
			logrus.Warnf("conn: %s: transport read failed, closing: %v", c.key, err)
			c.Close(api.DisconnectError)
			return
		}
		if n > 0 {
			c.reasm.Write(buf[:n])
		}
	}
}

// onFrame is the reassembler's emit callback: it runs on the receive
// loop's own goroutine, so it must do the minimum work before handing
// off to the worker pool.
func (c *Conn) onFrame(f reassemble.Frame) {
	defer f.Buf.Release()

	// A client-side conn checks its response router before any
	// command-specific handling: any frame carrying a responseId that
	// matches a pending waiter (PING echo, CONNECT ack, or a user
	// reply) resolves that waiter and is never also forwarded to
	// dispatch or system-command handling.
	if c.router != nil && f.ResponseID != 0 {
		if c.router.Complete(f.ResponseID, clone(f.Payload)) {
			return
		}
	}

	switch f.CommandID {
	case wire.CmdPing:
		c.handlePing(f)
	case wire.CmdConnect:
		c.handleConnect(f)
	case wire.CmdDisconnect:
		c.handleDisconnect(f)
	default:
		if f.CommandID > wire.UserCommandLimit {
			return // unknown reserved id: drop
		}
		c.handleUser(f)
	}
}

func (c *Conn) handlePing(f reassemble.Frame) {
	// Reaching here means either no router (server side) or the
	// router found no matching waiter: treat as a peer-initiated PING
	// and echo the payload back with the same response id.
	c.Send(wire.CmdPing, f.Payload, f.ResponseID)
}

func (c *Conn) handleConnect(f reassemble.Frame) {
	if c.factory == nil {
		return
	}
	accepted, value := c.factory(c.key, f.Payload)
	if !accepted {
		c.Close(api.DisconnectError)
		return
	}
	if c.lifecycle.OnConnected != nil {
		c.lifecycle.OnConnected(c.key, value)
	}
	c.Send(wire.CmdConnect, f.Payload, f.ResponseID)
}

func (c *Conn) handleDisconnect(f reassemble.Frame) {
	c.Close(api.DisconnectGraceful)
}

func (c *Conn) handleUser(f reassemble.Frame) {
	ctx := dispatch.NewContext(c.key, f.ResponseID, func(payload []byte) error {
		return c.Send(f.CommandID, payload, f.ResponseID).Err
	})
	c.tbl.Dispatch(f.CommandID, f.Payload, ctx)
}

// Send frames commandID/payload/responseID and writes it to the
// transport. The rented buffer is released on every path.
func (c *Conn) Send(commandID uint16, payload []byte, responseID uint32) *api.SendError {
	if c.flags()&flagSend == 0 {
		return api.NewSendError(api.SendInvalid, nil)
	}
	if uint16(len(payload)) > c.maxPacketSize {
		return api.NewSendError(api.SendInvalid, api.ErrPayloadTooLarge)
	}
	buf, err := frame.Encode(c.bp, commandID, payload, responseID, 0, 0)
	if err != nil {
		return api.NewSendError(api.SendInvalid, err)
	}
	defer buf.Release()

	if _, err := c.transport.Write(buf.Bytes); err != nil {
		return api.NewSendError(api.SendSocket, err)
	}
	return api.NewSendError(api.SendNone, nil)
}

// Closed returns a channel closed once this Conn has fully shut down.
func (c *Conn) Closed() <-chan struct{} { return c.closedCh }

// Close is idempotent: only the first call performs any work. It clears
// both state bits, closes the transport (waiting at most CloseTimeout for
// the transport's Close to return, when CloseTimeout > 0), drains any client-side waiters
// with Aborted, and fires OnDisconnected.
func (c *Conn) Close(reason api.DisconnectReason) error {
	var err error
	c.closeOnce.Do(func() {
		c.clearFlag(flagReceive | flagSend)
		closed := make(chan error, 1)
		go func() { closed <- c.transport.Close() }()
		if c.closeTimeout > 0 {
			select {
			case err = <-closed:
			case <-time.After(c.closeTimeout):
			}
		} else {
			err = <-closed
		}
		if c.router != nil {
			c.router.Abort()
		}
		if c.lifecycle.OnDisconnected != nil {
			c.lifecycle.OnDisconnected(c.key, reason)
		}
		close(c.closedCh)
	})
	return err
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
