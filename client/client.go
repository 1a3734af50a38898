package client

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/framenet/api"
	"github.com/momentics/framenet/conn"
	"github.com/momentics/framenet/dispatch"
	"github.com/momentics/framenet/pool"
	"github.com/momentics/framenet/respond"
	"github.com/momentics/framenet/transport"
	"github.com/momentics/framenet/wire"
)

// Client drives one connecting-side endpoint: dial, CONNECT handshake,
// fire-and-forget Send, correlated SendRequest, and idempotent
// Disconnect. Connect dials, performs the CONNECT frame handshake, and
// starts the receive loop before returning, rather than an RFC6455 HTTP
// upgrade.
type Client struct {
	cfg    *Config
	bp     *pool.BufferPool
	tbl    *dispatch.Table
	router *respond.Router

	connected atomic.Bool
	c         *conn.Conn
}

// New builds a disconnected Client against tbl (the dispatch table
// used to route unsolicited server-initiated frames, if any).
func New(cfg *Config, tbl *dispatch.Table, opts ...Option) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	Apply(cfg, opts...)
	return &Client{
		cfg:    cfg,
		bp:     pool.NewBufferPool(),
		tbl:    tbl,
		router: respond.New(),
	}
}

// Connect dials addr, performs the CONNECT handshake, and starts the
// receive loop. It returns false (with a non-nil error) on dial or
// handshake failure; true on success. Calling Connect while already
// connected returns api.ErrAlreadyRunning without touching the existing
// connection.
func (cl *Client) Connect(addr string) (bool, error) {
	if cl.connected.Load() {
		return false, api.ErrAlreadyRunning
	}
	var t transport.Transport
	var err error
	switch cl.cfg.Network {
	case "udp":
		t, err = transport.DialUDP(addr)
	default:
		t, err = transport.DialTCP(addr)
	}
	if err != nil {
		logrus.Warnf("client: dial %s failed: %v", addr, err)
		return false, fmt.Errorf("client: connect: %w", err)
	}

	cl.c = conn.New(t, cl.bp, cl.tbl, cl.router, nil, conn.Lifecycle{}, conn.Config{
		RingSize:      int(cl.cfg.MaxPacketSize),
		MaxPacketSize: cl.cfg.MaxPacketSize,
		CloseTimeout:  cl.cfg.CloseTimeout,
	})
	cl.c.Start()

	id := cl.router.NextID()
	fut, err := cl.router.Register(id, cl.cfg.RequestTimeout)
	if err != nil {
		cl.c.Close(api.DisconnectError)
		return false, err
	}
	if sendErr := cl.c.Send(wire.CmdConnect, nil, id); sendErr.Code != api.SendNone {
		cl.c.Close(api.DisconnectError)
		return false, sendErr
	}
	resp := fut.Wait()
	if resp.Err != nil {
		cl.c.Close(api.DisconnectError)
		return false, resp.Err
	}
	cl.connected.Store(true)
	return true, nil
}

// Send fires commandID/payload with no response correlation
// (responseId 0).
func (cl *Client) Send(commandID uint16, payload []byte) *api.SendError {
	if !cl.connected.Load() {
		return api.NewSendError(api.SendDisposed, nil)
	}
	return cl.c.Send(commandID, payload, 0)
}

// SendRequest sends commandID/payload under a fresh response id and
// blocks until the server replies, the timeout elapses (the client's
// Config.RequestTimeout if timeout <= 0), or Disconnect aborts
// the waiter.
func (cl *Client) SendRequest(commandID uint16, payload []byte, timeout time.Duration) (respond.Response, error) {
	if !cl.connected.Load() {
		return respond.Response{}, api.ErrAborted
	}
	if timeout <= 0 {
		timeout = cl.cfg.RequestTimeout
	}
	id := cl.router.NextID()
	fut, err := cl.router.Register(id, timeout)
	if err != nil {
		return respond.Response{}, err
	}
	if sendErr := cl.c.Send(commandID, payload, id); sendErr.Code != api.SendNone {
		return respond.Response{}, sendErr
	}
	resp := fut.Wait()
	return resp, resp.Err
}

// Disconnect idempotently tears the connection down: clears state
// bits, closes the transport within a bounded timeout, and aborts any
// pending SendRequest waiters.
func (cl *Client) Disconnect(reason api.DisconnectReason) error {
	if !cl.connected.CompareAndSwap(true, false) {
		return nil
	}
	if cl.c == nil {
		return nil
	}
	cl.c.Send(wire.CmdDisconnect, nil, 0)
	return cl.c.Close(reason)
}

// Pending reports the number of outstanding SendRequest waiters.
func (cl *Client) Pending() int { return cl.router.Pending() }
