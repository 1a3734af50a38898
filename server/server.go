package server

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/framenet/affinity"
	"github.com/momentics/framenet/api"
	"github.com/momentics/framenet/conn"
	"github.com/momentics/framenet/dispatch"
	"github.com/momentics/framenet/internal/concurrency"
	"github.com/momentics/framenet/pool"
	"github.com/momentics/framenet/registry"
	"github.com/momentics/framenet/transport"
)

// Server accepts connections on a transport.Listener, dispatches frames
// through a shared dispatch.Table, and tracks connected peers in a
// registry.Registry. NewServer builds the pooled dependencies, Run
// launches the accept loop and returns immediately, and Shutdown signals
// teardown and waits for it to finish.
type Server struct {
	cfg *Config

	bp   *pool.BufferPool
	exec *concurrency.Executor
	tbl  *dispatch.Table
	reg  *registry.Registry

	factory   conn.ConnectFactory
	lifecycle conn.Lifecycle

	ln transport.Listener

	mu    sync.Mutex
	conns map[string]*conn.Conn

	running atomic.Bool
	done    chan struct{}
}

// NewServer builds a Server bound to cfg. factory decides whether each
// incoming CONNECT handshake is accepted and what opaque peer state it
// produces (stored in the registry under the peer's key).
func NewServer(cfg *Config, tbl *dispatch.Table, factory conn.ConnectFactory, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	Apply(cfg, opts...)
	s := &Server{
		cfg:     cfg,
		bp:      pool.NewBufferPool(),
		exec:    concurrency.NewExecutor(cfg.ExecutorWorkers, -1),
		tbl:     tbl,
		reg:     registry.New(cfg.ShardCount),
		factory: factory,
		conns:   make(map[string]*conn.Conn),
		done:    make(chan struct{}),
	}
	s.lifecycle = conn.Lifecycle{
		OnConnected:    s.onConnected,
		OnDisconnected: s.onDisconnected,
	}
	return s
}

// Commands exposes the server's dispatch table for AddCommand/AddSubscriber
// registration before or after Run.
func (s *Server) Commands() *dispatch.Table { return s.tbl }

// Peers exposes the connected-peer registry for read-only inspection.
func (s *Server) Peers() *registry.Registry { return s.reg }

// Addr returns the bound listener address. Only valid after Run has
// succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) onConnected(key string, value any) {
	s.reg.Insert(key, value)
}

func (s *Server) onDisconnected(key string, reason api.DisconnectReason) {
	s.reg.Remove(key)
	s.mu.Lock()
	delete(s.conns, key)
	s.mu.Unlock()
}

// Run binds the listener and starts the accept loop. It is idempotent:
// a second call while already running returns true without rebinding.
func (s *Server) Run() (bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		return true, nil
	}

	var ln transport.Listener
	var err error
	switch s.cfg.Network {
	case "udp":
		ln, err = transport.ListenUDP(s.cfg.ListenAddr)
	default:
		ln, err = transport.ListenTCP(s.cfg.ListenAddr)
	}
	if err != nil {
		s.running.Store(false)
		return false, fmt.Errorf("server: run: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go s.acceptLoop()
	return true, nil
}

func (s *Server) acceptLoop() {
	if s.cfg.PreferredCPU >= 0 {
		runtime.LockOSThread()
		if err := affinity.SetAffinity(s.cfg.PreferredCPU); err != nil {
			logrus.Warnf("server: affinity pin to cpu %d failed: %v", s.cfg.PreferredCPU, err)
		}
	}
	for {
		t, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				logrus.Warnf("server: accept failed: %v", err)
				continue
			}
		}
		c := conn.New(t, s.bp, s.tbl, nil, s.factory, s.lifecycle, conn.Config{
			RingSize:      int(s.cfg.MaxPacketSize),
			MaxPacketSize: s.cfg.MaxPacketSize,
			CloseTimeout:  s.cfg.CloseTimeout,
		})
		s.mu.Lock()
		s.conns[t.Key()] = c
		s.mu.Unlock()
		c.Start()
	}
}

// SendTo frames and sends payload to one connected peer by key.
func (s *Server) SendTo(peerKey string, commandID uint16, payload []byte, responseID uint32) *api.SendError {
	s.mu.Lock()
	c, ok := s.conns[peerKey]
	s.mu.Unlock()
	if !ok {
		return api.NewSendError(api.SendInvalid, api.ErrPeerNotFound)
	}
	return c.Send(commandID, payload, responseID)
}

// SendToAll fans payload out to every connected peer, snapshotting the
// connection set before iterating so a concurrent connect/disconnect
// never blocks the broadcast.
// Errors are isolated per peer: one failing send never stops delivery
// to the rest.
func (s *Server) SendToAll(commandID uint16, payload []byte) map[string]*api.SendError {
	s.mu.Lock()
	snapshot := make([]*conn.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		snapshot = append(snapshot, c)
	}
	s.mu.Unlock()

	errs := make(map[string]*api.SendError)
	for _, c := range snapshot {
		if sendErr := c.Send(commandID, payload, 0); sendErr.Code != api.SendNone {
			errs[c.Key()] = sendErr
		}
	}
	return errs
}

// Shutdown stops accepting new connections, closes every tracked peer
// connection gracefully, and waits up to cfg.CloseTimeout for the
// executor to drain. Idempotent.
func (s *Server) Shutdown() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.done)
	if s.ln != nil {
		s.ln.Close()
	}

	s.mu.Lock()
	snapshot := make([]*conn.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		snapshot = append(snapshot, c)
	}
	s.mu.Unlock()
	for _, c := range snapshot {
		c.Close(api.DisconnectGraceful)
	}

	closed := make(chan struct{})
	go func() {
		s.exec.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(s.cfg.CloseTimeout):
	}
	return nil
}
