package server_test

import (
	"testing"
	"time"

	"github.com/momentics/framenet/dispatch"
	"github.com/momentics/framenet/internal/concurrency"
	"github.com/momentics/framenet/server"
	"github.com/momentics/framenet/transport"
)

func TestRunIsIdempotent(t *testing.T) {
	exec := concurrency.NewExecutor(2, -1)
	defer exec.Close()
	tbl := dispatch.New(exec)

	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	s := server.NewServer(cfg, tbl, func(key string, payload []byte) (bool, any) { return true, nil })
	defer s.Shutdown()

	ok, err := s.Run()
	if err != nil || !ok {
		t.Fatalf("first Run: ok=%v err=%v", ok, err)
	}
	ok, err = s.Run()
	if err != nil {
		t.Fatalf("second Run errored: %v", err)
	}
	if !ok {
		t.Fatal("second Run while already running should report true without rebinding")
	}
}

func TestSendToAllReachesEveryPeerWithoutErrors(t *testing.T) {
	exec := concurrency.NewExecutor(2, -1)
	defer exec.Close()
	tbl := dispatch.New(exec)
	const cmdEcho = uint16(1)
	if err := tbl.AddCommand(cmdEcho, func(p []byte) any { return p }); err != nil {
		t.Fatalf("AddCommand: %v", err)
	}

	received := make(chan []byte, 2)
	if _, err := tbl.AddSubscriber(cmdEcho, func(ctx dispatch.Context, value any) {
		received <- value.([]byte)
	}); err != nil {
		t.Fatalf("AddSubscriber: %v", err)
	}

	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	s := server.NewServer(cfg, tbl, func(key string, payload []byte) (bool, any) { return true, nil })
	defer s.Shutdown()

	if ok, err := s.Run(); !ok || err != nil {
		t.Fatalf("Run: ok=%v err=%v", ok, err)
	}

	ln := dialTwoClients(t, s)
	defer func() {
		for _, c := range ln {
			c.Close()
		}
	}()

	time.Sleep(50 * time.Millisecond) // let accept loop register both peers

	errs := s.SendToAll(cmdEcho, []byte("hi"))
	if len(errs) != 0 {
		t.Fatalf("expected no send errors, got %v", errs)
	}
}

// dialTwoClients connects two raw TCP clients to s and returns their
// transport.Transport handles so the test can keep them alive.
func dialTwoClients(t *testing.T, s *server.Server) []transport.Transport {
	t.Helper()
	addr := s.Addr()
	out := make([]transport.Transport, 0, 2)
	for i := 0; i < 2; i++ {
		c, err := transport.DialTCP(addr)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		out = append(out, c)
	}
	return out
}
