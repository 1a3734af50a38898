package dispatch_test

import (
	"testing"
	"time"

	"github.com/momentics/framenet/api"
	"github.com/momentics/framenet/dispatch"
	"github.com/momentics/framenet/internal/concurrency"
	"github.com/momentics/framenet/wire"
)

func newTable() *dispatch.Table {
	return dispatch.New(concurrency.NewExecutor(4, -1))
}

func mustAddCommand(t *testing.T, tbl *dispatch.Table, id uint16, d dispatch.Deserializer) {
	t.Helper()
	if err := tbl.AddCommand(id, d); err != nil {
		t.Fatalf("AddCommand(%d): unexpected error: %v", id, err)
	}
}

func mustAddSubscriber(t *testing.T, tbl *dispatch.Table, id uint16, h dispatch.Handler) *dispatch.Subscription {
	t.Helper()
	sub, err := tbl.AddSubscriber(id, h)
	if err != nil {
		t.Fatalf("AddSubscriber(%d): unexpected error: %v", id, err)
	}
	return sub
}

func TestAddCommandIdempotent(t *testing.T) {
	tbl := newTable()
	calls := 0
	mustAddCommand(t, tbl, 1, func(p []byte) any { calls++; return string(p) })
	mustAddCommand(t, tbl, 1, func(p []byte) any { t.Fatal("should not replace existing deserializer"); return nil })

	done := make(chan struct{})
	mustAddSubscriber(t, tbl, 1, func(ctx dispatch.Context, v any) { close(done) })
	tbl.Dispatch(1, []byte("x"), dispatch.Context{})
	<-done
	if calls != 1 {
		t.Fatalf("expected original deserializer to run once, got %d calls", calls)
	}
}

func TestSubscribersInvokedInRegistrationOrder(t *testing.T) {
	tbl := newTable()
	mustAddCommand(t, tbl, 5, func(p []byte) any { return string(p) })

	var order []int
	result := make(chan struct{})
	n := 3
	for i := 0; i < n; i++ {
		i := i
		mustAddSubscriber(t, tbl, 5, func(ctx dispatch.Context, v any) {
			order = append(order, i)
			if len(order) == n {
				close(result)
			}
		})
	}
	tbl.Dispatch(5, []byte("payload"), dispatch.Context{})

	select {
	case <-result:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribers")
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order 0..%d, got %v", n-1, order)
		}
	}
}

func TestRemoveSubscriberStopsDelivery(t *testing.T) {
	tbl := newTable()
	mustAddCommand(t, tbl, 9, func(p []byte) any { return string(p) })

	called := false
	sub := mustAddSubscriber(t, tbl, 9, func(ctx dispatch.Context, v any) { called = true })
	sub.Cancel()

	done := make(chan struct{})
	mustAddSubscriber(t, tbl, 9, func(ctx dispatch.Context, v any) { close(done) })
	tbl.Dispatch(9, []byte("x"), dispatch.Context{})
	<-done

	if called {
		t.Fatal("cancelled subscriber was still invoked")
	}
}

func TestNilDeserializerResultDropsFrame(t *testing.T) {
	tbl := newTable()
	mustAddCommand(t, tbl, 2, func(p []byte) any { return nil })

	invoked := false
	mustAddSubscriber(t, tbl, 2, func(ctx dispatch.Context, v any) { invoked = true })
	tbl.Dispatch(2, []byte("x"), dispatch.Context{})
	time.Sleep(50 * time.Millisecond)
	if invoked {
		t.Fatal("subscriber invoked despite nil deserializer result")
	}
}

func TestContextReplyInvokesClosure(t *testing.T) {
	var got []byte
	ctx := dispatch.NewContext("peer-1", 42, func(p []byte) error {
		got = p
		return nil
	})
	if ctx.PeerKey != "peer-1" || ctx.ResponseID != 42 {
		t.Fatalf("unexpected context fields: %+v", ctx)
	}
	ctx.Reply([]byte("echo"))
	if string(got) != "echo" {
		t.Fatalf("expected reply closure to receive payload, got %q", got)
	}
}

func TestPanicInHandlerDoesNotBlockDispatch(t *testing.T) {
	tbl := newTable()
	mustAddCommand(t, tbl, 3, func(p []byte) any { return string(p) })
	mustAddSubscriber(t, tbl, 3, func(ctx dispatch.Context, v any) { panic("boom") })

	done := make(chan struct{})
	go func() {
		tbl.Dispatch(3, []byte("x"), dispatch.Context{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked forever on panicking handler")
	}
}

func TestAddCommandRejectsReservedID(t *testing.T) {
	tbl := newTable()
	if err := tbl.AddCommand(wire.CmdPing, func(p []byte) any { return p }); err != api.ErrReservedCommand {
		t.Fatalf("expected ErrReservedCommand, got %v", err)
	}
}

func TestAddCommandRejectsNilDeserializer(t *testing.T) {
	tbl := newTable()
	if err := tbl.AddCommand(10, nil); err != api.ErrNilHandler {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
}

func TestAddSubscriberRejectsUnregisteredCommand(t *testing.T) {
	tbl := newTable()
	if _, err := tbl.AddSubscriber(20, func(ctx dispatch.Context, v any) {}); err != api.ErrUnknownCommand {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestAddSubscriberRejectsNilHandler(t *testing.T) {
	tbl := newTable()
	mustAddCommand(t, tbl, 21, func(p []byte) any { return p })
	if _, err := tbl.AddSubscriber(21, nil); err != api.ErrNilHandler {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
}

func TestAddSubscriberRejectsReservedID(t *testing.T) {
	tbl := newTable()
	if _, err := tbl.AddSubscriber(wire.CmdConnect, func(ctx dispatch.Context, v any) {}); err != api.ErrReservedCommand {
		t.Fatalf("expected ErrReservedCommand, got %v", err)
	}
}

// TestRegisteringSubscriberBeforeCommandNoLongerSilentlyDropsFrames
// guards against the ordering bug where AddSubscriber used to create a
// deserializer-less placeholder entry: AddCommand would then see an
// existing entry and skip installing the deserializer, so Dispatch would
// silently drop every frame for that command forever. AddSubscriber now
// rejects the unregistered id outright instead of going along with it.
func TestRegisteringSubscriberBeforeCommandNoLongerSilentlyDropsFrames(t *testing.T) {
	tbl := newTable()
	if _, err := tbl.AddSubscriber(30, func(ctx dispatch.Context, v any) {}); err != api.ErrUnknownCommand {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	mustAddCommand(t, tbl, 30, func(p []byte) any { return string(p) })

	done := make(chan struct{})
	mustAddSubscriber(t, tbl, 30, func(ctx dispatch.Context, v any) { close(done) })
	tbl.Dispatch(30, []byte("x"), dispatch.Context{})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never delivered after correct AddCommand-then-AddSubscriber order")
	}
}
