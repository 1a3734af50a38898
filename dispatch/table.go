// Package dispatch implements the command-id → {deserializer, subscriber
// list} table and FIFO-ordered subscriber fan-out onto a worker pool. A
// short lock guards the map and is released before any caller iterates
// over a snapshot of it.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package dispatch

import (
	"sync"

	"github.com/momentics/framenet/api"
	"github.com/momentics/framenet/internal/concurrency"
	"github.com/momentics/framenet/wire"
)

// Deserializer turns a raw payload into an application value. A nil
// return means "drop this frame".
type Deserializer func(payload []byte) any

// Context carries per-frame metadata into a Handler: which peer sent the
// frame, its response id (0 if none), and a Reply closure that echoes a
// payload back to the same peer with the same response id. Conn builds
// this closure, so dispatch never imports conn (which would cycle).
type Context struct {
	PeerKey    string
	ResponseID uint32
	reply      func([]byte) error
}

// Reply sends payload back to the peer that sent this frame, preserving
// ResponseID. It is a no-op returning nil if no reply closure was wired
// (e.g. in tests).
func (c Context) Reply(payload []byte) error {
	if c.reply == nil {
		return nil
	}
	return c.reply(payload)
}

// NewContext is used by conn to build a Context for each dispatched
// frame.
func NewContext(peerKey string, responseID uint32, reply func([]byte) error) Context {
	return Context{PeerKey: peerKey, ResponseID: responseID, reply: reply}
}

// Handler receives a deserialized value for one subscriber.
type Handler func(ctx Context, value any)

// Subscription is the token returned by AddSubscriber; Cancel removes
// exactly that registration, independent of any other subscriber
// registered for the same command.
type Subscription struct {
	table     *Table
	commandID uint16
	id        uint64
}

// Cancel removes this subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.table.RemoveSubscriber(s)
}

type subscriberEntry struct {
	id      uint64
	handler Handler
}

type entry struct {
	deserializer Deserializer
	subscribers  []subscriberEntry
}

// Table is the command dispatch core. A single mutex
// guards the map and every entry's subscriber list; handlers always run
// outside the lock.
type Table struct {
	mu      sync.Mutex
	entries map[uint16]*entry
	nextID  uint64
	pool    *concurrency.Executor
}

// New builds a Table that fans subscriber invocations out onto pool.
func New(pool *concurrency.Executor) *Table {
	return &Table{entries: make(map[uint16]*entry), pool: pool}
}

// AddCommand registers id with deserializer. id must be a user command
// (<= wire.UserCommandLimit) and deserializer must be non-nil, or AddCommand
// returns api.ErrReservedCommand / api.ErrNilHandler without registering
// anything. Idempotent: if id is already registered, the existing entry
// (and its subscribers) is left alone.
func (t *Table) AddCommand(id uint16, deserializer Deserializer) error {
	if id > wire.UserCommandLimit {
		return api.ErrReservedCommand
	}
	if deserializer == nil {
		return api.ErrNilHandler
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		return nil
	}
	t.entries[id] = &entry{deserializer: deserializer}
	return nil
}

// RemoveCommand deletes id's entry entirely, releasing its subscribers.
func (t *Table) RemoveCommand(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// AddSubscriber appends handler to id's subscriber list, in registration
// order, and returns a token that removes exactly this registration. id
// must already be registered via AddCommand and handler must be non-nil;
// otherwise AddSubscriber returns api.ErrReservedCommand, api.ErrUnknownCommand,
// or api.ErrNilHandler and registers nothing. Rejecting an unregistered id
// here (rather than creating a deserializer-less placeholder entry) is
// what keeps AddCommand-then-AddSubscriber the only valid registration
// order: a deserializer always exists before any subscriber can attach.
func (t *Table) AddSubscriber(id uint16, handler Handler) (*Subscription, error) {
	if id > wire.UserCommandLimit {
		return nil, api.ErrReservedCommand
	}
	if handler == nil {
		return nil, api.ErrNilHandler
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, api.ErrUnknownCommand
	}
	t.nextID++
	sid := t.nextID
	e.subscribers = append(e.subscribers, subscriberEntry{id: sid, handler: handler})
	return &Subscription{table: t, commandID: id, id: sid}, nil
}

// RemoveSubscriber removes the subscription identified by sub, if its
// command entry still exists.
func (t *Table) RemoveSubscriber(sub *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sub.commandID]
	if !ok {
		return
	}
	for i, s := range e.subscribers {
		if s.id == sub.id {
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			return
		}
	}
}

// Dispatch looks up id's entry, deserializes payload, and — if the
// deserializer returned a non-nil value — invokes every subscriber in
// registration order. Each handler runs on the worker pool,
// but Dispatch blocks until each handler completes before submitting the
// next, which is what gives FIFO-per-(peer,commandId) ordering without needing a per-peer mailbox: the calling
// connection's single receive loop already serializes frames, and within
// one frame this serializes subscribers.
func (t *Table) Dispatch(id uint16, payload []byte, ctx Context) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	deserializer := e.deserializer
	subs := make([]subscriberEntry, len(e.subscribers))
	copy(subs, e.subscribers)
	t.mu.Unlock()

	if deserializer == nil {
		return
	}
	value := deserializer(payload)
	if value == nil {
		return
	}
	for _, s := range subs {
		done := make(chan struct{})
		h := s.handler
		t.pool.Submit(func() {
			defer close(done)
			h(ctx, value)
		})
		<-done
	}
}
