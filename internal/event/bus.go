// Package event is the in-process pub/sub backbone, built on watermill.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType names one kind of event on the bus.
type EventType string

const (
	SessionCreated         EventType = "session.created"
	SessionUpdated         EventType = "session.updated"
	SessionDeleted         EventType = "session.deleted"
	SessionIdle            EventType = "session.idle"
	SessionStatus          EventType = "session.status"
	SessionError           EventType = "session.error"
	SessionDiff            EventType = "session.diff"
	SessionCompacted       EventType = "session.compacted"
	MessageCreated         EventType = "message.created"
	MessageUpdated         EventType = "message.updated"
	MessageRemoved         EventType = "message.removed"
	PartUpdated            EventType = "part.updated"
	MessagePartUpdated     EventType = "message.part.updated"
	MessagePartRemoved     EventType = "message.part.removed"
	FileEdited             EventType = "file.edited"
	PermissionRequired     EventType = "permission.required"
	PermissionResolved     EventType = "permission.resolved"
	PermissionUpdated      EventType = "permission.updated"
	PermissionReplied      EventType = "permission.replied"
	TodoUpdated            EventType = "todo.updated"
	VcsBranchUpdated       EventType = "vcs.branch.updated"
	ClientToolRequest      EventType = "client-tool.request"
	ClientToolRegistered   EventType = "client-tool.registered"
	ClientToolUnregistered EventType = "client-tool.unregistered"
	ClientToolExecuting    EventType = "client-tool.executing"
	ClientToolCompleted    EventType = "client-tool.completed"
	ClientToolFailed       EventType = "client-tool.failed"
	RepeatedToolError      EventType = "tool.repeated_error"
)

// Event is one typed payload on the bus.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber receives events.
type Subscriber func(event Event)

// subscription pairs a subscriber with its removal handle.
type subscription struct {
	id uint64
	fn Subscriber
}

// Bus fans events out to per-type and catch-all subscribers. The
// watermill gochannel underneath carries the transport; dispatch itself
// goes through direct calls so payloads keep their Go types.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[EventType][]subscription
	global      []subscription

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
}

// globalBus serves the package-level Publish/Subscribe functions.
var globalBus = newBus()

func newBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[EventType][]subscription),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for one event type on the global bus; the
// returned func removes it.
func Subscribe(eventType EventType, fn Subscriber) func() {
	return globalBus.Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, fn: fn})
	return func() { b.unsubscribe(eventType, id) }
}

// SubscribeAll registers fn for every event on the global bus.
func SubscribeAll(fn Subscriber) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscription{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish delivers asynchronously on the global bus; each subscriber
// runs on its own goroutine so none can stall the publisher.
func Publish(event Event) {
	globalBus.Publish(event)
}

func (b *Bus) Publish(event Event) {
	for _, sub := range b.collect(event.Type) {
		go sub(event)
	}
}

// PublishSync delivers on the caller's goroutine, returning only after
// every subscriber has run.
func PublishSync(event Event) {
	globalBus.PublishSync(event)
}

func (b *Bus) PublishSync(event Event) {
	for _, sub := range b.collect(event.Type) {
		sub(event)
	}
}

// collect snapshots the subscriber set for one event type under the
// read lock, so dispatch happens without holding it.
func (b *Bus) collect(t EventType) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.global))
	for _, entry := range b.subscribers[t] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// NewBus creates an independent bus instance.
func NewBus() *Bus {
	return newBus()
}

// Reset tears down the global bus and replaces it with a fresh one.
// Test-only.
func Reset() {
	globalBus.mu.Lock()
	globalBus.closed = true
	globalBus.closedCancel()
	globalBus.mu.Unlock()

	_ = globalBus.pubsub.Close()

	// Give in-flight subscriber goroutines a moment to drain.
	time.Sleep(10 * time.Millisecond)

	globalBus = newBus()
}

// Close shuts the bus down; further publishes and subscribes are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()
	b.subscribers = make(map[EventType][]subscription)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub exposes the watermill transport for middleware or a future
// distributed backend.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// PubSub returns the global bus's watermill transport.
func PubSub() *gochannel.GoChannel {
	return globalBus.PubSub()
}
