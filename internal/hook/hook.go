// Package hook dispatches HookEvents to registered handlers synchronously,
// in registration order, mirroring internal/event's subscriber bookkeeping
// but returning a result so pre_tool hooks can veto or mutate a call.
package hook

import (
	"sync"
	"sync/atomic"

	"github.com/agentcore/orchestrator/pkg/types"
)

// Handler observes or mutates a HookEvent in place and returns it.
type Handler func(evt types.HookEvent) types.HookEvent

type entry struct {
	id uint64
	fn Handler
}

// Manager holds handlers per HookPhase and fires them synchronously.
type Manager struct {
	mu       sync.RWMutex
	handlers map[types.HookPhase][]entry
	nextID   uint64
}

// NewManager creates an empty hook manager.
func NewManager() *Manager {
	return &Manager{handlers: make(map[types.HookPhase][]entry)}
}

// Register adds a handler for the given phase. Returns an unregister func.
func (m *Manager) Register(phase types.HookPhase, fn Handler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := atomic.AddUint64(&m.nextID, 1)
	m.handlers[phase] = append(m.handlers[phase], entry{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.handlers[phase]
		for i, e := range list {
			if e.id == id {
				m.handlers[phase] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Fire runs all handlers registered for evt.Phase in registration order,
// threading the (possibly mutated) event through each. A handler that sets
// Blocked short-circuits the remaining handlers in the chain: a vetoing
// pre_tool hook must stop before the tool runs.
func (m *Manager) Fire(evt types.HookEvent) types.HookEvent {
	m.mu.RLock()
	handlers := append([]entry(nil), m.handlers[evt.Phase]...)
	m.mu.RUnlock()

	for _, e := range handlers {
		evt = e.fn(evt)
		if evt.Blocked {
			break
		}
	}
	return evt
}

// HasHandlers reports whether any handler is registered for phase, letting
// callers skip building a HookEvent when nothing will observe it.
func (m *Manager) HasHandlers(phase types.HookPhase) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[phase]) > 0
}
