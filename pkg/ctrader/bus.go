package ctrader

import "sync"

// executionBus is the account-scoped fan-out: single writer (the account's
// serialized handler), many readers (live order and position entities).
// Subscriber lifetime is tied to the entity's terminal state, which calls
// unsubscribe.
type executionBus struct {
	mx        sync.Mutex
	nextID    uint64
	listeners map[uint64]func(*executionEvent)
}

func newExecutionBus() *executionBus {
	return &executionBus{
		listeners: make(map[uint64]func(*executionEvent)),
	}
}

func (b *executionBus) subscribe(fn func(*executionEvent)) uint64 {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.nextID++
	b.listeners[b.nextID] = fn
	return b.nextID
}

func (b *executionBus) unsubscribe(id uint64) {
	b.mx.Lock()
	defer b.mx.Unlock()
	delete(b.listeners, id)
}

func (b *executionBus) publish(ev *executionEvent) {
	b.mx.Lock()
	listeners := make([]func(*executionEvent), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mx.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
