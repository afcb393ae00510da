// Package observer provides the subscribe/unsubscribe registry shared by the
// observable chat components (connection status, inbound messages, message
// store appends, username changes).
package observer

import "sync"

// Registry holds the handlers subscribed to values of type T.
// The zero value is ready to use.
type Registry[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]func(T)
	order    []uint64
}

// Subscribe registers handler and returns a function that removes it.
// The returned function is safe to call more than once.
func (r *Registry[T]) Subscribe(handler func(T)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers == nil {
		r.handlers = make(map[uint64]func(T))
	}
	r.nextID++
	id := r.nextID
	r.handlers[id] = handler
	r.order = append(r.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

// Notify calls every handler with v in subscription order. Handlers run on
// the caller's goroutine and may subscribe or unsubscribe while notified.
func (r *Registry[T]) Notify(v T) {
	for _, handler := range r.snapshot() {
		handler(v)
	}
}

// Len returns the number of subscribed handlers.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func (r *Registry[T]) snapshot() []func(T) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers := make([]func(T), 0, len(r.order))
	for _, id := range r.order {
		handlers = append(handlers, r.handlers[id])
	}
	return handlers
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[id]; !ok {
		return
	}
	delete(r.handlers, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
