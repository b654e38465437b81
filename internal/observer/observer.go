// Package observer provides a small typed observer registry with explicit
// register/unregister handles.
//
// Notifications are delivered synchronously in registration order. Callbacks
// are invoked outside the registry lock, so a callback may unregister itself
// or register new observers; such changes take effect from the next Notify.
package observer

import "sync"

// Handle отменяет подписку. Повторный вызов Unregister ничего не делает.
type Handle struct {
	cancel func()
}

// Unregister removes the observer. Safe to call more than once and on the
// zero Handle.
func (h Handle) Unregister() {
	if h.cancel != nil {
		h.cancel()
	}
}

type subscriber[T any] struct {
	fn func(T)
	id uint64
}

// Registry хранит подписчиков на значения типа T.
// Нулевое значение готово к использованию.
type Registry[T any] struct {
	subs   []subscriber[T]
	nextID uint64
	mu     sync.Mutex
}

// Register adds fn and returns the handle that removes it.
func (r *Registry[T]) Register(fn func(T)) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber[T]{id: id, fn: fn})

	return Handle{cancel: func() { r.remove(id) }}
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

// Notify calls every registered observer with v in registration order.
func (r *Registry[T]) Notify(v T) {
	r.mu.Lock()
	// Копируем срез, чтобы вызывать callbacks без удержания блокировки
	subs := make([]subscriber[T], len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of registered observers.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Ordered is a Registry whose notifications are queued first and delivered
// later by Flush, strictly in queue order.
//
// Owners queue a value while still holding their own lock, at the moment the
// change happens, and call Flush after releasing it. Only one goroutine
// delivers at a time; values queued meanwhile, including by an observer,
// are delivered by the goroutine already flushing.
type Ordered[T any] struct {
	Registry[T]
	pending  []T
	qmu      sync.Mutex
	flushing bool
}

// Queue schedules v for delivery.
func (o *Ordered[T]) Queue(v T) {
	o.qmu.Lock()
	o.pending = append(o.pending, v)
	o.qmu.Unlock()
}

// Flush delivers queued values unless another goroutine is already doing so.
func (o *Ordered[T]) Flush() {
	o.qmu.Lock()
	if o.flushing {
		o.qmu.Unlock()
		return
	}
	o.flushing = true
	for len(o.pending) > 0 {
		v := o.pending[0]
		o.pending = o.pending[1:]
		o.qmu.Unlock()

		o.Notify(v)

		o.qmu.Lock()
	}
	o.flushing = false
	o.qmu.Unlock()
}
