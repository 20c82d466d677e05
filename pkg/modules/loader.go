package modules

import (
	"context"
	"fmt"
	"sync"
)

// Loader is the module registry. Modules are kept in registration order,
// explicitly, since dispatch order across modules is part of the contract.
type Loader[T any] struct {
	mu     sync.RWMutex
	byName map[string]*Module[T]
	order  []string
}

func NewLoader[T any]() *Loader[T] {
	return &Loader[T]{byName: make(map[string]*Module[T])}
}

// Register validates m and stores it. Unlike the command registry a
// duplicate name is rejected, not overwritten. The stored record is a
// shallow copy: the Commands and Handlers slices stay shared with the
// caller's value.
func (l *Loader[T]) Register(m Module[T]) error {
	if issues := Validate(m); len(issues) > 0 {
		return &ValidationError{Module: m.Name, Issues: issues}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byName[m.Name]; exists {
		return &ValidationError{Module: m.Name, Issues: []string{"a module with this name is already registered"}}
	}
	rec := m
	l.byName[m.Name] = &rec
	l.order = append(l.order, m.Name)
	return nil
}

// Unregister removes the named module and reports whether it was present.
func (l *Loader[T]) Unregister(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byName[name]; !exists {
		return false
	}
	delete(l.byName, name)
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the live module record; Enable and Disable are observable
// through it.
func (l *Loader[T]) Get(name string) (*Module[T], bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.byName[name]
	return m, ok
}

// All returns every registered module in registration order.
func (l *Loader[T]) All() []*Module[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Enabled returns exactly the modules whose flag is set, in registration
// order.
func (l *Loader[T]) Enabled() []*Module[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Module[T], 0, len(l.order))
	for _, name := range l.order {
		if m := l.byName[name]; m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Enable sets the named module's flag and reports whether it was found.
// Other modules are never touched.
func (l *Loader[T]) Enable(name string) bool {
	return l.setEnabled(name, true)
}

// Disable clears the named module's flag and reports whether it was found.
func (l *Loader[T]) Disable(name string) bool {
	return l.setEnabled(name, false)
}

func (l *Loader[T]) setEnabled(name string, enabled bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byName[name]
	if !ok {
		return false
	}
	m.Enabled = enabled
	return true
}

// InfoAll summarizes every registered module, enabled or not.
func (l *Loader[T]) InfoAll() []Info {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Info, 0, len(l.order))
	for _, name := range l.order {
		m := l.byName[name]
		out = append(out, Info{
			Name:         m.Name,
			Enabled:      m.Enabled,
			CommandCount: len(m.Commands),
			HandlerCount: len(m.Handlers),
		})
	}
	return out
}

func (l *Loader[T]) snapshotLocked() []*Module[T] {
	out := make([]*Module[T], 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.byName[name])
	}
	return out
}

// Dispatch runs every matching handler of every enabled module for the given
// event label, sequentially: modules in registration order, handlers in
// declaration order. Each handler call is isolated; a returned error or a
// panic is captured as an ExecutionError and dispatch continues with the
// next handler. onError, when non-nil, is invoked with each entry as it is
// produced. The enabled flag is read when the module's turn arrives, so a
// handler disabling a later module keeps it from running in the same round.
//
// No lock is held while a handler runs; handlers may safely call back into
// the loader.
func (l *Loader[T]) Dispatch(ctx context.Context, event string, c T, onError func(ExecutionError)) []ExecutionError {
	l.mu.RLock()
	mods := l.snapshotLocked()
	l.mu.RUnlock()

	var errs []ExecutionError
	for _, m := range mods {
		l.mu.RLock()
		enabled := m.Enabled
		name := m.Name
		handlers := m.Handlers
		l.mu.RUnlock()
		if !enabled {
			continue
		}

		for _, h := range handlers {
			if h.Event != event {
				continue
			}
			if err := callIsolated(ctx, h.Handler, c); err != nil {
				entry := ExecutionError{Module: name, Err: err}
				errs = append(errs, entry)
				if onError != nil {
					onError(entry)
				}
			}
		}
	}
	return errs
}

// callIsolated invokes one handler and converts both returned errors and
// panics into a plain error. Non-error panic values are coerced.
func callIsolated[T any](ctx context.Context, h EventHandler[T], c T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	return h(ctx, c)
}
