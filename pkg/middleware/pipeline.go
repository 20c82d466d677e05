// Package middleware implements the cross-cutting handler pipeline. Handlers
// are held by name, ordered by ascending priority (ties resolved by
// registration order), and executed as a single continuation chain: each
// handler receives a next function and decides whether the rest of the chain
// runs at all.
package middleware

import (
	"context"
	"sort"
	"sync"
)

// Next advances the chain. A handler that never calls it short-circuits
// every later handler for the current execution.
type Next func() error

// Handler wraps the rest of the chain. Work placed before the next() call
// runs on the way in, work placed after it runs on the way out.
type Handler[T any] func(ctx context.Context, c T, next Next) error

// Definition describes one pipeline entry. Lower priorities run earlier;
// negative values are fine.
type Definition[T any] struct {
	Name     string
	Priority int
	Handler  Handler[T]
}

// Pipeline is the ordered middleware set. The zero ordering source is
// registration order, kept explicitly because map iteration would not
// preserve it.
type Pipeline[T any] struct {
	mu     sync.RWMutex
	byName map[string]Definition[T]
	order  []string
}

func NewPipeline[T any]() *Pipeline[T] {
	return &Pipeline[T]{byName: make(map[string]Definition[T])}
}

// Use stores def under its name. Re-using a name replaces the definition in
// place, so the original registration position keeps deciding priority ties.
func (p *Pipeline[T]) Use(def Definition[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byName[def.Name]; !exists {
		p.order = append(p.order, def.Name)
	}
	p.byName[def.Name] = def
}

// Remove drops the named middleware. Unknown names are a no-op.
func (p *Pipeline[T]) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byName[name]; !exists {
		return
	}
	delete(p.byName, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *Pipeline[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Ordered returns the middlewares in execution order: ascending priority,
// ties broken by registration order.
func (p *Pipeline[T]) Ordered() []Definition[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.orderedLocked()
}

func (p *Pipeline[T]) orderedLocked() []Definition[T] {
	out := make([]Definition[T], 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.byName[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Execute runs the chain over c. The chain is snapshotted up front, so a
// handler may mutate the pipeline without affecting the current execution.
// Handler errors propagate to the caller uncaught. Calling next more than
// once in the same frame is a no-op: the remaining chain runs exactly once
// or not at all.
func (p *Pipeline[T]) Execute(ctx context.Context, c T) error {
	p.mu.RLock()
	chain := p.orderedLocked()
	p.mu.RUnlock()

	var run func(i int) error
	run = func(i int) error {
		if i >= len(chain) {
			return nil
		}
		called := false
		next := func() error {
			if called {
				return nil
			}
			called = true
			return run(i + 1)
		}
		return chain[i].Handler(ctx, c, next)
	}
	return run(0)
}
