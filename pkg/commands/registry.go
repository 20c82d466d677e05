package commands

import (
	"context"
	"strings"
	"sync"
	"unicode"
)

// Registry maps command names to handlers. Registering an existing name
// replaces the previous definition; the module loader is the layer that
// rejects duplicates, not this one.
type Registry[T Texter] struct {
	mu     sync.RWMutex
	byName map[string]Definition[T]
	order  []string
}

func NewRegistry[T Texter]() *Registry[T] {
	return &Registry[T]{byName: make(map[string]Definition[T])}
}

// Register stores def under its name, overwriting any previous definition.
// It returns a ValidationError when the name fails ValidName or the handler
// is nil.
func (r *Registry[T]) Register(def Definition[T]) error {
	if !ValidName(def.Name) {
		return &ValidationError{Name: def.Name, Reason: "name must match ^[a-z][a-z0-9_]{0,31}$"}
	}
	if def.Handler == nil {
		return &ValidationError{Name: def.Name, Reason: "handler must not be nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.byName[def.Name] = def
	return nil
}

// Unregister removes the named command. Unknown names are a no-op.
func (r *Registry[T]) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; !exists {
		return
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry[T]) Get(name string) (Definition[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// All returns every registered command in registration order.
func (r *Registry[T]) All() []Definition[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition[T], 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Visible returns the commands that belong in a menu listing.
func (r *Registry[T]) Visible() []Definition[T] {
	all := r.All()
	out := all[:0:0]
	for _, def := range all {
		if !def.Hidden {
			out = append(out, def)
		}
	}
	return out
}

// Route extracts a command name from c's message text and, when a matching
// command is registered, runs its handler exactly once with c passed through
// unchanged. The bool reports whether a handler ran; the error is the
// handler's own, not caught here.
func (r *Registry[T]) Route(ctx context.Context, c T) (bool, error) {
	text, ok := c.MessageText()
	if !ok {
		return false, nil
	}
	name, ok := ExtractCommand(text)
	if !ok {
		return false, nil
	}

	r.mu.RLock()
	def, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, def.Handler(ctx, c)
}

// ExtractCommand pulls the command name out of message text: a leading
// slash, then the first whitespace-delimited token, with everything from
// the first @ on (the bot-mention suffix) stripped. The bool is false when
// text is not a command.
//
//	/start            -> start
//	/help@mybot arg   -> help
//	/                 -> not a command
//	hello             -> not a command
func ExtractCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	token := text[1:]
	if end := strings.IndexFunc(token, unicode.IsSpace); end >= 0 {
		token = token[:end]
	}
	if at := strings.IndexByte(token, '@'); at >= 0 {
		token = token[:at]
	}
	if token == "" {
		return "", false
	}
	return token, true
}
