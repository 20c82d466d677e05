// Package commands implements the slash-command registry: named handlers
// routed from incoming message text. Command names are validated at
// registration; routing extracts the /name token (with an optional @bot
// suffix stripped) and runs at most one handler per message.
package commands

import (
	"context"
	"fmt"
	"regexp"
)

// Texter is the only structural requirement routing places on the context
// type: expose the message text when the update carries one.
type Texter interface {
	MessageText() (string, bool)
}

// Handler runs a routed command. An error returned here propagates to the
// Route caller unmodified.
type Handler[T any] func(ctx context.Context, c T) error

// Definition describes one slash command. Hidden commands are omitted from
// menu listings but remain routable.
type Definition[T any] struct {
	Name        string
	Description string
	Usage       string
	Hidden      bool
	Handler     Handler[T]
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// ValidName reports whether name is a legal command name: a lowercase
// letter followed by at most 31 lowercase letters, digits or underscores.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// ValidationError rejects a registration. Callers treat it as fatal and
// typically abort startup.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("command %q: %s", e.Name, e.Reason)
}
