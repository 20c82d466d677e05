// Package modules implements the plugin layer of the bot: named bundles of
// commands, event handlers and middlewares that can be enabled and disabled
// independently. The Loader dispatches events to every enabled module with
// per-handler fault isolation, so one broken plugin cannot take down the
// rest.
//
// Usage:
//
//  1. Build a Module value (or Parse one from untyped data).
//  2. Register it with a Loader. Duplicate names are rejected.
//  3. Dispatch events by label; collect the per-module errors.
package modules

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tgdesk/tgdesk/pkg/commands"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/i18n"
	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/middleware"
)

// EventHandler reacts to one dispatched event. Errors (and panics) are
// captured by the loader, never propagated.
type EventHandler[T any] func(ctx context.Context, c T) error

// HandlerDefinition binds a handler to an event label. Labels are opaque
// strings chosen by the host; the loader only compares them for equality.
type HandlerDefinition[T any] struct {
	Name    string
	Event   string
	Handler EventHandler[T]
}

// HostContext carries the shared application handles passed to OnInit.
type HostContext struct {
	DB     *sql.DB
	Config *config.Config
	Log    *logger.Logger
	T      *i18n.Catalog
}

// Module is one independently enable/disable-able plugin bundle. OnInit and
// OnShutdown are invoked by the host once per enabled module around startup
// and shutdown; the loader itself never calls them.
type Module[T any] struct {
	Name        string
	Enabled     bool
	Commands    []commands.Definition[T]
	Handlers    []HandlerDefinition[T]
	Middlewares []middleware.Definition[T]
	OnInit      func(ctx context.Context, host HostContext) error
	OnShutdown  func(ctx context.Context) error
}

// Info is the summary view of one registered module.
type Info struct {
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	CommandCount int    `json:"command_count"`
	HandlerCount int    `json:"handler_count"`
}

// ValidationError rejects a module registration, either for structural
// issues or a duplicate name.
type ValidationError struct {
	Module string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("module %q: %s", e.Module, strings.Join(e.Issues, "; "))
}

// ExecutionError records one isolated handler failure. Dispatch collects
// these instead of propagating them, naming the module at fault.
type ExecutionError struct {
	Module string
	Err    error
}

func (e ExecutionError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Err)
}

func (e ExecutionError) Unwrap() error { return e.Err }
