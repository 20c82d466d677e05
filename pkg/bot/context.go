// Package bot wires the extension runtime (commands, middleware, modules)
// to the message bus and the host collaborators: store, translations,
// logging. It owns the dispatch flow for every inbound update.
package bot

import (
	"strings"

	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/i18n"
	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/store"
)

// Context is the per-update value threaded through middlewares, command
// handlers and module handlers. The collaborators are injected by the
// dispatcher before the pipeline runs; handlers treat them as read-only.
type Context struct {
	Update  bus.InboundMessage
	TraceID string

	// Session is populated by the session middleware; nil when the
	// middleware is not installed or the store failed.
	Session *store.Session

	Store   *store.Store
	Catalog *i18n.Catalog
	Log     *logger.Logger
	Bus     *bus.MessageBus

	// Values carries free-form per-dispatch state between middlewares and
	// handlers.
	Values map[string]interface{}

	halted bool
}

// MessageText returns the update's text when it carries one. This is the
// lookup command routing uses.
func (c *Context) MessageText() (string, bool) {
	if !c.Update.HasText {
		return "", false
	}
	return c.Update.Text, true
}

// Halt marks the dispatch as finished. A middleware that halts should also
// skip its next() call; the dispatcher then neither routes commands nor
// dispatches module handlers for this update.
func (c *Context) Halt() { c.halted = true }

// Halted reports whether a middleware ended this dispatch.
func (c *Context) Halted() bool { return c.halted }

// Locale resolves the reply language: session locale first, then the
// catalog default.
func (c *Context) Locale() string {
	if c.Session != nil && c.Session.Locale != "" {
		return c.Session.Locale
	}
	if c.Catalog != nil {
		return c.Catalog.DefaultLocale()
	}
	return "en"
}

// T translates key for this update's locale.
func (c *Context) T(key string, args ...interface{}) string {
	if c.Catalog == nil {
		return key
	}
	return c.Catalog.T(c.Locale(), key, args...)
}

// Reply publishes a plain text reply to the update's chat.
func (c *Context) Reply(text string) {
	if c.Bus == nil {
		return
	}
	c.Bus.PublishOutbound(bus.OutboundMessage{
		Channel:   c.Update.Channel,
		ChatID:    c.Update.ChatID,
		Text:      text,
		ReplyToID: c.Update.MessageID,
	})
}

// ReplyWithButtons publishes a reply carrying inline action buttons.
// Transports without button support render the labels as text.
func (c *Context) ReplyWithButtons(text string, buttons []bus.Button) {
	if c.Bus == nil {
		return
	}
	c.Bus.PublishOutbound(bus.OutboundMessage{
		Channel:   c.Update.Channel,
		ChatID:    c.Update.ChatID,
		Text:      text,
		ReplyToID: c.Update.MessageID,
		Buttons:   buttons,
	})
}

// Args returns the whitespace-separated tokens after the command itself,
// e.g. ["printer", "on", "fire"] for "/ticket printer on fire".
func (c *Context) Args() []string {
	text, ok := c.MessageText()
	if !ok {
		return nil
	}
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

// ArgText returns everything after the command as one string.
func (c *Context) ArgText() string {
	return strings.Join(c.Args(), " ")
}
