package modules

import (
	"context"
	"fmt"

	"github.com/tgdesk/tgdesk/pkg/commands"
	"github.com/tgdesk/tgdesk/pkg/middleware"
)

// Validate structurally checks a typed module. It never fails hard; the
// returned issue list is empty for a valid module. Command names are only
// checked for presence here, the command registry applies its naming rule
// when the host installs the module.
func Validate[T any](m Module[T]) []string {
	var issues []string
	if m.Name == "" {
		issues = append(issues, "name must be a non-empty string")
	}
	for i, cmd := range m.Commands {
		if cmd.Name == "" {
			issues = append(issues, fmt.Sprintf("commands[%d]: name must be a non-empty string", i))
		}
		if cmd.Handler == nil {
			issues = append(issues, fmt.Sprintf("commands[%d] (%s): handler must not be nil", i, cmd.Name))
		}
	}
	for i, h := range m.Handlers {
		if h.Name == "" {
			issues = append(issues, fmt.Sprintf("handlers[%d]: name must be a non-empty string", i))
		}
		if h.Event == "" {
			issues = append(issues, fmt.Sprintf("handlers[%d] (%s): event must be a non-empty string", i, h.Name))
		}
		if h.Handler == nil {
			issues = append(issues, fmt.Sprintf("handlers[%d] (%s): handler must not be nil", i, h.Name))
		}
	}
	for i, mw := range m.Middlewares {
		if mw.Name == "" {
			issues = append(issues, fmt.Sprintf("middlewares[%d]: name must be a non-empty string", i))
		}
		if mw.Handler == nil {
			issues = append(issues, fmt.Sprintf("middlewares[%d] (%s): handler must not be nil", i, mw.Name))
		}
	}
	return issues
}

// Parse converts an untyped module description (a map such as one assembled
// by a plugin table or decoded from a manifest, with handler functions
// injected) into a typed Module. It returns the module and no issues, or nil
// and every structural problem found. Unlike Validate it must cope with
// arbitrary input: nil, primitives and wrongly-typed fields all produce
// issues, never a panic.
func Parse[T any](data any) (*Module[T], []string) {
	obj, ok := data.(map[string]any)
	if !ok || obj == nil {
		return nil, []string{"module must be an object"}
	}

	var issues []string
	m := &Module[T]{}

	if name, ok := obj["name"].(string); ok && name != "" {
		m.Name = name
	} else {
		issues = append(issues, "name must be a non-empty string")
	}

	if enabled, ok := obj["enabled"].(bool); ok {
		m.Enabled = enabled
	} else {
		issues = append(issues, "enabled must be a boolean")
	}

	if rawCmds, ok := obj["commands"].([]any); ok {
		for i, raw := range rawCmds {
			def, cmdIssues := parseCommand[T](i, raw)
			if len(cmdIssues) > 0 {
				issues = append(issues, cmdIssues...)
				continue
			}
			m.Commands = append(m.Commands, def)
		}
	} else {
		issues = append(issues, "commands must be an array")
	}

	if rawHandlers, ok := obj["handlers"].([]any); ok {
		for i, raw := range rawHandlers {
			def, hIssues := parseHandler[T](i, raw)
			if len(hIssues) > 0 {
				issues = append(issues, hIssues...)
				continue
			}
			m.Handlers = append(m.Handlers, def)
		}
	} else {
		issues = append(issues, "handlers must be an array")
	}

	// Middlewares are optional; only their shape is checked when present.
	if rawMws, present := obj["middlewares"]; present {
		list, ok := rawMws.([]any)
		if !ok {
			issues = append(issues, "middlewares must be an array")
		} else {
			for i, raw := range list {
				def, mwIssues := parseMiddleware[T](i, raw)
				if len(mwIssues) > 0 {
					issues = append(issues, mwIssues...)
					continue
				}
				m.Middlewares = append(m.Middlewares, def)
			}
		}
	}

	if len(issues) > 0 {
		return nil, issues
	}
	return m, nil
}

func parseCommand[T any](i int, raw any) (commands.Definition[T], []string) {
	var def commands.Definition[T]
	obj, ok := raw.(map[string]any)
	if !ok {
		return def, []string{fmt.Sprintf("commands[%d] must be an object", i)}
	}

	var issues []string
	if name, ok := obj["name"].(string); ok {
		def.Name = name
	} else {
		issues = append(issues, fmt.Sprintf("commands[%d]: name must be a string", i))
	}
	if desc, ok := obj["description"].(string); ok {
		def.Description = desc
	} else {
		issues = append(issues, fmt.Sprintf("commands[%d]: description must be a string", i))
	}
	if h, ok := asCommandHandler[T](obj["handler"]); ok {
		def.Handler = h
	} else {
		issues = append(issues, fmt.Sprintf("commands[%d]: handler must be a function", i))
	}

	// Optional presentation fields.
	if usage, ok := obj["usage"].(string); ok {
		def.Usage = usage
	}
	if hidden, ok := obj["hidden"].(bool); ok {
		def.Hidden = hidden
	}
	return def, issues
}

func parseHandler[T any](i int, raw any) (HandlerDefinition[T], []string) {
	var def HandlerDefinition[T]
	obj, ok := raw.(map[string]any)
	if !ok {
		return def, []string{fmt.Sprintf("handlers[%d] must be an object", i)}
	}

	var issues []string
	if name, ok := obj["name"].(string); ok {
		def.Name = name
	} else {
		issues = append(issues, fmt.Sprintf("handlers[%d]: name must be a string", i))
	}
	if event, ok := obj["event"].(string); ok {
		def.Event = event
	} else {
		issues = append(issues, fmt.Sprintf("handlers[%d]: event must be a string", i))
	}
	if h, ok := asEventHandler[T](obj["handler"]); ok {
		def.Handler = h
	} else {
		issues = append(issues, fmt.Sprintf("handlers[%d]: handler must be a function", i))
	}
	return def, issues
}

func parseMiddleware[T any](i int, raw any) (middleware.Definition[T], []string) {
	var def middleware.Definition[T]
	obj, ok := raw.(map[string]any)
	if !ok {
		return def, []string{fmt.Sprintf("middlewares[%d] must be an object", i)}
	}

	var issues []string
	if name, ok := obj["name"].(string); ok {
		def.Name = name
	} else {
		issues = append(issues, fmt.Sprintf("middlewares[%d]: name must be a string", i))
	}
	switch v := obj["priority"].(type) {
	case int:
		def.Priority = v
	case int64:
		def.Priority = int(v)
	case float64:
		def.Priority = int(v)
	default:
		issues = append(issues, fmt.Sprintf("middlewares[%d]: priority must be a number", i))
	}
	if h, ok := asMiddlewareHandler[T](obj["handler"]); ok {
		def.Handler = h
	} else {
		issues = append(issues, fmt.Sprintf("middlewares[%d]: handler must be a function", i))
	}
	return def, issues
}

// The handler fields of an untyped module may hold either the named handler
// type or a bare function with the matching signature; both are accepted.

func asCommandHandler[T any](v any) (commands.Handler[T], bool) {
	switch h := v.(type) {
	case commands.Handler[T]:
		return h, h != nil
	case func(context.Context, T) error:
		return h, h != nil
	default:
		return nil, false
	}
}

func asEventHandler[T any](v any) (EventHandler[T], bool) {
	switch h := v.(type) {
	case EventHandler[T]:
		return h, h != nil
	case func(context.Context, T) error:
		return h, h != nil
	default:
		return nil, false
	}
}

func asMiddlewareHandler[T any](v any) (middleware.Handler[T], bool) {
	switch h := v.(type) {
	case middleware.Handler[T]:
		return h, h != nil
	case func(context.Context, T, middleware.Next) error:
		return h, h != nil
	default:
		return nil, false
	}
}
