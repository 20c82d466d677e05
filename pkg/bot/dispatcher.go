package bot

import (
	"context"
	"fmt"

	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/commands"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/i18n"
	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/middleware"
	"github.com/tgdesk/tgdesk/pkg/modules"
	"github.com/tgdesk/tgdesk/pkg/store"
)

// Dispatcher owns the extension runtime and processes inbound messages:
// middleware pipeline first, then command routing, then isolated module
// dispatch for everything a command did not consume.
type Dispatcher struct {
	Commands   *commands.Registry[*Context]
	Middleware *middleware.Pipeline[*Context]
	Modules    *modules.Loader[*Context]

	cfg     *config.Config
	store   *store.Store
	catalog *i18n.Catalog
	bus     *bus.MessageBus
	log     *logger.Logger
}

func NewDispatcher(cfg *config.Config, st *store.Store, catalog *i18n.Catalog, mb *bus.MessageBus) *Dispatcher {
	return &Dispatcher{
		Commands:   commands.NewRegistry[*Context](),
		Middleware: middleware.NewPipeline[*Context](),
		Modules:    modules.NewLoader[*Context](),
		cfg:        cfg,
		store:      st,
		catalog:    catalog,
		bus:        mb,
		log:        logger.Default(),
	}
}

// Install registers a module with the loader and mounts its commands and
// middlewares. The config modules map overrides the module's compiled-in
// enabled default. Commands and middlewares are mounted behind an enabled
// check so disabling a module silences both; the loader record keeps the
// original handlers untouched.
func (d *Dispatcher) Install(m modules.Module[*Context]) error {
	if enabled, ok := d.cfg.Modules[m.Name]; ok {
		m.Enabled = enabled
	}
	if err := d.Modules.Register(m); err != nil {
		return err
	}

	for _, cmd := range m.Commands {
		cmd.Handler = d.guardEnabled(m.Name, cmd.Handler)
		if err := d.Commands.Register(cmd); err != nil {
			return fmt.Errorf("install %s: %w", m.Name, err)
		}
	}
	for _, mw := range m.Middlewares {
		mw.Name = m.Name + "." + mw.Name
		mw.Handler = d.guardEnabledMiddleware(m.Name, mw.Handler)
		d.Middleware.Use(mw)
	}

	d.bus.PublishSystem(bus.SystemEvent{
		Type:   events.ModuleRegistered,
		Source: "loader",
		Data:   events.ModuleEventData{Module: m.Name, Enabled: m.Enabled},
	})
	logger.InfoCF("loader", "Module installed", map[string]interface{}{
		"module":   m.Name,
		"enabled":  m.Enabled,
		"commands": len(m.Commands),
		"handlers": len(m.Handlers),
	})
	return nil
}

func (d *Dispatcher) guardEnabled(moduleName string, h commands.Handler[*Context]) commands.Handler[*Context] {
	return func(ctx context.Context, c *Context) error {
		if m, ok := d.Modules.Get(moduleName); !ok || !m.Enabled {
			c.Reply(c.T("error.module_disabled"))
			return nil
		}
		return h(ctx, c)
	}
}

func (d *Dispatcher) guardEnabledMiddleware(moduleName string, h middleware.Handler[*Context]) middleware.Handler[*Context] {
	return func(ctx context.Context, c *Context, next middleware.Next) error {
		if m, ok := d.Modules.Get(moduleName); !ok || !m.Enabled {
			return next()
		}
		return h(ctx, c, next)
	}
}

// Enable turns a module on and announces it on the system stream.
func (d *Dispatcher) Enable(name string) bool {
	ok := d.Modules.Enable(name)
	if ok {
		d.bus.PublishSystem(bus.SystemEvent{
			Type:   events.ModuleEnabled,
			Source: "loader",
			Data:   events.ModuleEventData{Module: name, Enabled: true},
		})
	}
	return ok
}

// Disable turns a module off and announces it on the system stream.
func (d *Dispatcher) Disable(name string) bool {
	ok := d.Modules.Disable(name)
	if ok {
		d.bus.PublishSystem(bus.SystemEvent{
			Type:   events.ModuleDisabled,
			Source: "loader",
			Data:   events.ModuleEventData{Module: name},
		})
	}
	return ok
}

// RunInit invokes OnInit once for every enabled module. The first failure
// aborts startup.
func (d *Dispatcher) RunInit(ctx context.Context) error {
	host := modules.HostContext{
		DB:     d.store.DB(),
		Config: d.cfg,
		Log:    d.log,
		T:      d.catalog,
	}
	for _, m := range d.Modules.Enabled() {
		if m.OnInit == nil {
			continue
		}
		if err := m.OnInit(ctx, host); err != nil {
			return fmt.Errorf("init module %s: %w", m.Name, err)
		}
	}
	return nil
}

// RunShutdown invokes OnShutdown for every enabled module, best effort.
func (d *Dispatcher) RunShutdown(ctx context.Context) {
	for _, m := range d.Modules.Enabled() {
		if m.OnShutdown == nil {
			continue
		}
		if err := m.OnShutdown(ctx); err != nil {
			logger.WarnCF("loader", "Module shutdown failed", map[string]interface{}{
				"module": m.Name,
				"error":  err.Error(),
			})
		}
	}
}

// Run consumes inbound messages until ctx is done. Processing is
// sequential; a slow handler delays everything behind it.
func (d *Dispatcher) Run(ctx context.Context) {
	logger.InfoC("dispatcher", "Dispatch loop started")
	for {
		msg, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			logger.InfoC("dispatcher", "Dispatch loop stopped")
			return
		}
		d.Handle(ctx, msg)
	}
}

// Handle processes one inbound message through the full flow. Errors from
// middlewares and command handlers are trusted-code failures: they are
// logged and answered with a fallback reply. Module handler failures were
// already isolated by the loader and only need reporting.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.InboundMessage) {
	c := d.newContext(msg)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("dispatcher", "Panic while handling update", map[string]interface{}{
				"channel": msg.Channel,
				"event":   msg.Event,
				"panic":   fmt.Sprintf("%v", r),
			})
			c.Reply(c.T("error.internal"))
		}
	}()

	if err := d.Middleware.Execute(ctx, c); err != nil {
		logger.ErrorCF("dispatcher", "Middleware failed", map[string]interface{}{
			"channel": msg.Channel,
			"error":   err.Error(),
		})
		d.publishDispatchError(msg, "", err)
		c.Reply(c.T("error.internal"))
		return
	}
	if c.Halted() {
		d.bus.PublishSystem(bus.SystemEvent{
			Type:   events.DispatchHalted,
			Source: "dispatcher",
			Data:   events.DispatchEventData{Channel: msg.Channel, Event: msg.Event},
		})
		return
	}

	routed, err := d.Commands.Route(ctx, c)
	if err != nil {
		name, _ := commands.ExtractCommand(msg.Text)
		logger.ErrorCF("dispatcher", "Command failed", map[string]interface{}{
			"channel": msg.Channel,
			"command": name,
			"error":   err.Error(),
		})
		d.publishDispatchError(msg, name, err)
		c.Reply(c.T("error.internal"))
		return
	}
	if routed {
		name, _ := commands.ExtractCommand(msg.Text)
		d.bus.PublishSystem(bus.SystemEvent{
			Type:   events.DispatchRouted,
			Source: "dispatcher",
			Data:   events.DispatchEventData{Channel: msg.Channel, Event: msg.Event, Command: name},
		})
		return
	}

	d.Modules.Dispatch(ctx, msg.Event, c, func(e modules.ExecutionError) {
		logger.ErrorCF("modules", "Module handler failed", map[string]interface{}{
			"module": e.Module,
			"event":  msg.Event,
			"error":  e.Err.Error(),
		})
		d.bus.PublishSystem(bus.SystemEvent{
			Type:   events.DispatchIsolated,
			Source: "dispatcher",
			Data: events.DispatchEventData{
				Channel: msg.Channel,
				Event:   msg.Event,
				Module:  e.Module,
				Error:   e.Err.Error(),
			},
		})
	})
}

// HandleTick dispatches a scheduler job to the modules under the "tick"
// label. Ticks skip the middleware pipeline and command routing; they are
// internal events, not user updates. The job name travels in the metadata.
func (d *Dispatcher) HandleTick(ctx context.Context, job string) []modules.ExecutionError {
	c := d.newContext(bus.InboundMessage{
		Channel:  "scheduler",
		Event:    events.Tick,
		Metadata: map[string]string{"job": job},
	})
	return d.Modules.Dispatch(ctx, events.Tick, c, func(e modules.ExecutionError) {
		logger.ErrorCF("scheduler", "Tick handler failed", map[string]interface{}{
			"job":    job,
			"module": e.Module,
			"error":  e.Err.Error(),
		})
		d.bus.PublishSystem(bus.SystemEvent{
			Type:   events.JobFailed,
			Source: "scheduler",
			Data:   events.JobEventData{Job: job, Error: e.Err.Error()},
		})
	})
}

func (d *Dispatcher) publishDispatchError(msg bus.InboundMessage, command string, err error) {
	d.bus.PublishSystem(bus.SystemEvent{
		Type:   events.DispatchError,
		Source: "dispatcher",
		Data: events.DispatchEventData{
			Channel: msg.Channel,
			Event:   msg.Event,
			Command: command,
			Error:   err.Error(),
		},
	})
}

func (d *Dispatcher) newContext(msg bus.InboundMessage) *Context {
	return &Context{
		Update:  msg,
		Store:   d.store,
		Catalog: d.catalog,
		Log:     d.log,
		Bus:     d.bus,
		Values:  make(map[string]interface{}),
	}
}
