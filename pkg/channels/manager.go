// Package channels connects chat transports to the message bus.
//
// A Transport adapts one chat surface (Telegram, Discord, the local
// console) to the shared bus types: it turns native updates into
// bus.InboundMessage values and delivers bus.OutboundMessage values back
// to the surface. The Manager owns the transport set, starts and stops
// the transports together, and pumps outbound messages from the bus to
// the transport named by each message's Channel field.
package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/logger"
)

// Transport is a pluggable chat surface connection.
type Transport interface {
	// Name returns the channel identifier the transport stamps on its
	// inbound messages ("telegram", "discord", "console").
	Name() string

	// Start begins the transport's receive loop (non-blocking).
	Start(ctx context.Context) error

	// Stop gracefully shuts the transport down.
	Stop(ctx context.Context) error

	// Send delivers one outbound message to the chat surface.
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Manager manages the registered transports and the outbound pump.
type Manager struct {
	mu         sync.RWMutex
	transports map[string]Transport
	order      []string
	running    map[string]bool

	bus    *bus.MessageBus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a transport manager bound to the message bus.
func NewManager(mb *bus.MessageBus) *Manager {
	return &Manager{
		transports: make(map[string]Transport),
		running:    make(map[string]bool),
		bus:        mb,
	}
}

// Register adds a transport. Registering a name again replaces the
// previous transport in place.
func (m *Manager) Register(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := t.Name()
	if _, exists := m.transports[name]; !exists {
		m.order = append(m.order, name)
	}
	m.transports[name] = t
	logger.InfoCF("channels", "Registered transport", map[string]interface{}{
		"name": name,
	})
}

// Get retrieves a transport by name.
func (m *Manager) Get(name string) (Transport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transports[name]
	return t, ok
}

// Names returns the registered transport names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// StartAll starts every registered transport, then the outbound pump.
// The first start failure aborts the sequence and is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.order {
		if err := m.transports[name].Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start transport", map[string]interface{}{
				"name":  name,
				"error": err.Error(),
			})
			m.bus.PublishSystem(bus.SystemEvent{
				Type:   events.TransportError,
				Source: name,
				Data:   events.TransportEventData{Transport: name, Error: err.Error()},
			})
			return fmt.Errorf("start transport %s: %w", name, err)
		}
		m.running[name] = true
		logger.InfoCF("channels", "Started transport", map[string]interface{}{
			"name": name,
		})
		m.bus.PublishSystem(bus.SystemEvent{
			Type:   events.TransportStarted,
			Source: name,
			Data:   events.TransportEventData{Transport: name},
		})
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.pumpOutbound(pumpCtx, m.done)
	return nil
}

// StopAll stops the outbound pump, then every running transport. Stop
// failures are logged and do not abort the remaining stops.
func (m *Manager) StopAll(ctx context.Context) {
	// Release the lock before waiting on the pump: it may be blocked on
	// the same lock while routing a message.
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.order {
		if !m.running[name] {
			continue
		}
		if err := m.transports[name].Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to stop transport", map[string]interface{}{
				"name":  name,
				"error": err.Error(),
			})
		}
		m.running[name] = false
		m.bus.PublishSystem(bus.SystemEvent{
			Type:   events.TransportStopped,
			Source: name,
			Data:   events.TransportEventData{Transport: name},
		})
	}
}

// Status returns transport name mapped to "running" or "stopped".
func (m *Manager) Status() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]string, len(m.order))
	for _, name := range m.order {
		if m.running[name] {
			status[name] = "running"
		} else {
			status[name] = "stopped"
		}
	}
	return status
}

// pumpOutbound routes bus outbound messages to the transport named by
// the message's Channel until the context is cancelled.
func (m *Manager) pumpOutbound(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		m.mu.RLock()
		t, found := m.transports[msg.Channel]
		running := m.running[msg.Channel]
		m.mu.RUnlock()

		if !found || !running {
			logger.WarnCF("channels", "Dropping outbound message, no running transport", map[string]interface{}{
				"channel": msg.Channel,
			})
			continue
		}
		if err := t.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Failed to send message", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
			m.bus.PublishSystem(bus.SystemEvent{
				Type:   events.TransportError,
				Source: msg.Channel,
				Data:   events.TransportEventData{Transport: msg.Channel, Error: err.Error()},
			})
		}
	}
}
