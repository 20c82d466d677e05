// Package events defines the typed event contracts for the tgdesk system:
// the dispatch labels shared between transports and the module loader, and
// the system events flowing to the ops WebSocket. Every event on the wire
// uses one of these types; no ad-hoc map[string]interface{} events.
package events

import "time"

// --- Dispatch labels ---

// Labels name the update kinds transports publish and modules subscribe to.
// The module loader treats them as opaque strings; these constants only keep
// both sides spelling them the same way.
const (
	Message       = "message"
	CallbackQuery = "callback_query"
	EditedMessage = "edited_message"
	MemberJoin    = "member_join"
	Tick          = "tick"
)

// --- Event envelope ---

// Event is the universal envelope for all system events.
type Event struct {
	// Type identifies the event (e.g., "module.enabled", "ticket.opened")
	Type string `json:"type"`

	// Source identifies who emitted the event
	Source string `json:"source"`

	// Timestamp is when the event was emitted
	Timestamp time.Time `json:"timestamp"`

	// Data is the typed payload
	Data interface{} `json:"data"`
}

// New creates a timestamped event.
func New(eventType, source string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// --- Event type constants ---

const (
	// Module lifecycle events
	ModuleRegistered = "module.registered"
	ModuleEnabled    = "module.enabled"
	ModuleDisabled   = "module.disabled"
	ModuleError      = "module.error"

	// Message flow events
	MessageInbound  = "message.inbound"
	MessageOutbound = "message.outbound"
	MessageDropped  = "message.dropped"

	// Dispatch events
	DispatchRouted   = "dispatch.routed"
	DispatchHalted   = "dispatch.halted"
	DispatchError    = "dispatch.error"
	DispatchIsolated = "dispatch.isolated_error"

	// Transport events
	TransportStarted = "transport.started"
	TransportStopped = "transport.stopped"
	TransportError   = "transport.error"

	// Support desk events
	TicketOpened  = "ticket.opened"
	TicketClaimed = "ticket.claimed"
	TicketClosed  = "ticket.closed"
	BanIssued     = "ban.issued"
	BanLifted     = "ban.lifted"

	// Scheduler events
	JobFired  = "job.fired"
	JobFailed = "job.failed"

	// System events
	SystemStarted  = "system.started"
	SystemStopping = "system.stopping"
	SystemHealth   = "system.health"
)

// --- Typed payloads ---

// ModuleEventData is the payload for module lifecycle events.
type ModuleEventData struct {
	Module  string `json:"module"`
	Enabled bool   `json:"enabled,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MessageEventData is the payload for message flow events.
type MessageEventData struct {
	MessageID string    `json:"message_id,omitempty"`
	Channel   string    `json:"channel"`
	Event     string    `json:"event,omitempty"`
	From      string    `json:"from,omitempty"`
	Preview   string    `json:"preview"` // truncated content
	Timestamp time.Time `json:"timestamp"`
}

// DispatchEventData is the payload for dispatch events.
type DispatchEventData struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Command string `json:"command,omitempty"`
	Module  string `json:"module,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TransportEventData is the payload for transport state events.
type TransportEventData struct {
	Transport string `json:"transport"`
	Error     string `json:"error,omitempty"`
}

// TicketEventData is the payload for support desk ticket events.
type TicketEventData struct {
	TicketID string `json:"ticket_id"`
	Subject  string `json:"subject,omitempty"`
	Status   string `json:"status,omitempty"`
	Opener   string `json:"opener,omitempty"`
	Agent    string `json:"agent,omitempty"`
}

// BanEventData is the payload for ban events.
type BanEventData struct {
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id"`
	Reason   string `json:"reason,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
}

// JobEventData is the payload for scheduler events.
type JobEventData struct {
	Job   string `json:"job"`
	Error string `json:"error,omitempty"`
}

// SystemEventData is the payload for system health events.
type SystemEventData struct {
	Uptime     int64  `json:"uptime_seconds,omitempty"`
	Transports int    `json:"transports,omitempty"`
	Modules    int    `json:"modules,omitempty"`
	Message    string `json:"message,omitempty"`
}
