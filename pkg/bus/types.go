package bus

// InboundMessage is one normalized update from a transport. Event carries
// the dispatch label ("message", "callback_query", ...); transports choose
// the label, the runtime only compares it for equality.
type InboundMessage struct {
	Channel      string            `json:"channel"`
	Event        string            `json:"event"`
	SenderID     string            `json:"sender_id"`
	SenderName   string            `json:"sender_name,omitempty"`
	ChatID       string            `json:"chat_id"`
	MessageID    string            `json:"message_id,omitempty"`
	Text         string            `json:"text,omitempty"`
	HasText      bool              `json:"has_text"`
	CallbackData string            `json:"callback_data,omitempty"`
	SessionKey   string            `json:"session_key"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Button is one inline action offered with an outbound message. Transports
// without button support render the label as plain text.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

type OutboundMessage struct {
	Channel   string   `json:"channel"`
	ChatID    string   `json:"chat_id"`
	Text      string   `json:"text"`
	ReplyToID string   `json:"reply_to_id,omitempty"`
	Buttons   []Button `json:"buttons,omitempty"`
}

// SystemEvent is a typed event flowing through the bus for observability.
// Used for module lifecycle, transport state, dispatch errors, etc.
type SystemEvent struct {
	Type   string      `json:"type"`   // e.g. "module.enabled", "transport.started"
	Source string      `json:"source"` // e.g. "loader", "telegram"
	Data   interface{} `json:"data"`
}
