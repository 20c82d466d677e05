package console

import (
	"testing"

	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/events"
)

func TestInboundFromLine(t *testing.T) {
	m := inboundFromLine("/ticket printer on fire")

	if m.Channel != "console" || m.Event != events.Message {
		t.Fatalf("channel/event = %s/%s", m.Channel, m.Event)
	}
	if m.SenderID != "operator" || m.ChatID != "console" {
		t.Fatalf("sender/chat = %s/%s", m.SenderID, m.ChatID)
	}
	if !m.HasText || m.Text != "/ticket printer on fire" {
		t.Fatalf("text = %q hasText = %v", m.Text, m.HasText)
	}
	if m.SessionKey != "console:console:operator" {
		t.Fatalf("session key = %q", m.SessionKey)
	}
}

func TestRenderPlainText(t *testing.T) {
	got := render(bus.OutboundMessage{Text: "pong"})
	if got != "pong\n" {
		t.Fatalf("render = %q", got)
	}
}

func TestRenderWithButtons(t *testing.T) {
	got := render(bus.OutboundMessage{
		Text: "Ticket #12",
		Buttons: []bus.Button{
			{Label: "Claim", Data: "ticket:claim:12"},
			{Label: "Close", Data: "ticket:close:12"},
		},
	})
	want := "Ticket #12\n  [Claim] ticket:claim:12\n  [Close] ticket:close:12\n"
	if got != want {
		t.Fatalf("render = %q, want %q", got, want)
	}
}
