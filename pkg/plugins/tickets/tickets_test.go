package tickets

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tgdesk/tgdesk/pkg/bot"
	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/i18n"
	"github.com/tgdesk/tgdesk/pkg/store"
)

func newTestBot(t *testing.T) (*bot.Dispatcher, *store.Store, *bus.MessageBus) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mb := bus.NewMessageBus()
	d := bot.NewDispatcher(config.Default(), st, i18n.NewCatalog("en"), mb)
	if err := d.Install(Module()); err != nil {
		t.Fatalf("install tickets: %v", err)
	}
	if err := d.RunInit(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return d, st, mb
}

func message(sender, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:  "console",
		Event:    events.Message,
		SenderID: sender,
		ChatID:   "chat1",
		Text:     text,
		HasText:  true,
	}
}

func callback(sender, name, data string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:      "console",
		Event:        events.CallbackQuery,
		SenderID:     sender,
		SenderName:   name,
		ChatID:       "chat1",
		CallbackData: data,
	}
}

func reply(t *testing.T, mb *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := mb.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("expected an outbound reply")
	}
	return msg
}

func noReply(t *testing.T, mb *bus.MessageBus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if msg, ok := mb.SubscribeOutbound(ctx); ok {
		t.Fatalf("unexpected reply: %q", msg.Text)
	}
}

func TestOpenTicket(t *testing.T) {
	d, st, mb := newTestBot(t)
	systemEvents := mb.SubscribeSystem("test")

	d.Handle(context.Background(), message("u1", "/ticket printer on fire"))

	got := reply(t, mb)
	if !strings.Contains(got.Text, "opened") {
		t.Errorf("reply = %q, want an opened confirmation", got.Text)
	}

	tk, err := st.OpenTicketFor("console", "u1")
	if err != nil {
		t.Fatalf("ticket not stored: %v", err)
	}
	if tk.Subject != "printer on fire" {
		t.Errorf("subject = %q", tk.Subject)
	}
	if tk.Status != store.TicketOpen {
		t.Errorf("status = %q, want open", tk.Status)
	}

	if len(got.Buttons) != 2 {
		t.Fatalf("buttons = %d, want claim and close", len(got.Buttons))
	}
	if got.Buttons[0].Data != "ticket:claim:"+tk.ID {
		t.Errorf("claim payload = %q", got.Buttons[0].Data)
	}
	if got.Buttons[1].Data != "ticket:close:"+tk.ID {
		t.Errorf("close payload = %q", got.Buttons[1].Data)
	}

	select {
	case raw := <-systemEvents:
		evt := raw.(bus.SystemEvent)
		if evt.Type != events.TicketOpened {
			t.Errorf("event type = %q, want %q", evt.Type, events.TicketOpened)
		}
	default:
		t.Error("no ticket.opened event published")
	}
}

func TestSecondTicketRefused(t *testing.T) {
	d, st, mb := newTestBot(t)

	d.Handle(context.Background(), message("u1", "/ticket first"))
	reply(t, mb)

	d.Handle(context.Background(), message("u1", "/ticket second"))
	if got := reply(t, mb).Text; !strings.Contains(got, "already") {
		t.Errorf("reply = %q, want already-open notice", got)
	}

	all, err := st.ListTickets("", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("tickets = %d, want 1", len(all))
	}
}

func TestTicketWithoutSubject(t *testing.T) {
	d, _, mb := newTestBot(t)

	d.Handle(context.Background(), message("u1", "/ticket"))
	if got := reply(t, mb).Text; !strings.Contains(got, "Usage") {
		t.Errorf("reply = %q, want usage hint", got)
	}
}

func TestFollowupsAppendToOpenTicket(t *testing.T) {
	d, st, mb := newTestBot(t)

	d.Handle(context.Background(), message("u1", "/ticket smoke"))
	reply(t, mb)

	d.Handle(context.Background(), message("u1", "now it is also beeping"))
	d.Handle(context.Background(), message("u1", "/unknowncommand"))
	d.Handle(context.Background(), message("stranger", "hello?"))

	tk, err := st.OpenTicketFor("console", "u1")
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}
	msgs, err := st.TicketMessages(tk.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Body != "now it is also beeping" {
		t.Errorf("body = %q", msgs[0].Body)
	}
}

func TestClaimButton(t *testing.T) {
	d, st, mb := newTestBot(t)

	d.Handle(context.Background(), message("u1", "/ticket help"))
	reply(t, mb)
	tk, _ := st.OpenTicketFor("console", "u1")

	d.Handle(context.Background(), callback("agent1", "Agnes", "ticket:claim:"+tk.ID))
	if got := reply(t, mb).Text; !strings.Contains(got, "Agnes") {
		t.Errorf("reply = %q, want claimer name", got)
	}

	tk, err := st.GetTicket(tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tk.Status != store.TicketClaimed {
		t.Errorf("status = %q, want claimed", tk.Status)
	}
	if tk.Agent != "agent1" {
		t.Errorf("agent = %q, want agent1", tk.Agent)
	}
}

func TestCloseButtonAndTerminalState(t *testing.T) {
	d, st, mb := newTestBot(t)

	d.Handle(context.Background(), message("u1", "/ticket help"))
	reply(t, mb)
	tk, _ := st.OpenTicketFor("console", "u1")

	d.Handle(context.Background(), callback("agent1", "", "ticket:close:"+tk.ID))
	if got := reply(t, mb).Text; !strings.Contains(got, "closed") {
		t.Errorf("reply = %q, want closed confirmation", got)
	}

	// Closed is terminal; a late claim click must not reopen anything.
	d.Handle(context.Background(), callback("agent2", "", "ticket:claim:"+tk.ID))
	if got := reply(t, mb).Text; !strings.Contains(got, "moved on") {
		t.Errorf("reply = %q, want stale-button notice", got)
	}

	tk, _ = st.GetTicket(tk.ID)
	if tk.Status != store.TicketClosed {
		t.Errorf("status = %q, want closed", tk.Status)
	}
}

func TestCloseCommandWithoutTicket(t *testing.T) {
	d, _, mb := newTestBot(t)

	d.Handle(context.Background(), message("u1", "/close"))
	if got := reply(t, mb).Text; !strings.Contains(got, "no open ticket") {
		t.Errorf("reply = %q, want no-ticket notice", got)
	}
}

func TestListTickets(t *testing.T) {
	d, _, mb := newTestBot(t)

	d.Handle(context.Background(), message("u1", "/tickets"))
	if got := reply(t, mb).Text; !strings.Contains(got, "No open tickets") {
		t.Errorf("reply = %q, want empty notice", got)
	}

	d.Handle(context.Background(), message("u1", "/ticket vpn down"))
	reply(t, mb)

	d.Handle(context.Background(), message("agent1", "/tickets"))
	got := reply(t, mb)
	if !strings.Contains(got.Text, "vpn down") {
		t.Errorf("listing %q missing subject", got.Text)
	}
	if len(got.Buttons) != 2 {
		t.Errorf("listing buttons = %d, want 2", len(got.Buttons))
	}
}

func TestForeignCallbackIgnored(t *testing.T) {
	d, _, mb := newTestBot(t)

	d.Handle(context.Background(), callback("u1", "", "poll:vote:42"))
	noReply(t, mb)

	d.Handle(context.Background(), callback("u1", "", "ticket:claim:"))
	noReply(t, mb)
}
