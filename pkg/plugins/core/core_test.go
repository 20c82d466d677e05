package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tgdesk/tgdesk/pkg/bot"
	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/commands"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/i18n"
	"github.com/tgdesk/tgdesk/pkg/store"
)

func newTestBot(t *testing.T) (*bot.Dispatcher, *bus.MessageBus) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mb := bus.NewMessageBus()
	d := bot.NewDispatcher(config.Default(), st, i18n.NewCatalog("en"), mb)
	if err := d.Install(Module(d)); err != nil {
		t.Fatalf("install core: %v", err)
	}
	if err := d.RunInit(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return d, mb
}

func inbound(text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:  "console",
		Event:    events.Message,
		SenderID: "u1",
		ChatID:   "chat1",
		Text:     text,
		HasText:  true,
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

func TestPing(t *testing.T) {
	d, mb := newTestBot(t)

	d.Handle(context.Background(), inbound("/ping"))
	if got := reply(t, mb).Text; got != "pong" {
		t.Errorf("reply = %q, want pong", got)
	}
}

func TestStartMentionsBotName(t *testing.T) {
	d, mb := newTestBot(t)

	d.Handle(context.Background(), inbound("/start"))
	if got := reply(t, mb).Text; !strings.Contains(got, "tgdesk") {
		t.Errorf("start reply %q does not mention the bot name", got)
	}
}

func TestHelpListsVisibleCommandsSorted(t *testing.T) {
	d, mb := newTestBot(t)

	// A later module's command must show up in the menu too.
	err := d.Commands.Register(commands.Definition[*bot.Context]{
		Name:        "zeta",
		Description: "Last by name",
		Handler: func(ctx context.Context, c *bot.Context) error {
			return nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	d.Handle(context.Background(), inbound("/help"))
	got := reply(t, mb).Text

	for _, want := range []string{"/help - ", "/ping - ", "/start - ", "/zeta - Last by name"} {
		if !strings.Contains(got, want) {
			t.Errorf("help output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "/debug") {
		t.Errorf("help output lists the hidden command:\n%s", got)
	}
	if strings.Index(got, "/help") > strings.Index(got, "/ping") {
		t.Errorf("help output is not sorted:\n%s", got)
	}
}

func TestDebugShowsDispatchContext(t *testing.T) {
	d, mb := newTestBot(t)

	d.Handle(context.Background(), inbound("/debug"))
	got := reply(t, mb).Text

	for _, want := range []string{"channel: console", "sender: u1", "locale: en"} {
		if !strings.Contains(got, want) {
			t.Errorf("debug output missing %q:\n%s", want, got)
		}
	}
}
