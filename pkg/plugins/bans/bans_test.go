package bans

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
	"github.com/tgdesk/tgdesk/pkg/modules"
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
		t.Fatalf("install bans: %v", err)
	}
	if err := d.RunInit(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return d, st, mb
}

// probe records which senders reach module dispatch.
func probe(seen *[]string) modules.Module[*bot.Context] {
	return modules.Module[*bot.Context]{
		Name:    "probe",
		Enabled: true,
		Handlers: []modules.HandlerDefinition[*bot.Context]{
			{
				Name:  "record",
				Event: events.Message,
				Handler: func(ctx context.Context, c *bot.Context) error {
					*seen = append(*seen, c.Update.SenderID)
					return nil
				},
			},
		},
	}
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

func join(sender, name string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:    "console",
		Event:      events.MemberJoin,
		SenderID:   sender,
		SenderName: name,
		ChatID:     "chat1",
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

func TestBanCommand(t *testing.T) {
	d, st, mb := newTestBot(t)
	systemEvents := mb.SubscribeSystem("test")

	d.Handle(context.Background(), message("mod", "/ban spammer flooding the chat"))
	if got := reply(t, mb).Text; !strings.Contains(got, "spammer") {
		t.Errorf("reply = %q, want ban confirmation", got)
	}

	banned, err := st.IsBanned("console", "spammer")
	if err != nil {
		t.Fatalf("is banned: %v", err)
	}
	if !banned {
		t.Error("spammer is not banned after /ban")
	}

	bans, _ := st.ListBans()
	if len(bans) != 1 || bans[0].Reason != "flooding the chat" || bans[0].IssuedBy != "mod" {
		t.Errorf("stored ban = %+v", bans[0])
	}

	select {
	case raw := <-systemEvents:
		if evt := raw.(bus.SystemEvent); evt.Type != events.BanIssued {
			t.Errorf("event type = %q, want %q", evt.Type, events.BanIssued)
		}
	default:
		t.Error("no ban.issued event published")
	}
}

func TestBanWithoutTarget(t *testing.T) {
	d, _, mb := newTestBot(t)

	d.Handle(context.Background(), message("mod", "/ban"))
	if got := reply(t, mb).Text; !strings.Contains(got, "Usage") {
		t.Errorf("reply = %q, want usage hint", got)
	}
}

func TestFilterSilencesBannedSender(t *testing.T) {
	d, _, mb := newTestBot(t)

	var seen []string
	if err := d.Install(probe(&seen)); err != nil {
		t.Fatalf("install probe: %v", err)
	}

	d.Handle(context.Background(), message("mod", "/ban spammer"))
	reply(t, mb)

	d.Handle(context.Background(), message("spammer", "buy cheap things"))
	noReply(t, mb)

	d.Handle(context.Background(), message("regular", "hello"))

	if len(seen) != 1 || seen[0] != "regular" {
		t.Errorf("module dispatch saw %v, want only the regular sender", seen)
	}
}

func TestUnban(t *testing.T) {
	d, st, mb := newTestBot(t)

	d.Handle(context.Background(), message("mod", "/ban spammer"))
	reply(t, mb)

	d.Handle(context.Background(), message("mod", "/unban spammer"))
	if got := reply(t, mb).Text; !strings.Contains(got, "speak again") {
		t.Errorf("reply = %q, want unban confirmation", got)
	}

	banned, _ := st.IsBanned("console", "spammer")
	if banned {
		t.Error("spammer still banned after /unban")
	}

	d.Handle(context.Background(), message("mod", "/unban nobody"))
	if got := reply(t, mb).Text; !strings.Contains(got, "not banned") {
		t.Errorf("reply = %q, want not-banned notice", got)
	}
}

func TestBannedJoinIsAnnounced(t *testing.T) {
	d, _, mb := newTestBot(t)

	d.Handle(context.Background(), message("mod", "/ban ghost"))
	reply(t, mb)

	d.Handle(context.Background(), join("ghost", "Casper"))
	if got := reply(t, mb).Text; !strings.Contains(got, "Casper") {
		t.Errorf("reply = %q, want join warning naming the sender", got)
	}

	d.Handle(context.Background(), join("newcomer", "Nina"))
	noReply(t, mb)
}

func TestDisablingModulePausesFilter(t *testing.T) {
	d, _, mb := newTestBot(t)

	var seen []string
	if err := d.Install(probe(&seen)); err != nil {
		t.Fatalf("install probe: %v", err)
	}

	d.Handle(context.Background(), message("mod", "/ban spammer"))
	reply(t, mb)

	if !d.Disable("bans") {
		t.Fatal("disable failed")
	}
	d.Handle(context.Background(), message("spammer", "back again"))

	if len(seen) != 1 || seen[0] != "spammer" {
		t.Errorf("module dispatch saw %v, want the banned sender once the filter is off", seen)
	}
}
