// Package tickets implements the support request workflow: opening a
// ticket from chat, agent claim and close through inline buttons, and
// capturing follow-up messages while a ticket is open.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tgdesk/tgdesk/pkg/bot"
	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/commands"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/modules"
	"github.com/tgdesk/tgdesk/pkg/store"
)

// Button payloads look like "ticket:claim:<id>". The prefix keeps this
// module from reacting to other modules' buttons.
const callbackPrefix = "ticket:"

// Module builds the tickets plugin.
func Module() modules.Module[*bot.Context] {
	return modules.Module[*bot.Context]{
		Name:    "tickets",
		Enabled: true,
		Commands: []commands.Definition[*bot.Context]{
			{
				Name:        "ticket",
				Description: "Open a support ticket",
				Usage:       "/ticket <subject>",
				Handler:     cmdTicket,
			},
			{
				Name:        "tickets",
				Description: "List open and claimed tickets",
				Handler:     cmdTickets,
			},
			{
				Name:        "close",
				Description: "Close your current ticket",
				Handler:     cmdClose,
			},
		},
		Handlers: []modules.HandlerDefinition[*bot.Context]{
			{Name: "buttons", Event: events.CallbackQuery, Handler: onCallback},
			{Name: "followups", Event: events.Message, Handler: onFollowup},
		},
		OnInit: func(ctx context.Context, host modules.HostContext) error {
			host.T.AddDefault("en", map[string]string{
				"tickets.usage":         "Usage: /ticket <subject>",
				"tickets.already_open":  "You already have ticket #%s open. Keep writing here and I will add your messages to it.",
				"tickets.opened":        "Ticket #%s opened. An agent will pick it up; anything else you write is added to the ticket.",
				"tickets.none":          "No open tickets.",
				"tickets.none_open":     "You have no open ticket. Open one with /ticket <subject>.",
				"tickets.closed":        "Ticket #%s closed.",
				"tickets.claimed":       "Ticket #%s claimed by %s.",
				"tickets.unknown":       "That ticket no longer exists.",
				"tickets.not_claimable": "That ticket already moved on; refresh the list with /tickets.",
				"tickets.btn_claim":     "Claim",
				"tickets.btn_close":     "Close",
			})
			return nil
		},
	}
}

func cmdTicket(ctx context.Context, c *bot.Context) error {
	subject := c.ArgText()
	if subject == "" {
		c.Reply(c.T("tickets.usage"))
		return nil
	}

	// One live ticket per sender per channel.
	existing, err := c.Store.OpenTicketFor(c.Update.Channel, c.Update.SenderID)
	switch {
	case err == nil:
		c.Reply(c.T("tickets.already_open", shortID(existing.ID)))
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	t := &store.Ticket{
		Channel:    c.Update.Channel,
		ChatID:     c.Update.ChatID,
		OpenerID:   c.Update.SenderID,
		OpenerName: c.Update.SenderName,
		Subject:    subject,
	}
	if err := c.Store.CreateTicket(t); err != nil {
		return err
	}

	c.Bus.PublishSystem(bus.SystemEvent{
		Type:   events.TicketOpened,
		Source: "tickets",
		Data: events.TicketEventData{
			TicketID: t.ID,
			Subject:  t.Subject,
			Status:   string(t.Status),
			Opener:   t.OpenerID,
		},
	})
	c.ReplyWithButtons(c.T("tickets.opened", shortID(t.ID)), ticketButtons(c, t))
	return nil
}

func cmdTickets(ctx context.Context, c *bot.Context) error {
	open, err := c.Store.ListTickets(store.TicketOpen, 10)
	if err != nil {
		return err
	}
	claimed, err := c.Store.ListTickets(store.TicketClaimed, 10)
	if err != nil {
		return err
	}
	if len(open)+len(claimed) == 0 {
		c.Reply(c.T("tickets.none"))
		return nil
	}
	for _, t := range append(open, claimed...) {
		c.ReplyWithButtons(ticketLine(t), ticketButtons(c, t))
	}
	return nil
}

func cmdClose(ctx context.Context, c *bot.Context) error {
	t, err := c.Store.OpenTicketFor(c.Update.Channel, c.Update.SenderID)
	if errors.Is(err, store.ErrNotFound) {
		c.Reply(c.T("tickets.none_open"))
		return nil
	}
	if err != nil {
		return err
	}
	return closeTicket(c, t.ID)
}

// onCallback handles the Claim and Close buttons. Foreign payloads and
// stale ticket IDs are answered politely instead of erroring, since buttons
// outlive the state they were rendered for.
func onCallback(ctx context.Context, c *bot.Context) error {
	data := c.Update.CallbackData
	if !strings.HasPrefix(data, callbackPrefix) {
		return nil
	}
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return nil
	}
	action, id := parts[1], parts[2]

	switch action {
	case "claim":
		err := c.Store.TransitionTicket(id, store.TicketClaimed, c.Update.SenderID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.Reply(c.T("tickets.unknown"))
			return nil
		case errors.Is(err, store.ErrInvalidTransition):
			c.Reply(c.T("tickets.not_claimable"))
			return nil
		case err != nil:
			return err
		}
		c.Bus.PublishSystem(bus.SystemEvent{
			Type:   events.TicketClaimed,
			Source: "tickets",
			Data: events.TicketEventData{
				TicketID: id,
				Status:   string(store.TicketClaimed),
				Agent:    c.Update.SenderID,
			},
		})
		c.Reply(c.T("tickets.claimed", shortID(id), senderLabel(c)))
		return nil
	case "close":
		return closeTicket(c, id)
	default:
		return nil
	}
}

// onFollowup appends plain chat messages to the sender's live ticket.
// Commands are excluded: an unknown command falling through routing should
// not end up in a ticket transcript.
func onFollowup(ctx context.Context, c *bot.Context) error {
	text, ok := c.MessageText()
	if !ok || strings.HasPrefix(text, "/") {
		return nil
	}
	t, err := c.Store.OpenTicketFor(c.Update.Channel, c.Update.SenderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.Store.AppendTicketMessage(t.ID, c.Update.SenderID, text)
}

func closeTicket(c *bot.Context, id string) error {
	err := c.Store.TransitionTicket(id, store.TicketClosed, c.Update.SenderID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.Reply(c.T("tickets.unknown"))
		return nil
	case errors.Is(err, store.ErrInvalidTransition):
		c.Reply(c.T("tickets.not_claimable"))
		return nil
	case err != nil:
		return err
	}
	c.Bus.PublishSystem(bus.SystemEvent{
		Type:   events.TicketClosed,
		Source: "tickets",
		Data: events.TicketEventData{
			TicketID: id,
			Status:   string(store.TicketClosed),
			Agent:    c.Update.SenderID,
		},
	})
	c.Reply(c.T("tickets.closed", shortID(id)))
	return nil
}

// ticketButtons renders the actions valid for the ticket's current status.
func ticketButtons(c *bot.Context, t *store.Ticket) []bus.Button {
	var buttons []bus.Button
	if t.Status == store.TicketOpen {
		buttons = append(buttons, bus.Button{
			Label: c.T("tickets.btn_claim"),
			Data:  callbackPrefix + "claim:" + t.ID,
		})
	}
	buttons = append(buttons, bus.Button{
		Label: c.T("tickets.btn_close"),
		Data:  callbackPrefix + "close:" + t.ID,
	})
	return buttons
}

func ticketLine(t *store.Ticket) string {
	opener := t.OpenerName
	if opener == "" {
		opener = t.OpenerID
	}
	return fmt.Sprintf("#%s [%s] %s (from %s)", shortID(t.ID), t.Status, t.Subject, opener)
}

// shortID trims UUIDs for chat display. Full IDs stay on the buttons and in
// the API.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func senderLabel(c *bot.Context) string {
	if c.Update.SenderName != "" {
		return c.Update.SenderName
	}
	return c.Update.SenderID
}
