// Package bans keeps blocked senders out: a pipeline filter drops their
// updates before commands or modules see them, and hidden moderator
// commands issue and lift the blocks.
package bans

import (
	"context"
	"strings"

	"github.com/tgdesk/tgdesk/pkg/bot"
	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/commands"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/middleware"
	"github.com/tgdesk/tgdesk/pkg/modules"
	"github.com/tgdesk/tgdesk/pkg/store"
)

// The filter runs after the host middlewares (ratelimit -40, session -30,
// audit -20) and before module middlewares at the default priority.
const filterPriority = -10

// Module builds the bans plugin.
func Module() modules.Module[*bot.Context] {
	return modules.Module[*bot.Context]{
		Name:    "bans",
		Enabled: true,
		Commands: []commands.Definition[*bot.Context]{
			{
				Name:    "ban",
				Usage:   "/ban <user_id> [reason]",
				Hidden:  true,
				Handler: cmdBan,
			},
			{
				Name:    "unban",
				Usage:   "/unban <user_id>",
				Hidden:  true,
				Handler: cmdUnban,
			},
		},
		Handlers: []modules.HandlerDefinition[*bot.Context]{
			{Name: "gatekeeper", Event: events.MemberJoin, Handler: onMemberJoin},
		},
		Middlewares: []middleware.Definition[*bot.Context]{
			{Name: "filter", Priority: filterPriority, Handler: filter},
		},
		OnInit: func(ctx context.Context, host modules.HostContext) error {
			host.T.AddDefault("en", map[string]string{
				"bans.usage_ban":     "Usage: /ban <user_id> [reason]",
				"bans.usage_unban":   "Usage: /unban <user_id>",
				"bans.banned":        "User %s is banned from this channel.",
				"bans.unbanned":      "User %s may speak again.",
				"bans.not_banned":    "User %s is not banned.",
				"bans.joined_banned": "Heads up: %s just joined and is on the ban list.",
			})
			return nil
		},
	}
}

// filter halts updates from banned senders. Join notifications pass
// through so the gatekeeper handler can announce the arrival; a lookup
// failure lets the update through rather than silencing everyone.
func filter(ctx context.Context, c *bot.Context, next middleware.Next) error {
	if c.Update.Event == events.MemberJoin {
		return next()
	}
	banned, err := c.Store.IsBanned(c.Update.Channel, c.Update.SenderID)
	if err != nil {
		logger.WarnCF("bans", "Ban lookup failed", map[string]interface{}{
			"channel": c.Update.Channel,
			"sender":  c.Update.SenderID,
			"error":   err.Error(),
		})
		return next()
	}
	if banned {
		logger.DebugCF("bans", "Update from banned sender dropped", map[string]interface{}{
			"channel": c.Update.Channel,
			"sender":  c.Update.SenderID,
		})
		c.Halt()
		return nil
	}
	return next()
}

func cmdBan(ctx context.Context, c *bot.Context) error {
	args := c.Args()
	if len(args) == 0 {
		c.Reply(c.T("bans.usage_ban"))
		return nil
	}
	target := args[0]
	reason := strings.Join(args[1:], " ")

	if err := c.Store.AddBan(&store.Ban{
		Channel:  c.Update.Channel,
		SenderID: target,
		Reason:   reason,
		IssuedBy: c.Update.SenderID,
	}); err != nil {
		return err
	}

	c.Bus.PublishSystem(bus.SystemEvent{
		Type:   events.BanIssued,
		Source: "bans",
		Data: events.BanEventData{
			Channel:  c.Update.Channel,
			SenderID: target,
			Reason:   reason,
			Issuer:   c.Update.SenderID,
		},
	})
	c.Reply(c.T("bans.banned", target))
	return nil
}

func cmdUnban(ctx context.Context, c *bot.Context) error {
	args := c.Args()
	if len(args) == 0 {
		c.Reply(c.T("bans.usage_unban"))
		return nil
	}
	target := args[0]

	removed, err := c.Store.RemoveBan(c.Update.Channel, target)
	if err != nil {
		return err
	}
	if !removed {
		c.Reply(c.T("bans.not_banned", target))
		return nil
	}

	c.Bus.PublishSystem(bus.SystemEvent{
		Type:   events.BanLifted,
		Source: "bans",
		Data: events.BanEventData{
			Channel:  c.Update.Channel,
			SenderID: target,
			Issuer:   c.Update.SenderID,
		},
	})
	c.Reply(c.T("bans.unbanned", target))
	return nil
}

// onMemberJoin warns the chat when a banned sender rejoins. The filter let
// this event through specifically for this announcement.
func onMemberJoin(ctx context.Context, c *bot.Context) error {
	banned, err := c.Store.IsBanned(c.Update.Channel, c.Update.SenderID)
	if err != nil || !banned {
		return err
	}
	label := c.Update.SenderName
	if label == "" {
		label = c.Update.SenderID
	}
	c.Reply(c.T("bans.joined_banned", label))
	return nil
}
