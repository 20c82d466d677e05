// Package core bundles the baseline commands every deployment gets:
// /start, /help, /ping and a hidden /debug. It also seeds the English
// fallback strings for the dispatcher's error replies, so the bot speaks
// sensibly even with no locale files on disk.
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tgdesk/tgdesk/pkg/bot"
	"github.com/tgdesk/tgdesk/pkg/commands"
	"github.com/tgdesk/tgdesk/pkg/modules"
)

type coreModule struct {
	dispatcher *bot.Dispatcher
	botName    string
}

// Module builds the core plugin. It takes the dispatcher so /help can read
// the live command registry, including commands other modules add later.
func Module(d *bot.Dispatcher) modules.Module[*bot.Context] {
	m := &coreModule{dispatcher: d}
	return modules.Module[*bot.Context]{
		Name:    "core",
		Enabled: true,
		Commands: []commands.Definition[*bot.Context]{
			{
				Name:        "start",
				Description: "Introduction and first steps",
				Handler:     m.cmdStart,
			},
			{
				Name:        "help",
				Description: "List available commands",
				Handler:     m.cmdHelp,
			},
			{
				Name:        "ping",
				Description: "Check that the bot is alive",
				Handler:     m.cmdPing,
			},
			{
				Name:    "debug",
				Hidden:  true,
				Handler: m.cmdDebug,
			},
		},
		OnInit: m.init,
	}
}

func (m *coreModule) init(ctx context.Context, host modules.HostContext) error {
	m.botName = host.Config.Bot.Name
	host.T.AddDefault("en", map[string]string{
		"core.start":            "Hi, I am %s. Open a support request with /ticket <subject>, or see /help for everything else.",
		"core.help":             "Available commands:",
		"core.pong":             "pong",
		"error.internal":        "Something went wrong on our side. Please try again.",
		"error.module_disabled": "This feature is currently switched off.",
	})
	return nil
}

func (m *coreModule) cmdStart(ctx context.Context, c *bot.Context) error {
	c.Reply(c.T("core.start", m.botName))
	return nil
}

func (m *coreModule) cmdHelp(ctx context.Context, c *bot.Context) error {
	c.Reply(m.helpText(c))
	return nil
}

func (m *coreModule) cmdPing(ctx context.Context, c *bot.Context) error {
	c.Reply(c.T("core.pong"))
	return nil
}

// cmdDebug dumps the dispatch context of the current update. Hidden from
// the menu; useful when wiring a new transport.
func (m *coreModule) cmdDebug(ctx context.Context, c *bot.Context) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "trace: %s\n", c.TraceID)
	fmt.Fprintf(&sb, "channel: %s\n", c.Update.Channel)
	fmt.Fprintf(&sb, "event: %s\n", c.Update.Event)
	fmt.Fprintf(&sb, "sender: %s\n", c.Update.SenderID)
	fmt.Fprintf(&sb, "chat: %s\n", c.Update.ChatID)
	fmt.Fprintf(&sb, "locale: %s", c.Locale())
	if c.Session != nil {
		fmt.Fprintf(&sb, "\nsession: %s", c.Session.Key)
	}
	c.Reply(sb.String())
	return nil
}

// helpText renders the visible command menu sorted by name. Visible returns
// a copy, so sorting here cannot disturb the registry.
func (m *coreModule) helpText(c *bot.Context) string {
	defs := m.dispatcher.Commands.Visible()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	var sb strings.Builder
	sb.WriteString(c.T("core.help"))
	for _, def := range defs {
		sb.WriteString("\n/")
		sb.WriteString(def.Name)
		if def.Description != "" {
			sb.WriteString(" - ")
			sb.WriteString(def.Description)
		}
	}
	return sb.String()
}
