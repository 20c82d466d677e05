// Package stats keeps rough activity counters and runs the scheduled
// housekeeping sweep: counter rotation into the per-day history plus
// session and audit retention.
//
// Routed commands never reach module dispatch, so the message counter
// tracks conversational traffic, not command invocations.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tgdesk/tgdesk/pkg/bot"
	"github.com/tgdesk/tgdesk/pkg/commands"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/modules"
)

// SweepJob is the scheduler job name this module reacts to. Point a cron
// entry of that name at the quiet hours; other job names are ignored here.
const SweepJob = "daily_sweep"

const (
	counterMessages  = "messages"
	counterCallbacks = "callbacks"
	counterJoins     = "joins"

	sessionRetention = 30 * 24 * time.Hour
	auditRetention   = 90 * 24 * time.Hour
)

// Module builds the stats plugin.
func Module() modules.Module[*bot.Context] {
	return modules.Module[*bot.Context]{
		Name:    "stats",
		Enabled: true,
		Commands: []commands.Definition[*bot.Context]{
			{
				Name:        "stats",
				Description: "Show activity counters and ticket totals",
				Handler:     cmdStats,
			},
		},
		Handlers: []modules.HandlerDefinition[*bot.Context]{
			{Name: "count_messages", Event: events.Message, Handler: count(counterMessages)},
			{Name: "count_callbacks", Event: events.CallbackQuery, Handler: count(counterCallbacks)},
			{Name: "count_joins", Event: events.MemberJoin, Handler: count(counterJoins)},
			{Name: "sweep", Event: events.Tick, Handler: onTick},
		},
		OnInit: func(ctx context.Context, host modules.HostContext) error {
			host.T.AddDefault("en", map[string]string{
				"stats.header_counters": "Activity since the last rotation:",
				"stats.header_tickets":  "Tickets:",
				"stats.empty":           "No activity recorded yet.",
			})
			return nil
		},
	}
}

func count(name string) modules.EventHandler[*bot.Context] {
	return func(ctx context.Context, c *bot.Context) error {
		return c.Store.IncrCounter(name)
	}
}

func cmdStats(ctx context.Context, c *bot.Context) error {
	counters, err := c.Store.Counters()
	if err != nil {
		return err
	}
	ticketStats, err := c.Store.TicketStats()
	if err != nil {
		return err
	}
	if len(counters) == 0 && len(ticketStats) == 0 {
		c.Reply(c.T("stats.empty"))
		return nil
	}

	var sb strings.Builder
	sb.WriteString(c.T("stats.header_counters"))
	for _, name := range sortedKeys(counters) {
		fmt.Fprintf(&sb, "\n%s: %d", name, counters[name])
	}
	if len(ticketStats) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(c.T("stats.header_tickets"))
		for _, status := range sortedKeys(ticketStats) {
			fmt.Fprintf(&sb, "\n%s: %d", status, ticketStats[status])
		}
	}
	c.Reply(sb.String())
	return nil
}

// onTick runs the daily sweep. Each stage is attempted even when an
// earlier one fails; the loader reports the combined error.
func onTick(ctx context.Context, c *bot.Context) error {
	if c.Update.Metadata["job"] != SweepJob {
		return nil
	}

	var errs []error
	rotated := 0

	// Counters accumulated since the previous sweep belong to the day
	// that just ended.
	day := time.Now().UTC().AddDate(0, 0, -1)
	snapshot, err := c.Store.RotateCounters(day)
	if err != nil {
		errs = append(errs, err)
	} else {
		rotated = len(snapshot)
	}

	sessions, err := c.Store.SweepSessions(sessionRetention)
	if err != nil {
		errs = append(errs, err)
	}
	audits, err := c.Store.SweepAudit(auditRetention)
	if err != nil {
		errs = append(errs, err)
	}

	logger.InfoCF("stats", "Daily sweep finished", map[string]interface{}{
		"counters_rotated": rotated,
		"sessions_removed": sessions,
		"audit_removed":    audits,
		"errors":           len(errs),
	})
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
