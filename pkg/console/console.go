// Package console implements a local operator transport on standard
// input. Lines typed at the prompt become inbound messages; outbound
// messages print above the prompt. It exists so a bare binary is usable
// without any chat credentials.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/channels"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/logger"
)

// The console is a single-operator surface, so identity is fixed.
const (
	operatorID  = "operator"
	consoleChat = "console"
)

// Transport reads operator input with line editing and history.
type Transport struct {
	bus *bus.MessageBus

	mu   sync.Mutex
	rl   *readline.Instance
	done chan struct{}
}

var _ channels.Transport = (*Transport)(nil)

// New creates the console transport.
func New(cfg config.ConsoleConfig, mb *bus.MessageBus) *Transport {
	return &Transport{bus: mb}
}

func (t *Transport) Name() string { return "console" }

// Start opens the prompt and begins reading lines.
func (t *Transport) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tgdesk> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}

	t.mu.Lock()
	t.rl = rl
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go t.read(rl, done)
	logger.InfoC("console", "Console ready, type /help to begin")
	return nil
}

// Stop closes the prompt and waits for the read loop to exit.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	rl, done := t.rl, t.done
	t.rl, t.done = nil, nil
	t.mu.Unlock()
	if rl == nil {
		return nil
	}
	rl.Close()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send prints the message above the prompt. Buttons render as indented
// label lines since a terminal has nothing to click.
func (t *Transport) Send(ctx context.Context, msg bus.OutboundMessage) error {
	t.mu.Lock()
	rl := t.rl
	t.mu.Unlock()
	if rl == nil {
		return fmt.Errorf("console transport not started")
	}
	fmt.Fprint(rl.Stdout(), render(msg))
	return nil
}

func (t *Transport) read(rl *readline.Instance, done chan struct{}) {
	defer close(done)
	for {
		line, err := rl.Readline()
		switch {
		case err == readline.ErrInterrupt:
			if line == "" {
				return
			}
			continue
		case err == io.EOF:
			return
		case err != nil:
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t.bus.PublishInbound(inboundFromLine(line))
	}
}

func inboundFromLine(line string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:    "console",
		Event:      events.Message,
		SenderID:   operatorID,
		SenderName: operatorID,
		ChatID:     consoleChat,
		Text:       line,
		HasText:    true,
		SessionKey: "console:" + consoleChat + ":" + operatorID,
	}
}

func render(msg bus.OutboundMessage) string {
	var sb strings.Builder
	sb.WriteString(msg.Text)
	sb.WriteByte('\n')
	for _, b := range msg.Buttons {
		fmt.Fprintf(&sb, "  [%s] %s\n", b.Label, b.Data)
	}
	return sb.String()
}
