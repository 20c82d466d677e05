// Package telegram implements the Telegram transport over long polling.
// Updates are normalized into bus.InboundMessage values; outbound replies
// are delivered with sendMessage, including inline keyboards for button
// replies.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/channels"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/logger"
)

// Transport connects one Telegram bot account to the message bus.
type Transport struct {
	token string
	bus   *bus.MessageBus

	mu     sync.Mutex
	bot    *telego.Bot
	cancel context.CancelFunc
	done   chan struct{}
}

var _ channels.Transport = (*Transport)(nil)

// New creates the Telegram transport. The token is validated on Start, not
// here, so construction never fails.
func New(cfg config.TelegramConfig, mb *bus.MessageBus) *Transport {
	return &Transport{token: cfg.Token, bus: mb}
}

func (t *Transport) Name() string { return "telegram" }

// Start connects to the Bot API and begins long polling. The receive loop
// runs until the context passed here is cancelled or Stop is called.
func (t *Transport) Start(ctx context.Context) error {
	bot, err := telego.NewBot(t.token, telego.WithDiscardLogger())
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	updates, err := bot.UpdatesViaLongPolling(runCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("telegram long polling: %w", err)
	}

	t.mu.Lock()
	t.bot = bot
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	logger.InfoCF("telegram", "Connected to Telegram", map[string]interface{}{
		"username": me.Username,
	})

	go t.receive(runCtx, updates, done)
	return nil
}

// Stop cancels long polling and waits for the receive loop to drain.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers one outbound message. Buttons become an inline keyboard
// with one button per row.
func (t *Transport) Send(ctx context.Context, msg bus.OutboundMessage) error {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return fmt.Errorf("telegram transport not started")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", msg.ChatID, err)
	}

	params := tu.Message(tu.ID(chatID), msg.Text)
	if msg.ReplyToID != "" {
		if replyTo, err := strconv.Atoi(msg.ReplyToID); err == nil {
			params = params.WithReplyParameters(&telego.ReplyParameters{MessageID: replyTo})
		}
	}
	if len(msg.Buttons) > 0 {
		rows := make([][]telego.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			rows = append(rows, tu.InlineKeyboardRow(
				tu.InlineKeyboardButton(b.Label).WithCallbackData(b.Data),
			))
		}
		params = params.WithReplyMarkup(tu.InlineKeyboard(rows...))
	}

	if _, err := bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *Transport) receive(ctx context.Context, updates <-chan telego.Update, done chan struct{}) {
	defer close(done)
	for update := range updates {
		for _, msg := range normalize(update) {
			t.bus.PublishInbound(msg)
		}
		if update.CallbackQuery != nil {
			// Telegram shows a spinner on the button until the query is
			// answered, even though the answer carries no content here.
			err := t.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
				CallbackQueryID: update.CallbackQuery.ID,
			})
			if err != nil && ctx.Err() == nil {
				logger.WarnCF("telegram", "Failed to answer callback query", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
	logger.InfoC("telegram", "Long polling stopped")
}

// normalize converts one Telegram update into zero or more inbound
// messages. A service message announcing joined members yields one
// member_join message per member.
func normalize(update telego.Update) []bus.InboundMessage {
	switch {
	case update.Message != nil:
		msg := update.Message
		if len(msg.NewChatMembers) > 0 {
			joins := make([]bus.InboundMessage, 0, len(msg.NewChatMembers))
			for i := range msg.NewChatMembers {
				joins = append(joins, memberJoin(msg, &msg.NewChatMembers[i]))
			}
			return joins
		}
		return []bus.InboundMessage{fromMessage(events.Message, msg)}
	case update.EditedMessage != nil:
		return []bus.InboundMessage{fromMessage(events.EditedMessage, update.EditedMessage)}
	case update.CallbackQuery != nil:
		return []bus.InboundMessage{fromCallback(update.CallbackQuery)}
	default:
		return nil
	}
}

func fromMessage(event string, msg *telego.Message) bus.InboundMessage {
	senderID := ""
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	return bus.InboundMessage{
		Channel:    "telegram",
		Event:      event,
		SenderID:   senderID,
		SenderName: displayName(msg.From),
		ChatID:     chatID,
		MessageID:  strconv.Itoa(msg.MessageID),
		Text:       msg.Text,
		HasText:    msg.Text != "",
		SessionKey: "telegram:" + chatID + ":" + senderID,
	}
}

func memberJoin(msg *telego.Message, member *telego.User) bus.InboundMessage {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	senderID := strconv.FormatInt(member.ID, 10)
	return bus.InboundMessage{
		Channel:    "telegram",
		Event:      events.MemberJoin,
		SenderID:   senderID,
		SenderName: displayName(member),
		ChatID:     chatID,
		MessageID:  strconv.Itoa(msg.MessageID),
		SessionKey: "telegram:" + chatID + ":" + senderID,
	}
}

func fromCallback(q *telego.CallbackQuery) bus.InboundMessage {
	senderID := strconv.FormatInt(q.From.ID, 10)
	chatID := ""
	messageID := ""
	if q.Message != nil {
		chatID = strconv.FormatInt(q.Message.GetChat().ID, 10)
		messageID = strconv.Itoa(q.Message.GetMessageID())
	}
	return bus.InboundMessage{
		Channel:      "telegram",
		Event:        events.CallbackQuery,
		SenderID:     senderID,
		SenderName:   displayName(&q.From),
		ChatID:       chatID,
		MessageID:    messageID,
		CallbackData: q.Data,
		SessionKey:   "telegram:" + chatID + ":" + senderID,
	}
}

func displayName(u *telego.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}
