// Package discord implements the Discord transport over the gateway.
// Messages, edits, member joins, and button interactions are normalized
// into bus.InboundMessage values; outbound replies are delivered with
// ChannelMessageSendComplex, including button components.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/channels"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/logger"
)

// Transport connects one Discord bot account to the message bus.
type Transport struct {
	token string
	bus   *bus.MessageBus

	mu      sync.Mutex
	session *discordgo.Session
}

var _ channels.Transport = (*Transport)(nil)

// New creates the Discord transport. The token is validated on Start.
func New(cfg config.DiscordConfig, mb *bus.MessageBus) *Transport {
	return &Transport{token: cfg.Token, bus: mb}
}

func (t *Transport) Name() string { return "discord" }

// Start opens the gateway session. Handlers run on discordgo's own
// goroutines until Stop closes the session.
func (t *Transport) Start(ctx context.Context) error {
	s, err := discordgo.New("Bot " + t.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}

	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent

	s.AddHandler(t.onMessageCreate)
	s.AddHandler(t.onMessageUpdate)
	s.AddHandler(t.onGuildMemberAdd)
	s.AddHandler(t.onInteractionCreate)

	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	t.mu.Lock()
	t.session = s
	t.mu.Unlock()

	username := ""
	if s.State.User != nil {
		username = s.State.User.Username
	}
	logger.InfoCF("discord", "Connected to Discord", map[string]interface{}{
		"username": username,
	})
	return nil
}

// Stop closes the gateway session.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	s := t.session
	t.session = nil
	t.mu.Unlock()
	if s == nil {
		return nil
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	return nil
}

// Send delivers one outbound message. Buttons become one action row of
// message components.
func (t *Transport) Send(ctx context.Context, msg bus.OutboundMessage) error {
	t.mu.Lock()
	s := t.session
	t.mu.Unlock()
	if s == nil {
		return fmt.Errorf("discord transport not started")
	}

	send := &discordgo.MessageSend{Content: msg.Text}
	if msg.ReplyToID != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: msg.ReplyToID,
			ChannelID: msg.ChatID,
		}
	}
	if len(msg.Buttons) > 0 {
		row := discordgo.ActionsRow{}
		for _, b := range msg.Buttons {
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: b.Data,
			})
		}
		send.Components = []discordgo.MessageComponent{row}
	}

	if _, err := s.ChannelMessageSendComplex(msg.ChatID, send, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func (t *Transport) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || isSelf(s, m.Author.ID) {
		return
	}
	t.bus.PublishInbound(fromMessage(events.Message, m.Message))
}

func (t *Transport) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	// Embed unfurls arrive as authorless updates; skip them.
	if m.Author == nil || isSelf(s, m.Author.ID) {
		return
	}
	t.bus.PublishInbound(fromMessage(events.EditedMessage, m.Message))
}

func (t *Transport) onGuildMemberAdd(s *discordgo.Session, g *discordgo.GuildMemberAdd) {
	if g.User == nil {
		return
	}
	t.bus.PublishInbound(bus.InboundMessage{
		Channel:    "discord",
		Event:      events.MemberJoin,
		SenderID:   g.User.ID,
		SenderName: g.User.Username,
		ChatID:     g.GuildID,
		SessionKey: "discord:" + g.GuildID + ":" + g.User.ID,
	})
}

func (t *Transport) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}
	if user == nil || isSelf(s, user.ID) {
		return
	}

	messageID := ""
	if i.Message != nil {
		messageID = i.Message.ID
	}
	t.bus.PublishInbound(bus.InboundMessage{
		Channel:      "discord",
		Event:        events.CallbackQuery,
		SenderID:     user.ID,
		SenderName:   user.Username,
		ChatID:       i.ChannelID,
		MessageID:    messageID,
		CallbackData: i.MessageComponentData().CustomID,
		SessionKey:   "discord:" + i.ChannelID + ":" + user.ID,
	})

	// Acknowledge so Discord stops the interaction spinner; the actual
	// reply arrives later as a regular channel message.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		logger.WarnCF("discord", "Failed to acknowledge interaction", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func isSelf(s *discordgo.Session, userID string) bool {
	return s.State != nil && s.State.User != nil && userID == s.State.User.ID
}

func fromMessage(event string, m *discordgo.Message) bus.InboundMessage {
	senderID := ""
	senderName := ""
	if m.Author != nil {
		senderID = m.Author.ID
		senderName = m.Author.Username
	}
	return bus.InboundMessage{
		Channel:    "discord",
		Event:      event,
		SenderID:   senderID,
		SenderName: senderName,
		ChatID:     m.ChannelID,
		MessageID:  m.ID,
		Text:       m.Content,
		HasText:    m.Content != "",
		SessionKey: "discord:" + m.ChannelID + ":" + senderID,
	}
}
