package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/codemate/internal/agent"
	"github.com/rahul/codemate/internal/observability"
	"go.uber.org/zap"
)

const discordMessageLimit = 2000

// DiscordGateway answers direct messages and mentions in guild channels.
type DiscordGateway struct {
	Session *discordgo.Session
	Brain   agent.Brain
	Logger  *observability.Logger
}

func NewDiscordGateway(token string, brain agent.Brain, logger *observability.Logger) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	if logger == nil {
		logger = observability.NewNop()
	}
	return &DiscordGateway{Session: session, Brain: brain, Logger: logger}, nil
}

func (d *DiscordGateway) Name() string { return "discord" }

func (d *DiscordGateway) Start(ctx context.Context) error {
	d.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		botID := ""
		if s.State != nil && s.State.User != nil {
			botID = s.State.User.ID
		}
		text, ok := incomingText(m.Message, botID)
		if !ok {
			return
		}
		d.Logger.Info("discord message", zap.String("chat_id", m.ChannelID), zap.String("user", m.Author.Username))

		reply := Respond(ctx, d.Brain, d.Logger, m.ChannelID, text)
		if reply == "" {
			return
		}
		if err := d.Send(m.ChannelID, reply); err != nil {
			d.Logger.Warn("discord send failed", zap.String("chat_id", m.ChannelID), zap.Error(err))
		}
	})

	if err := d.Session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.Logger.Info("discord connected")

	<-ctx.Done()
	return d.Session.Close()
}

// incomingText returns the message text addressed to the bot, without the
// mention. Bot messages and guild messages that do not mention it are ignored.
func incomingText(m *discordgo.Message, botID string) (string, bool) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return "", false
	}
	text := m.Content
	if m.GuildID != "" {
		if !mentions(m.Mentions, botID) {
			return "", false
		}
		text = strings.NewReplacer("<@"+botID+">", "", "<@!"+botID+">", "").Replace(text)
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func mentions(users []*discordgo.User, id string) bool {
	for _, u := range users {
		if u != nil && u.ID == id {
			return true
		}
	}
	return false
}

// Send posts text to a channel ID.
func (d *DiscordGateway) Send(chatID string, text string) error {
	for _, chunk := range SplitMessage(text, discordMessageLimit) {
		if _, err := d.Session.ChannelMessageSend(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiscordGateway) Stop() error {
	return d.Session.Close()
}
