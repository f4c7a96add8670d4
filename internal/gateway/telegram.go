package gateway

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/codemate/internal/agent"
	"github.com/rahul/codemate/internal/observability"
	"go.uber.org/zap"
)

const telegramMessageLimit = 4096

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Brain  agent.Brain
	Logger *observability.Logger
}

func NewTelegramGateway(token string, brain agent.Brain, logger *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login failed: %w", err)
	}
	if logger == nil {
		logger = observability.NewNop()
	}

	logger.Info("telegram authorized", zap.String("account", bot.Self.UserName))

	return &TelegramGateway{
		Bot:    bot,
		Brain:  brain,
		Logger: logger,
	}, nil
}

func (tg *TelegramGateway) Name() string { return "telegram" }

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			tg.handle(ctx, update.Message)
		}
	}
}

func (tg *TelegramGateway) handle(ctx context.Context, m *tgbotapi.Message) {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	user := ""
	if m.From != nil {
		user = m.From.UserName
	}
	tg.Logger.Info("telegram message", zap.String("chat_id", chatID), zap.String("user", user))

	reply := Respond(ctx, tg.Brain, tg.Logger, chatID, m.Text)
	if reply == "" {
		return
	}
	if err := tg.Send(chatID, reply); err != nil {
		tg.Logger.Warn("telegram send failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// Send posts text as plain messages; reports contain code, so no parse mode.
func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, chunk := range SplitMessage(text, telegramMessageLimit) {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(id, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
