package services

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ypgattendance/internal/models"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts lockout alerts to an admin chat.
type TelegramNotifier struct {
	bot    telegramSender
	chatID int64
	log    *zap.Logger
}

// NewTelegramNotifier connects to the Bot API. It returns (nil, nil) when the bot is not
// configured so callers can pass the result straight to WithLockoutNotifier.
func NewTelegramNotifier(botToken string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	if botToken == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return newTelegramNotifier(bot, chatID, logger), nil
}

func newTelegramNotifier(bot telegramSender, chatID int64, logger *zap.Logger) *TelegramNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, log: logger}
}

func lockoutMessage(rec *models.AttemptRecord, remainingMinutes int) string {
	return fmt.Sprintf(
		"<b>Lockout</b>\nidentifier: <code>%s</code>\nkind: %s\nfailures: %d\nlocked for: %d min",
		html.EscapeString(rec.Identifier), rec.Kind, rec.FailureCount, remainingMinutes,
	)
}

func (n *TelegramNotifier) NotifyLockout(_ context.Context, rec *models.AttemptRecord, remainingMinutes int) error {
	if n == nil || n.bot == nil || n.chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(n.chatID, lockoutMessage(rec, remainingMinutes))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	n.log.Debug("lockout alert sent", zap.Int64("chat_id", n.chatID), zap.String("identifier", rec.Identifier))
	return nil
}
