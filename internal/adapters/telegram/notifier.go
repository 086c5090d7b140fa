package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"adaptiveRiskBot/internal/ports"
)

// Notifier implements ports.Notifier over the Telegram bot API. Sends are
// fire-and-forget: delivery failures are logged and never reach the
// decision path.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger ports.Logger
}

// Config holds configuration for the Telegram notifier.
type Config struct {
	Token  string
	ChatID int64
	Logger ports.Logger
}

// New creates a Telegram notifier and verifies the bot token.
func New(cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram token and chat ID are required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	cfg.Logger.Info(context.Background(), "Telegram bot authorized", map[string]interface{}{"username": bot.Self.UserName})

	return &Notifier{bot: bot, chatID: cfg.ChatID, logger: cfg.Logger}, nil
}

var kindHeadings = map[ports.AlertKind]string{
	ports.AlertDrawdownLimit:    "🛑 Daily drawdown limit reached",
	ports.AlertSubmissionFailed: "⚠️ Order submission failed",
	ports.AlertRegimeChange:     "📊 Market regime changed",
	ports.AlertRiskRecalibrated: "🎚 Risk ceiling recalibrated",
}

// Notify sends an alert in the background.
func (n *Notifier) Notify(ctx context.Context, kind ports.AlertKind, message string) {
	heading, ok := kindHeadings[kind]
	if !ok {
		heading = string(kind)
	}
	text := fmt.Sprintf("<b>%s</b>\n\n%s", heading, message)

	go func() {
		msg := tgbotapi.NewMessage(n.chatID, text)
		msg.ParseMode = "HTML"
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error(ctx, err, "Failed to send Telegram alert", map[string]interface{}{"kind": string(kind)})
		}
	}()
}

// NopNotifier discards alerts. Used when no Telegram credentials are
// configured.
type NopNotifier struct{}

// Notify implements ports.Notifier.
func (NopNotifier) Notify(ctx context.Context, kind ports.AlertKind, message string) {}
