package notification

import (
	"context"
	"fmt"

	"github.com/opbridge/opbridge/internal/config"
	"github.com/opbridge/opbridge/internal/telegram"
)

// TelegramNotifier mirrors alerts into the operator chat, on top of the
// request traffic the channel adapter already carries.
type TelegramNotifier struct {
	env *config.TelegramEnv
	bot *telegram.Bot
}

func NewTelegramNotifier(env *config.TelegramEnv, bot *telegram.Bot) *TelegramNotifier {
	return &TelegramNotifier{
		env: env,
		bot: bot,
	}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Configured() bool { return n.env.Configured() }

func (n *TelegramNotifier) Send(ctx context.Context, msg *Message) error {
	text := fmt.Sprintf("🔔 <b>%s</b>\n\n%s", msg.Title, msg.Body)
	_, err := n.bot.SendMessage(ctx, n.env.ChatID, text, nil)
	return err
}
