package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// sendTimeout — сколько ждём Telegram на одно сообщение.
const sendTimeout = 10 * time.Second

// sender — часть telego.Bot, нужная для отправки.
type sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramAlerter рассылает оповещения в чаты администраторов.
// Ошибки отправки только логируются: оповещение не должно ломать запрос.
type TelegramAlerter struct {
	bot     sender
	chatIDs []int64
}

// NewTelegramAlerter создаёт бота по токену.
func NewTelegramAlerter(token string, chatIDs []int64) (*TelegramAlerter, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &TelegramAlerter{bot: bot, chatIDs: chatIDs}, nil
}

// Alert отправляет text во все чаты администраторов.
func (a *TelegramAlerter) Alert(ctx context.Context, text string) {
	for _, chatID := range a.chatIDs {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		_, err := a.bot.SendMessage(sendCtx, tu.Message(tu.ID(chatID), text))
		cancel()
		if err != nil {
			log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки оповещения")
		}
	}
}

// NopAlerter ничего не отправляет. Используется без TELEGRAM_BOT_TOKEN.
type NopAlerter struct{}

func (NopAlerter) Alert(_ context.Context, text string) {
	log.WithField("text", text).Debug("Оповещение пропущено: Telegram не настроен")
}
