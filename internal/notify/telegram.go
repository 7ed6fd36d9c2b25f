package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

// TelegramChannel mirrors notifications to a Telegram chat. It is
// display-only: the Events subscriptions are ignored and the shared
// notification state is never touched from here.
type TelegramChannel struct {
	bot    *tele.Bot
	chatID int64
	log    zerolog.Logger
}

func NewTelegram(token string, chatID int64, log zerolog.Logger) (*TelegramChannel, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramChannel{bot: b, chatID: chatID, log: log}, nil
}

func (c *TelegramChannel) Display(ctx context.Context, n Notification, _ Events) error {
	_, err := c.bot.Send(tele.ChatID(c.chatID), fmt.Sprintf("%s\n%s", n.Title, n.Body))
	if err == nil {
		c.log.Debug().Int64("chat_id", c.chatID).Msg("notification mirrored to telegram")
	}
	return err
}

func (c *TelegramChannel) Close() error { return nil }
