// Package bot delivers reminders through a Telegram chat.
package bot

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/logger"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	chatID   int64
	timezone *time.Location
	log      *logger.Logger
}

// New authorizes against the Bot API. An empty endpoint selects Telegram's.
func New(token, endpoint string, chatID int64, tz *time.Location, log *logger.Logger) (*Bot, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if tz == nil {
		tz = time.UTC
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log = log.WithComponent("telegram")
	log.Infow("Authorized", "username", api.Self.UserName)

	return &Bot{
		api:      api,
		chatID:   chatID,
		timezone: tz,
		log:      log,
	}, nil
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

// Notify sends one due reminder to the configured chat.
func (b *Bot) Notify(_ context.Context, due domain.DueReminder) error {
	if err := b.SendMessage(b.chatID, FormatReminder(due, b.timezone)); err != nil {
		return fmt.Errorf("send reminder %d: %w", due.Reminder.ID, err)
	}
	b.log.Debugw("Reminder sent", "reminder_id", due.Reminder.ID, "chat_id", b.chatID)
	return nil
}

// FormatReminder renders a reminder as a Telegram HTML message.
func FormatReminder(due domain.DueReminder, loc *time.Location) string {
	ev := due.Event

	var sb strings.Builder
	sb.WriteString("⏰ <b>")
	sb.WriteString(html.EscapeString(ev.Title))
	sb.WriteString("</b>\n")

	sb.WriteString("📅 " + ev.FormatDateTime(loc))
	if m := due.Reminder.MinutesBefore; m > 0 && !ev.AllDay {
		sb.WriteString(fmt.Sprintf(" (in %s)", formatLead(m)))
	}
	if ev.Location != "" {
		sb.WriteString("\n📍 " + html.EscapeString(ev.Location))
	}
	return sb.String()
}

func formatLead(minutes int) string {
	switch {
	case minutes%(24*60) == 0:
		return fmt.Sprintf("%d d", minutes/(24*60))
	case minutes%60 == 0:
		return fmt.Sprintf("%d h", minutes/60)
	}
	return fmt.Sprintf("%d min", minutes)
}
