package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/familycal/config"
	"github.com/tazhate/familycal/internal/domain"
	"github.com/tazhate/familycal/internal/log"
	"github.com/tazhate/familycal/internal/service"
)

// Series is the part of the series service the bot drives.
type Series interface {
	Timezone() *time.Location
	ResolveOccurrences(ctx context.Context, familyID string, from, to time.Time) ([]*domain.Occurrence, error)
	GetOccurrence(ctx context.Context, id domain.InstanceID) (*domain.Occurrence, error)
	ListSeries(ctx context.Context, familyID string) ([]*domain.Event, error)
	DeleteInstance(ctx context.Context, parentID string, date domain.Date) error
}

type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	series   Series
	calendar *service.CalendarService
}

func New(cfg *config.Config, series Series, calendar *service.CalendarService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Info("telegram authorized", "user", api.Self.UserName)

	bot := &Bot{
		api:      api,
		cfg:      cfg,
		series:   series,
		calendar: calendar,
	}

	// Set bot commands (menu button)
	bot.setCommands()

	return bot, nil
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "week", Description: "🗓 Расписание на неделю"},
		{Command: "series", Description: "🔁 Повторяющиеся события"},
		{Command: "skip", Description: "🚫 Отменить одно занятие"},
		{Command: "help", Description: "❓ Справка по командам"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		log.Error("set commands", err)
	}
}

// Start receives updates by long polling until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) editMessage(chatID int64, msgID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "HTML"
	edit.ReplyMarkup = keyboard
	if _, err := b.api.Send(edit); err != nil {
		log.Error("edit message", err, "chat", chatID)
	}
}
