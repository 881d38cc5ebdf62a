package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.From == nil || !b.cfg.IsAllowedUser(msg.From.ID) {
		b.SendMessage(chatID, "⛔ Доступ запрещён")
		return
	}

	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	b.SendMessage(chatID, "Я понимаю только команды. /help — список команд")
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID

	if !b.cfg.IsAllowedUser(callback.From.ID) {
		b.api.Request(tgbotapi.NewCallback(callback.ID, "⛔ Доступ запрещён"))
		return
	}

	action, arg, _ := strings.Cut(callback.Data, ":")

	switch action {
	case "week":
		// week:offset
		offset, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		text, kb := b.weekView(ctx, offset)
		b.editMessage(chatID, msgID, text, &kb)
		b.api.Request(tgbotapi.NewCallback(callback.ID, ""))

	case "skip":
		// skip:instanceID: ask for confirmation
		occ, err := b.occurrence(ctx, arg)
		if err != nil {
			b.api.Request(tgbotapi.NewCallback(callback.ID, userMessage(err)))
			return
		}
		kb := confirmSkipKeyboard(arg)
		b.editMessage(chatID, msgID, "Отменить <b>"+escape(occ.Title)+"</b> "+occ.FormatDate()+" "+occ.FormatTime()+"?", &kb)
		b.api.Request(tgbotapi.NewCallback(callback.ID, ""))

	case "confirm_skip":
		// confirm_skip:instanceID
		text, err := b.skip(ctx, arg)
		if err != nil {
			b.api.Request(tgbotapi.NewCallback(callback.ID, userMessage(err)))
			return
		}
		b.api.Request(tgbotapi.NewCallback(callback.ID, "Отменено"))
		b.editMessage(chatID, msgID, text, nil)
	}
}
