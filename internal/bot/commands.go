package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/familycal/internal/domain"
	"github.com/tazhate/familycal/internal/log"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	switch cmd {
	case "start", "help":
		b.cmdHelp(chatID)
	case "week":
		b.cmdWeek(ctx, chatID, args)
	case "series":
		b.cmdSeries(ctx, chatID)
	case "skip":
		b.cmdSkip(ctx, chatID, args)
	default:
		b.SendMessage(chatID, "Неизвестная команда. /help для списка команд")
	}
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Команды:</b>

<b>Расписание</b>
/week — расписание на эту неделю
/week +1 — на следующую (−1 — на прошлую)
/series — повторяющиеся события

<b>Изменения</b>
/skip ID — отменить одно занятие серии

<b>Другое</b>
/help — эта справка`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdWeek(ctx context.Context, chatID int64, args string) {
	offset, err := parseWeekOffset(args)
	if err != nil {
		b.SendMessage(chatID, "Укажи смещение недели: /week +1")
		return
	}

	text, kb := b.weekView(ctx, offset)
	b.SendMessageWithKeyboard(chatID, text, kb)
}

func (b *Bot) weekView(ctx context.Context, offset int) (string, tgbotapi.InlineKeyboardMarkup) {
	loc := b.series.Timezone()
	monday := domain.WeekStart(domain.DateOf(time.Now().In(loc))).AddDays(7 * offset)

	occs, err := b.series.ResolveOccurrences(ctx, b.cfg.TelegramFamilyID, monday.In(loc), monday.AddDays(6).In(loc))
	if err != nil {
		log.Error("resolve week", err, "family", b.cfg.TelegramFamilyID)
		return "❌ " + userMessage(err), weekKeyboard(offset, nil)
	}
	return formatWeek(occs, monday), weekKeyboard(offset, occs)
}

func (b *Bot) cmdSeries(ctx context.Context, chatID int64) {
	parents, err := b.series.ListSeries(ctx, b.cfg.TelegramFamilyID)
	if err != nil {
		b.SendMessage(chatID, "❌ "+userMessage(err))
		return
	}
	b.SendMessage(chatID, "<b>🔁 Повторяющиеся события:</b>\n\n"+formatSeriesList(parents))
}

func (b *Bot) cmdSkip(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.SendMessage(chatID, "Укажи ID занятия: /skip ID\n\nID есть в /week")
		return
	}

	text, err := b.skip(ctx, args)
	if err != nil {
		b.SendMessage(chatID, "❌ "+userMessage(err))
		return
	}
	b.SendMessage(chatID, text)
}

// skip deletes one occurrence of a series and mirrors the series to CalDAV.
func (b *Bot) skip(ctx context.Context, rawID string) (string, error) {
	occ, err := b.occurrence(ctx, rawID)
	if err != nil {
		return "", err
	}
	if !occ.ID.HasDate() {
		return "", domain.Validation("bot.skip", "это разовое событие, а не занятие серии")
	}

	if err := b.series.DeleteInstance(ctx, occ.ID.ParentID, occ.ID.Date); err != nil {
		return "", err
	}

	if b.calendar != nil && b.calendar.IsConfigured() {
		if err := b.calendar.PublishSeries(ctx, occ.ID.ParentID); err != nil {
			log.Error("publish series", err, "series", occ.ID.ParentID)
		}
	}

	return fmt.Sprintf("🚫 Отменено: <b>%s</b> %s %s", escape(occ.Title), occ.FormatDate(), occ.FormatTime()), nil
}

func (b *Bot) occurrence(ctx context.Context, rawID string) (*domain.Occurrence, error) {
	id, ok := domain.ParseInstanceID(strings.TrimSpace(rawID))
	if !ok {
		return nil, domain.Validation("bot.occurrence", "неверный ID")
	}
	return b.series.GetOccurrence(ctx, id)
}

// parseWeekOffset reads "", "+1", "-2" or "next"/"prev".
func parseWeekOffset(args string) (int, error) {
	switch strings.ToLower(args) {
	case "":
		return 0, nil
	case "next", "след":
		return 1, nil
	case "prev", "пред":
		return -1, nil
	}
	return strconv.Atoi(strings.TrimPrefix(args, "+"))
}

// userMessage returns text safe to show in the chat.
func userMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return "Не найдено"
	case domain.KindValidation, domain.KindConflict:
		var de *domain.Error
		if errors.As(err, &de) && de.Msg != "" {
			return de.Msg
		}
	}
	return "Ошибка, попробуй позже"
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
