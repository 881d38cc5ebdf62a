package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/familycal/internal/domain"
)

// Week navigation with one skip button per series occurrence
func weekKeyboard(offset int, occs []*domain.Occurrence) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	for _, occ := range occs {
		if !occ.ID.HasDate() {
			continue
		}
		label := fmt.Sprintf("🚫 %s %s %s", domain.WeekdayNameShort(occ.Start.Weekday()), occ.Start.Format("15:04"), truncate(occ.Title, 20))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "skip:"+occ.ID.String()),
		))
		if len(rows) >= 10 {
			break
		}
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("week:%d", offset-1)),
		tgbotapi.NewInlineKeyboardButtonData("🔄", fmt.Sprintf("week:%d", offset)),
		tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("week:%d", offset+1)),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Confirm skip keyboard
func confirmSkipKeyboard(instanceID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Да, отменить", "confirm_skip:"+instanceID),
			tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", "week:0"),
		),
	)
}
