package telegram_bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dnodevkis/tg-news-bot/internal/models"
	"github.com/dnodevkis/tg-news-bot/internal/review"
)

const timeLayout = "02.01.2006 15:04"

// Callback actions. Data is "<action>:<group id>", slots add ":<index>".
const (
	actionApprove    = "approve"
	actionCancel     = "cancel"
	actionAgain      = "again"
	actionImage      = "image"
	actionSchedule   = "schedule"
	actionSlot       = "slot"
	actionConfirm    = "confirm"
	actionUnschedule = "unschedule"
)

func reviewKeyboard(groupID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Опубликовать", actionApprove+":"+groupID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", actionCancel+":"+groupID),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Ещё раз", actionAgain+":"+groupID),
			tgbotapi.NewInlineKeyboardButtonData("🖼 Другая картинка", actionImage+":"+groupID),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Запланировать", actionSchedule+":"+groupID),
		),
	)
}

func slotsKeyboard(groupID string, slots []time.Time, loc *time.Location) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(slots)+1)
	for i, s := range slots {
		data := fmt.Sprintf("%s:%s:%d", actionSlot, groupID, i)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🕒 "+s.In(loc).Format(timeLayout), data),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("↩️ Отмена", actionUnschedule+":"+groupID),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmKeyboard(groupID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", actionConfirm+":"+groupID),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Отмена", actionUnschedule+":"+groupID),
		),
	)
}

func progressText(queued int) string {
	return fmt.Sprintf("⏳ Генерирую контент, в очереди %d постов...", queued)
}

func draftText(sess *review.Session) string {
	return sess.Post().Text() + "\n\n🆔 " + sess.GroupID
}

func rejectedText(groupID, reason string) string {
	if strings.TrimSpace(reason) == "" {
		reason = "Нет объяснения"
	}
	return fmt.Sprintf("Новости группы %s отклонены редактором.\nПричина: %s", groupID, reason)
}

func failedText(groupID string, err error) string {
	return fmt.Sprintf("❌ Не удалось подготовить новости группы %s: %s", groupID, describe(err))
}

func statusText(stats *models.ReportStats, sessions, scheduled int, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("📊 Статус\n\n")
	fmt.Fprintf(&b, "Всего заметок: %d\n", stats.Total)
	fmt.Fprintf(&b, "Опубликовано: %d\n", stats.Published)
	fmt.Fprintf(&b, "Отклонено или на проверке: %d\n", stats.Rejected)
	fmt.Fprintf(&b, "Ожидают обработки: %d\n", stats.Pending)
	if stats.LastPublished != nil {
		fmt.Fprintf(&b, "Последняя опубликованная: %s\n", stats.LastPublished.In(loc).Format(timeLayout))
	}
	fmt.Fprintf(&b, "\nАктивных сессий: %d\n", sessions)
	fmt.Fprintf(&b, "Запланировано постов: %d", scheduled)
	return b.String()
}

func scheduledText(posts []models.ScheduledPost, loc *time.Location) string {
	if len(posts) == 0 {
		return "📭 Нет запланированных постов."
	}
	var b strings.Builder
	b.WriteString("📅 Запланированные посты:\n\n")
	for _, p := range posts {
		fmt.Fprintf(&b, "%s - %s (ID: %s)\n", p.ScheduledTime.In(loc).Format(timeLayout), p.Title, p.GroupID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sessionsText(sessions []*review.Session) string {
	if len(sessions) == 0 {
		return "📭 Нет активных сессий."
	}
	var b strings.Builder
	b.WriteString("📝 Активные сессии:\n\n")
	for _, s := range sessions {
		title := s.Post().Title
		if title == "" {
			title = "—"
		}
		fmt.Fprintf(&b, "%s: %s (%s)\n", s.GroupID, title, s.State)
	}
	return strings.TrimRight(b.String(), "\n")
}

// splitText cuts text into chunks of at most limit runes, preferring line breaks.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
