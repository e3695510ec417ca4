package telegram_bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/models"
	"github.com/dnodevkis/tg-news-bot/internal/review"
)

// Decisions are the review transitions the operator can trigger.
type Decisions interface {
	Approve(ctx context.Context, groupID string) (*review.Session, error)
	Cancel(ctx context.Context, groupID string) (*review.Session, error)
	Regenerate(ctx context.Context, groupID string) (*review.Session, error)
	RegenerateImage(ctx context.Context, groupID string) (*review.Session, error)
	RequestSchedule(groupID string) (*review.Session, error)
	PickTime(groupID string, index int) (*review.Session, error)
	ConfirmSchedule(ctx context.Context, groupID string) (*review.Session, error)
	CancelSchedule(groupID string) (*review.Session, error)
	Store() *review.Store
}

// Checker triggers an immediate news check.
type Checker interface {
	CheckNow() bool
}

// StatsSource provides report counters.
type StatsSource interface {
	Stats(ctx context.Context) (*models.ReportStats, error)
}

// UpcomingSource lists scheduled posts that are not yet published.
type UpcomingSource interface {
	ListUpcoming(ctx context.Context) ([]models.ScheduledPost, error)
}

// Bot is the operator's decision channel.
type Bot struct {
	client    *Client
	decisions Decisions
	checker   Checker
	stats     StatsSource
	upcoming  UpcomingSource
	logger    *zap.Logger

	wg sync.WaitGroup
}

// NewBot creates a new Telegram bot instance
func NewBot(client *Client, decisions Decisions, checker Checker, stats StatsSource, upcoming UpcomingSource, logger *zap.Logger) *Bot {
	return &Bot{
		client:    client,
		decisions: decisions,
		checker:   checker,
		stats:     stats,
		upcoming:  upcoming,
		logger:    logger,
	}
}

// Start begins listening for updates from Telegram. Each update is handled
// in its own goroutine; a long regeneration never blocks other decisions.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.client.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.client.api.StopReceivingUpdates()
			b.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) isAdmin(user *tgbotapi.User) bool {
	return user != nil && user.ID == b.client.adminID
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}
	if !b.isAdmin(message.From) {
		b.logger.Warn("Command from non-admin user", zap.Int64("chat_id", message.Chat.ID), zap.String("command", message.Command()))
		b.client.sendMessage(message.Chat.ID, "⛔ У вас нет доступа к этому боту.")
		return
	}

	switch message.Command() {
	case "start":
		b.client.sendMessage(message.Chat.ID,
			"👋 Привет! Я собираю заметки репортёров, готовлю из них новости и присылаю вам на проверку.\n\n"+
				"Используйте /help для получения дополнительной информации.")
	case "help":
		b.client.sendMessage(message.Chat.ID, helpText)
	case "checknews":
		if b.checker.CheckNow() {
			b.client.sendMessage(message.Chat.ID, "🔍 Проверяю новые заметки...")
		} else {
			b.client.sendMessage(message.Chat.ID, "⏳ Проверка уже запланирована.")
		}
	case "status":
		b.handleStatus(ctx, message.Chat.ID)
	case "scheduled":
		posts, err := b.upcoming.ListUpcoming(ctx)
		if err != nil {
			b.logger.Error("Failed to list scheduled posts", zap.Error(err))
			b.client.sendMessage(message.Chat.ID, "❌ Не удалось получить запланированные посты.")
			return
		}
		b.client.sendMessage(message.Chat.ID, scheduledText(posts, b.client.loc))
	case "sessions":
		b.client.sendMessage(message.Chat.ID, sessionsText(b.decisions.Store().List()))
	default:
		b.client.sendMessage(message.Chat.ID, "Неизвестная команда. Используйте /help для помощи.")
	}
}

const helpText = "📚 Помощь:\n\n" +
	"/start - Приветственное сообщение\n" +
	"/help - Эта справка\n" +
	"/checknews - Проверить новые заметки сейчас\n" +
	"/status - Статистика по заметкам\n" +
	"/scheduled - Запланированные посты\n" +
	"/sessions - Новости на проверке\n\n" +
	"Под каждым черновиком есть кнопки:\n" +
	"✅ Опубликовать - отправить в канал сейчас\n" +
	"❌ Отменить - отклонить новость\n" +
	"🔄 Ещё раз - сгенерировать текст заново\n" +
	"🖼 Другая картинка - заменить иллюстрацию\n" +
	"📅 Запланировать - выбрать время публикации"

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	stats, err := b.stats.Stats(ctx)
	if err != nil {
		b.logger.Error("Failed to get report stats", zap.Error(err))
		b.client.sendMessage(chatID, "❌ Не удалось получить статистику.")
		return
	}
	scheduled := 0
	if posts, err := b.upcoming.ListUpcoming(ctx); err == nil {
		scheduled = len(posts)
	}
	b.client.sendMessage(chatID, statusText(stats, b.decisions.Store().Len(), scheduled, b.client.loc))
}

// handleCallbackQuery processes callback queries from inline buttons
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	b.logger.Info("Received callback query",
		zap.String("data", query.Data),
		zap.Int64("user_id", query.From.ID),
	)

	if !b.isAdmin(query.From) {
		b.answer(query, "⛔ Нет доступа")
		return
	}

	action, groupID, ok := strings.Cut(query.Data, ":")
	if !ok || groupID == "" {
		b.logger.Error("Failed to parse callback data: invalid format", zap.String("data", query.Data))
		b.answer(query, "❌ Ошибка обработки запроса")
		return
	}

	var chatID int64
	var messageID int
	if query.Message != nil {
		chatID = query.Message.Chat.ID
		messageID = query.Message.MessageID
	}

	switch action {
	case actionApprove:
		b.answer(query, "")
		sess, err := b.decisions.Approve(ctx, groupID)
		if err != nil && (sess == nil || sess.State != review.StatePublished) {
			b.reportDecisionError(chatID, groupID, "публикации", err)
			return
		}
		if err != nil {
			b.logger.Error("Published but reports not flagged", zap.String("group_id", groupID), zap.Error(err))
			b.client.clearKeyboard(chatID, messageID)
			b.client.sendMessage(chatID, fmt.Sprintf("✅ Новость группы %s опубликована, но не удалось отметить заметки: %s", groupID, describe(err)))
			return
		}
		b.client.clearKeyboard(chatID, messageID)
		b.client.sendMessage(chatID, fmt.Sprintf("✅ Новость группы %s опубликована.", groupID))

	case actionCancel:
		b.answer(query, "")
		if _, err := b.decisions.Cancel(ctx, groupID); err != nil {
			b.reportDecisionError(chatID, groupID, "отмены", err)
			return
		}
		b.client.clearKeyboard(chatID, messageID)
		b.client.sendMessage(chatID, fmt.Sprintf("❌ Новость группы %s отклонена.", groupID))

	case actionAgain:
		b.answer(query, "🔄 Генерирую заново...")
		progress := b.client.Progress(ctx, groupID, 1)
		sess, err := b.decisions.Regenerate(ctx, groupID)
		if err != nil {
			b.client.replace(progress, fmt.Sprintf("❌ Не удалось перегенерировать новость группы %s: %s\nПредыдущий вариант сохранён.", groupID, describe(err)))
			return
		}
		b.client.clearKeyboard(chatID, messageID)
		b.client.SendDraft(ctx, progress, sess)

	case actionImage:
		b.answer(query, "🖼 Генерирую картинку...")
		sess, err := b.decisions.RegenerateImage(ctx, groupID)
		if err != nil {
			if errors.Is(err, review.ErrNoImage) {
				b.client.sendMessage(chatID, fmt.Sprintf("❌ Не удалось сгенерировать новую картинку для группы %s. Предыдущая сохранена.", groupID))
				return
			}
			b.reportDecisionError(chatID, groupID, "генерации картинки", err)
			return
		}
		b.client.clearKeyboard(chatID, messageID)
		b.client.SendDraft(ctx, 0, sess)

	case actionSchedule:
		b.answer(query, "")
		sess, err := b.decisions.RequestSchedule(groupID)
		if err != nil {
			b.reportDecisionError(chatID, groupID, "планирования", err)
			return
		}
		b.client.clearKeyboard(chatID, messageID)
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("📅 Когда опубликовать новость группы %s?", groupID))
		msg.ReplyMarkup = slotsKeyboard(groupID, sess.Slots, b.client.loc)
		if _, err := b.client.api.Send(msg); err != nil {
			b.logger.Error("Failed to send schedule slots", zap.String("group_id", groupID), zap.Error(err))
		}

	case actionSlot:
		b.answer(query, "")
		idx := strings.LastIndex(groupID, ":")
		if idx < 0 {
			b.client.sendMessage(chatID, "❌ Ошибка обработки запроса")
			return
		}
		index, err := strconv.Atoi(groupID[idx+1:])
		groupID = groupID[:idx]
		if err != nil {
			b.client.sendMessage(chatID, "❌ Ошибка обработки запроса")
			return
		}
		sess, err := b.decisions.PickTime(groupID, index)
		if err != nil {
			b.reportDecisionError(chatID, groupID, "выбора времени", err)
			return
		}
		keyboard := confirmKeyboard(groupID)
		b.client.editText(chatID, messageID,
			fmt.Sprintf("📅 Опубликовать новость группы %s %s?", groupID, sess.ScheduledFor.In(b.client.loc).Format(timeLayout)),
			&keyboard)

	case actionConfirm:
		b.answer(query, "")
		sess, err := b.decisions.ConfirmSchedule(ctx, groupID)
		if err != nil && (sess == nil || sess.State != review.StateScheduled) {
			b.reportDecisionError(chatID, groupID, "планирования", err)
			return
		}
		if err != nil {
			b.logger.Error("Scheduled but reports not flagged", zap.String("group_id", groupID), zap.Error(err))
			b.client.editText(chatID, messageID,
				fmt.Sprintf("📅 Новость группы %s запланирована на %s, но не удалось отметить заметки: %s",
					groupID, sess.ScheduledFor.In(b.client.loc).Format(timeLayout), describe(err)),
				nil)
			return
		}
		b.client.editText(chatID, messageID,
			fmt.Sprintf("📅 Новость группы %s запланирована на %s.", groupID, sess.ScheduledFor.In(b.client.loc).Format(timeLayout)),
			nil)

	case actionUnschedule:
		b.answer(query, "")
		if _, err := b.decisions.CancelSchedule(groupID); err != nil {
			b.reportDecisionError(chatID, groupID, "отмены планирования", err)
			return
		}
		b.client.editText(chatID, messageID, fmt.Sprintf("↩️ Планирование новости группы %s отменено.", groupID), nil)

	default:
		b.logger.Error("Unknown action", zap.String("action", action))
		b.answer(query, "❌ Неизвестное действие")
	}
}

func (b *Bot) reportDecisionError(chatID int64, groupID, what string, err error) {
	if errors.Is(err, review.ErrStaleSession) {
		b.logger.Info("Stale decision", zap.String("group_id", groupID), zap.Error(err))
		b.client.sendMessage(chatID, fmt.Sprintf("⚠️ Сессия группы %s устарела или уже обрабатывается.", groupID))
		return
	}
	b.logger.Error("Decision failed", zap.String("group_id", groupID), zap.String("stage", what), zap.Error(err))
	b.client.sendMessage(chatID, fmt.Sprintf("❌ Ошибка %s новости группы %s: %s", what, groupID, describe(err)))
}

// answer acknowledges the callback query
func (b *Bot) answer(query *tgbotapi.CallbackQuery, text string) {
	callback := tgbotapi.NewCallback(query.ID, text)
	if _, err := b.client.api.Request(callback); err != nil {
		b.logger.Error("Failed to send callback response", zap.Error(err))
	}
}
