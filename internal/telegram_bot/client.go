package telegram_bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/failure"
	"github.com/dnodevkis/tg-news-bot/internal/models"
	"github.com/dnodevkis/tg-news-bot/internal/review"
)

// Telegram message limits.
const (
	maxTextLength    = 4096
	maxCaptionLength = 1024
)

// NewAPI authorizes against the Bot API. An empty endpoint uses the public one.
func NewAPI(token, endpoint string, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}
	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))
	return api, nil
}

// Client sends everything the service says: operator messages, review
// drafts and channel posts.
type Client struct {
	api     *tgbotapi.BotAPI
	adminID int64
	channel string
	loc     *time.Location
	logger  *zap.Logger
}

// NewClient creates a Client. channel is either "@username" or a numeric chat id.
func NewClient(api *tgbotapi.BotAPI, adminID int64, channel string, loc *time.Location, logger *zap.Logger) *Client {
	if loc == nil {
		loc = time.Local
	}
	return &Client{api: api, adminID: adminID, channel: channel, loc: loc, logger: logger}
}

// Publish sends the post to the broadcast channel. A post whose photo cannot
// be sent goes out as text.
func (c *Client) Publish(ctx context.Context, post models.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := post.Text()
	if post.ImageURL != "" {
		err := c.sendPhoto(c.channelPhoto(post.ImageURL), text, nil, func(s string) tgbotapi.Chattable {
			return c.channelMessage(s)
		})
		if err == nil {
			c.logger.Info("Post published to channel", zap.String("group_id", post.GroupID), zap.Bool("with_image", true))
			return nil
		}
		c.logger.Warn("Failed to publish photo, sending text only", zap.String("group_id", post.GroupID), zap.Error(err))
	}

	for _, chunk := range splitText(text, maxTextLength) {
		if _, err := c.api.Send(c.channelMessage(chunk)); err != nil {
			return fmt.Errorf("send to channel %s: %w", c.channel, err)
		}
	}
	c.logger.Info("Post published to channel", zap.String("group_id", post.GroupID), zap.Bool("with_image", false))
	return nil
}

// Notify sends a plain text message to the operator.
func (c *Client) Notify(_ context.Context, text string) {
	c.sendMessage(c.adminID, text)
}

// Progress announces that a group is being generated.
func (c *Client) Progress(_ context.Context, groupID string, queued int) int {
	msg := tgbotapi.NewMessage(c.adminID, progressText(queued))
	sent, err := c.api.Send(msg)
	if err != nil {
		c.logger.Error("Failed to send progress message", zap.String("group_id", groupID), zap.Error(err))
		return 0
	}
	return sent.MessageID
}

// Draft replaces the progress message with the draft and its review keyboard.
func (c *Client) Draft(ctx context.Context, handle int, sess *review.Session) {
	c.SendDraft(ctx, handle, sess)
}

// Rejected replaces the progress message with the editor's denial.
func (c *Client) Rejected(_ context.Context, handle int, sess *review.Session) {
	c.replace(handle, rejectedText(sess.GroupID, sess.Reason()))
}

// Failed replaces the progress message with the failure.
func (c *Client) Failed(_ context.Context, handle int, groupID string, err error) {
	c.replace(handle, failedText(groupID, err))
}

// SendDraft shows the session's draft to the operator. A non-zero handle is
// a message to replace.
func (c *Client) SendDraft(_ context.Context, handle int, sess *review.Session) {
	text := draftText(sess)
	keyboard := reviewKeyboard(sess.GroupID)

	if sess.ImageURL == "" {
		if handle != 0 && len([]rune(text)) <= maxTextLength {
			edit := tgbotapi.NewEditMessageTextAndMarkup(c.adminID, handle, text, keyboard)
			if _, err := c.api.Request(edit); err == nil {
				return
			}
		}
		c.deleteMessage(c.adminID, handle)
		msg := tgbotapi.NewMessage(c.adminID, truncate(text, maxTextLength))
		msg.ReplyMarkup = keyboard
		if _, err := c.api.Send(msg); err != nil {
			c.logger.Error("Failed to send draft", zap.String("group_id", sess.GroupID), zap.Error(err))
		}
		return
	}

	c.deleteMessage(c.adminID, handle)
	photo := tgbotapi.NewPhoto(c.adminID, tgbotapi.FileURL(sess.ImageURL))
	err := c.sendPhoto(photo, text, &keyboard, func(s string) tgbotapi.Chattable {
		return tgbotapi.NewMessage(c.adminID, s)
	})
	if err == nil {
		return
	}

	c.logger.Warn("Failed to send draft photo, sending text", zap.String("group_id", sess.GroupID), zap.Error(err))
	msg := tgbotapi.NewMessage(c.adminID, truncate(text+"\n\n🖼 "+sess.ImageURL, maxTextLength))
	msg.ReplyMarkup = keyboard
	if _, err := c.api.Send(msg); err != nil {
		c.logger.Error("Failed to send draft", zap.String("group_id", sess.GroupID), zap.Error(err))
	}
}

// sendPhoto sends the photo with text as caption, or the photo followed by
// the text when the text is too long for a caption. The keyboard goes on the
// last message.
func (c *Client) sendPhoto(photo tgbotapi.PhotoConfig, text string, keyboard *tgbotapi.InlineKeyboardMarkup, textMsg func(string) tgbotapi.Chattable) error {
	if len([]rune(text)) <= maxCaptionLength {
		photo.Caption = text
		if keyboard != nil {
			photo.ReplyMarkup = *keyboard
		}
		_, err := c.api.Send(photo)
		return err
	}

	if _, err := c.api.Send(photo); err != nil {
		return err
	}
	chunks := splitText(text, maxTextLength)
	for i, chunk := range chunks {
		msg := textMsg(chunk)
		if m, ok := msg.(tgbotapi.MessageConfig); ok && keyboard != nil && i == len(chunks)-1 {
			m.ReplyMarkup = *keyboard
			msg = m
		}
		if _, err := c.api.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) channelMessage(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(c.channel, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(c.channelUsername(), text)
}

func (c *Client) channelPhoto(url string) tgbotapi.PhotoConfig {
	if id, err := strconv.ParseInt(c.channel, 10, 64); err == nil {
		return tgbotapi.NewPhoto(id, tgbotapi.FileURL(url))
	}
	return tgbotapi.NewPhotoToChannel(c.channelUsername(), tgbotapi.FileURL(url))
}

func (c *Client) channelUsername() string {
	if strings.HasPrefix(c.channel, "@") {
		return c.channel
	}
	return "@" + c.channel
}

// replace edits the message identified by handle, or sends a new one.
func (c *Client) replace(handle int, text string) {
	if handle != 0 {
		edit := tgbotapi.NewEditMessageText(c.adminID, handle, truncate(text, maxTextLength))
		if _, err := c.api.Request(edit); err == nil {
			return
		}
	}
	c.sendMessage(c.adminID, text)
}

// clearKeyboard removes the inline keyboard of a message.
func (c *Client) clearKeyboard(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := c.api.Request(edit); err != nil {
		c.logger.Debug("Failed to clear keyboard", zap.Int("message_id", messageID), zap.Error(err))
	}
}

func (c *Client) editText(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	var edit tgbotapi.EditMessageTextConfig
	if keyboard != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *keyboard)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := c.api.Request(edit); err != nil {
		c.logger.Warn("Failed to edit message, sending a new one", zap.Int("message_id", messageID), zap.Error(err))
		msg := tgbotapi.NewMessage(chatID, text)
		if keyboard != nil {
			msg.ReplyMarkup = *keyboard
		}
		if _, err := c.api.Send(msg); err != nil {
			c.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

func (c *Client) deleteMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		c.logger.Debug("Failed to delete message", zap.Int("message_id", messageID), zap.Error(err))
	}
}

// sendMessage is a helper to send a simple text message
func (c *Client) sendMessage(chatID int64, text string) {
	for _, chunk := range splitText(text, maxTextLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if _, err := c.api.Send(msg); err != nil {
			c.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
	}
}

// describe renders an error for the operator, naming its kind.
func describe(err error) string {
	if errors.Is(err, review.ErrStaleSession) {
		return "сессия устарела или уже обрабатывается"
	}
	kind := failure.KindOf(err)
	if kind == failure.KindUnknown {
		return err.Error()
	}
	return failure.Describe(kind) + ": " + err.Error()
}
