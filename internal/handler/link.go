package handler

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/bot"
	"github.com/artur/mediasaver/internal/platform"
	"github.com/artur/mediasaver/internal/quota"
)

// Callback data for the format keyboard. The URL itself never goes into
// callback data; it travels on the replied-to message.
const (
	callbackVideo = "dl_video"
	callbackAudio = "dl_audio"
)

// LinkHandler reacts to plain messages that mention a supported site,
// validates the link and offers the format keyboard.
type LinkHandler struct {
	users     UserStore
	policy    quota.Policy
	validator *platform.Validator
	log       *zap.Logger
}

func NewLinkHandler(users UserStore, policy quota.Policy, validator *platform.Validator, log *zap.Logger) *LinkHandler {
	return &LinkHandler{
		users:     users,
		policy:    policy,
		validator: validator,
		log:       log,
	}
}

func (h *LinkHandler) CanHandle(update tgbotapi.Update) bool {
	message := update.Message
	return message != nil && !message.IsCommand() && message.Text != "" && platform.Candidate(message.Text)
}

func (h *LinkHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	message := update.Message
	if message.From == nil {
		return
	}
	userID := message.From.ID

	link, err := h.validator.Parse(strings.TrimSpace(message.Text))
	if err != nil {
		h.log.Info("link rejected",
			zap.String("stage", "url_validated"),
			zap.Int64("user_id", userID),
			zap.Error(err))
		replyMarkdown(api, h.log, message.Chat.ID,
			"❌ **Invalid link.**\nSend a public TikTok, Facebook, Instagram, YouTube, or X link.")
		return
	}

	user, _, err := h.users.GetOrCreate(ctx, userID)
	if err != nil {
		// The locked-out record below denies the download anyway.
		h.log.Error("failed to load user", zap.Int64("user_id", userID), zap.Error(err))
	}

	if !h.policy.Allowed(user) {
		h.log.Info("quota exhausted",
			zap.String("stage", "quota_checked"),
			zap.Int64("user_id", userID))
		replyMarkdown(api, h.log, message.Chat.ID,
			"⛔️ **Download limit reached!**\nSend your payment receipt here to continue.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, "👇 **Choose a format:**")
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = message.MessageID
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎬 Video", callbackVideo),
			tgbotapi.NewInlineKeyboardButtonData("🎵 Audio", callbackAudio),
		),
	)
	if _, err := api.Send(msg); err != nil {
		h.log.Error("failed to send format keyboard", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	h.log.Info("link accepted",
		zap.String("stage", "url_validated"),
		zap.Int64("user_id", userID),
		zap.String("platform", string(link.Platform)))
}
