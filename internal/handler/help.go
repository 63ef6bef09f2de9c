package handler

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/bot"
)

const helpText = "❓ **How to use:**\n\n" +
	"1. Copy a video link (TikTok, FB, IG, YouTube)\n" +
	"2. Paste it into this chat\n" +
	"3. Tap the Video or Audio button\n\n" +
	"💎 **Want Premium?**\n" +
	"Pay via the QR code (contact the admin), then send the receipt photo here."

// HelpHandler answers /help with usage instructions.
type HelpHandler struct {
	log *zap.Logger
}

func NewHelpHandler(log *zap.Logger) *HelpHandler {
	return &HelpHandler{log: log}
}

func (h *HelpHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "help"
}

func (h *HelpHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	msg := tgbotapi.NewMessage(update.Message.Chat.ID, helpText)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := api.Send(msg); err != nil {
		h.log.Warn("failed to send help", zap.Error(err))
	}
}
