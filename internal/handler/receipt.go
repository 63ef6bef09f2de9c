package handler

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/bot"
)

// ReceiptHandler forwards payment receipt photos to the admin channel
// so the admin can approve the sender.
type ReceiptHandler struct {
	reporter Reporter
	log      *zap.Logger
}

func NewReceiptHandler(reporter Reporter, log *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{reporter: reporter, log: log}
}

func (h *ReceiptHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && len(update.Message.Photo) > 0
}

func (h *ReceiptHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	message := update.Message
	if message.From == nil {
		return
	}

	reply := tgbotapi.NewMessage(message.Chat.ID,
		"⏳ **Photo received!**\nThe admin will review your receipt shortly.")
	reply.ParseMode = tgbotapi.ModeMarkdown
	reply.ReplyToMessageID = message.MessageID
	if _, err := api.Send(reply); err != nil {
		h.log.Error("failed to acknowledge receipt", zap.Error(err))
	}

	// Photo sizes are sorted ascending; the last one is the original.
	fileID := message.Photo[len(message.Photo)-1].FileID
	h.reporter.Receipt(fileID, displayName(message.From), message.From.ID)
	h.log.Info("receipt forwarded", zap.Int64("user_id", message.From.ID))
}
