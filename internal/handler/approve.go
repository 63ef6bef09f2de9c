package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/bot"
)

// ApproveHandler upgrades a user to premium. Only the admin can run
// it; everyone else is ignored without a reply.
type ApproveHandler struct {
	users    UserStore
	reporter Reporter
	adminID  int64
	log      *zap.Logger
}

func NewApproveHandler(users UserStore, reporter Reporter, adminID int64, log *zap.Logger) *ApproveHandler {
	return &ApproveHandler{
		users:    users,
		reporter: reporter,
		adminID:  adminID,
		log:      log,
	}
}

func (h *ApproveHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "approve"
}

func (h *ApproveHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	message := update.Message
	if message.From == nil || message.From.ID != h.adminID {
		return
	}

	chatID := message.Chat.ID

	args := strings.TrimSpace(message.CommandArguments())
	if args == "" {
		replyMarkdown(api, h.log, chatID, "⚠️ Usage: `/approve [user_id]`")
		return
	}

	targetID, err := strconv.ParseInt(strings.Fields(args)[0], 10, 64)
	if err != nil {
		replyMarkdown(api, h.log, chatID, "⚠️ The ID must be a number!")
		return
	}

	if err := h.users.Promote(ctx, targetID); err != nil {
		h.log.Error("failed to promote user", zap.Int64("target_id", targetID), zap.Error(err))
		replyMarkdown(api, h.log, chatID, "❌ Could not upgrade the user, check the logs.")
		return
	}

	h.log.Info("user promoted", zap.Int64("target_id", targetID), zap.Int64("admin_id", message.From.ID))
	replyMarkdown(api, h.log, chatID, fmt.Sprintf("✅ User `%d` has been upgraded to Premium!", targetID))

	// Congratulate the user directly; a block is not a failure.
	congrats := tgbotapi.NewMessage(targetID,
		"🎉 **Congratulations!**\nYour account has been upgraded to **Premium**.\nEnjoy unlimited downloads! 🚀")
	congrats.ParseMode = tgbotapi.ModeMarkdown
	if _, err := api.Send(congrats); err != nil {
		h.log.Warn("failed to notify promoted user", zap.Int64("target_id", targetID), zap.Error(err))
		replyMarkdown(api, h.log, chatID, "⚠️ Could not message the user (they may have blocked the bot), but the upgrade is done.")
	}

	h.reporter.Upgrade(displayName(message.From), targetID)
}
