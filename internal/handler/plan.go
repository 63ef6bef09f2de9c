package handler

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/bot"
	"github.com/artur/mediasaver/internal/database/models"
	"github.com/artur/mediasaver/internal/quota"
)

// PlanHandler shows the user their tier and remaining quota.
type PlanHandler struct {
	users  UserStore
	policy quota.Policy
	log    *zap.Logger
}

func NewPlanHandler(users UserStore, policy quota.Policy, log *zap.Logger) *PlanHandler {
	return &PlanHandler{
		users:  users,
		policy: policy,
		log:    log,
	}
}

func (h *PlanHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "plan"
}

func (h *PlanHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	from := update.Message.From
	if from == nil {
		return
	}

	user, _, err := h.users.GetOrCreate(ctx, from.ID)
	if err != nil {
		h.log.Error("failed to load user", zap.Int64("user_id", from.ID), zap.Error(err))
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, formatPlan(from.ID, user, h.policy))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := api.Send(msg); err != nil {
		h.log.Warn("failed to send plan", zap.Error(err))
	}
}

func formatPlan(userID int64, user *models.User, policy quota.Policy) string {
	msg := fmt.Sprintf("📊 **Account info:** `%d`\n\n", userID)

	if user.IsPremium() {
		return msg + "🌟 **Premium User** (Lifetime) ✅"
	}

	msg += fmt.Sprintf("👤 **Free User**\n📉 Used: %d/%d", user.DownloadsCount, policy.FreeLimit)
	if !policy.Allowed(user) {
		msg += "\n⛔️ **Limit reached!** Send your payment receipt here to buy premium."
	}
	return msg
}
