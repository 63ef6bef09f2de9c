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

// StartHandler greets users, registers first-time ones and announces
// them to the admin channel.
type StartHandler struct {
	users    UserStore
	policy   quota.Policy
	reporter Reporter
	log      *zap.Logger
}

func NewStartHandler(users UserStore, policy quota.Policy, reporter Reporter, log *zap.Logger) *StartHandler {
	return &StartHandler{
		users:    users,
		policy:   policy,
		reporter: reporter,
		log:      log,
	}
}

func (h *StartHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "start"
}

func (h *StartHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	from := update.Message.From
	if from == nil {
		return
	}

	user, created, err := h.users.GetOrCreate(ctx, from.ID)
	if err != nil {
		// The locked-out record still renders a valid status line.
		h.log.Error("failed to load user", zap.Int64("user_id", from.ID), zap.Error(err))
	}
	if created {
		h.log.Info("new user joined", zap.Int64("user_id", from.ID))
		h.reporter.NewUser(displayName(from), from.UserName, from.ID)
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, formatWelcome(from.FirstName, user, h.policy))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := api.Send(msg); err != nil {
		h.log.Warn("failed to send welcome", zap.Error(err))
	}
}

func formatWelcome(name string, user *models.User, policy quota.Policy) string {
	msg := fmt.Sprintf("👋 **Hello %s!**\n\n**Welcome to Video Downloader Bot.**\n➖➖➖➖➖➖➖➖➖➖\n", name)

	switch {
	case policy.Unlimited(user):
		msg += "🌟 Status: **Premium** (unlimited downloads) ✅"
	case policy.Remaining(user) > 0:
		msg += fmt.Sprintf("👤 Status: **Free Trial**\n📉 Downloads left: **%d/%d**",
			policy.Remaining(user), policy.FreeLimit)
	default:
		msg += "⛔️ Status: **Limit reached**\nPlease purchase premium to continue."
	}

	msg += "\n\n👇 **Send a link (TikTok, FB, IG) here to download!**"
	return msg
}
