package handler

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/bot"
	"github.com/artur/mediasaver/internal/database/repository"
)

// StatsHandler reports usage numbers to the admin. Like /approve it
// stays silent for anyone else.
type StatsHandler struct {
	stats   StatsStore
	cache   FileCache
	adminID int64
	log     *zap.Logger
}

func NewStatsHandler(stats StatsStore, cache FileCache, adminID int64, log *zap.Logger) *StatsHandler {
	return &StatsHandler{
		stats:   stats,
		cache:   cache,
		adminID: adminID,
		log:     log,
	}
}

func (h *StatsHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "stats"
}

func (h *StatsHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	message := update.Message
	if message.From == nil || message.From.ID != h.adminID {
		return
	}

	counts, err := h.stats.CountUsers(ctx)
	if err != nil {
		h.log.Error("failed to count users", zap.Error(err))
		counts = &repository.UserCounts{}
	}

	downloads, err := h.stats.TotalDownloads(ctx)
	if err != nil {
		h.log.Error("failed to count downloads", zap.Error(err))
	}

	cached, err := h.cache.Size(ctx)
	if err != nil {
		h.log.Error("failed to count cached files", zap.Error(err))
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatStats(counts, downloads, cached))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := api.Send(msg); err != nil {
		h.log.Error("failed to send stats", zap.Error(err))
	}
}

func formatStats(counts *repository.UserCounts, downloads, cached int64) string {
	return fmt.Sprintf(`📊 **BOT STATISTICS**

👥 Users: %d
💎 Premium: %d
🆓 Free: %d
📥 Total downloads: %d
🗂 Cached files: %d`,
		counts.Total, counts.Premium, counts.Free, downloads, cached)
}
