package handler

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/bot"
	"github.com/artur/mediasaver/internal/cache"
	"github.com/artur/mediasaver/internal/database/models"
	"github.com/artur/mediasaver/internal/database/repository"
	"github.com/artur/mediasaver/internal/downloader"
)

// UserStore is the persistence surface command handlers need.
type UserStore interface {
	GetOrCreate(ctx context.Context, userID int64) (*models.User, bool, error)
	IncrementDownloads(ctx context.Context, userID int64) error
	Promote(ctx context.Context, userID int64) error
}

// StatsStore serves the admin /stats command.
type StatsStore interface {
	CountUsers(ctx context.Context) (*repository.UserCounts, error)
	TotalDownloads(ctx context.Context) (int64, error)
}

// FileCache remembers Telegram file IDs of delivered downloads.
type FileCache interface {
	Lookup(ctx context.Context, sourceKey, format string) (*cache.Entry, error)
	Store(ctx context.Context, entry *cache.Entry) error
	Touch(ctx context.Context, sourceKey, format string) error
	Size(ctx context.Context) (int64, error)
}

// MediaDownloader runs download jobs.
type MediaDownloader interface {
	Download(ctx context.Context, req downloader.Request) (*downloader.Result, error)
}

// Reporter posts operational events to the admin channel.
type Reporter interface {
	NewUser(name, username string, userID int64)
	Upgrade(adminName string, targetID int64)
	DownloadError(userID int64, link string, err error)
	UploadError(userID int64, err error)
	Receipt(fileID, name string, userID int64)
}

// replyMarkdown sends a Markdown message to a chat and logs delivery
// failures instead of returning them.
func replyMarkdown(api bot.API, log *zap.Logger, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := api.Send(msg); err != nil {
		log.Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// displayName mirrors Telegram's full-name rendering with the username
// as a fallback.
func displayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}

	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.UserName
	}
	return name
}
