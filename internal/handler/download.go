package handler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/bot"
	"github.com/artur/mediasaver/internal/cache"
	"github.com/artur/mediasaver/internal/database/models"
	"github.com/artur/mediasaver/internal/downloader"
	"github.com/artur/mediasaver/internal/platform"
	"github.com/artur/mediasaver/internal/quota"
)

const megabyte = 1 << 20

// DownloadHandler runs the format callbacks end to end: recover the
// link, re-check quota, serve from cache or download, deliver, count.
type DownloadHandler struct {
	users     UserStore
	policy    quota.Policy
	validator *platform.Validator
	cache     FileCache
	downloads MediaDownloader
	reporter  Reporter
	log       *zap.Logger
}

func NewDownloadHandler(
	users UserStore,
	policy quota.Policy,
	validator *platform.Validator,
	fileCache FileCache,
	downloads MediaDownloader,
	reporter Reporter,
	log *zap.Logger,
) *DownloadHandler {
	return &DownloadHandler{
		users:     users,
		policy:    policy,
		validator: validator,
		cache:     fileCache,
		downloads: downloads,
		reporter:  reporter,
		log:       log,
	}
}

func (h *DownloadHandler) CanHandle(update tgbotapi.Update) bool {
	cb := update.CallbackQuery
	return cb != nil && (cb.Data == callbackVideo || cb.Data == callbackAudio)
}

func (h *DownloadHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	cb := update.CallbackQuery
	if cb.From == nil {
		return
	}
	userID := cb.From.ID

	// The keyboard message replies to the user's link message; callback
	// data only carries the format. A vanished reply means the link is
	// unrecoverable.
	if cb.Message == nil || cb.Message.ReplyToMessage == nil || cb.Message.ReplyToMessage.Text == "" {
		h.answer(api, tgbotapi.NewCallbackWithAlert(cb.ID, "❌ Link not found! Please send it again."))
		return
	}
	h.answer(api, tgbotapi.NewCallback(cb.ID, ""))

	chatID := cb.Message.Chat.ID
	progressID := cb.Message.MessageID
	linkMessageID := cb.Message.ReplyToMessage.MessageID

	format := downloader.FormatVideo
	if cb.Data == callbackAudio {
		format = downloader.FormatAudio
	}

	// The message text is user-controlled and the quota may have run out
	// since the keyboard was offered, so both checks run again here.
	link, err := h.validator.Parse(strings.TrimSpace(cb.Message.ReplyToMessage.Text))
	if err != nil {
		h.log.Info("callback link rejected",
			zap.String("stage", "url_validated"),
			zap.Int64("user_id", userID),
			zap.Error(err))
		h.editProgress(api, chatID, progressID,
			"❌ **Invalid link.**\nSend a public TikTok, Facebook, Instagram, YouTube, or X link.")
		return
	}

	user, _, err := h.users.GetOrCreate(ctx, userID)
	if err != nil {
		h.log.Error("failed to load user", zap.Int64("user_id", userID), zap.Error(err))
	}
	if !h.policy.Allowed(user) {
		h.log.Info("quota exhausted",
			zap.String("stage", "quota_checked"),
			zap.Int64("user_id", userID))
		h.editProgress(api, chatID, progressID,
			"⛔️ **Download limit reached!**\nSend your payment receipt here to continue.")
		return
	}

	h.editProgress(api, chatID, progressID, "⏳ **Processing...**")

	if h.deliverCached(ctx, api, link, format, user, chatID, progressID, linkMessageID) {
		return
	}

	h.log.Info("download started",
		zap.String("stage", "downloading"),
		zap.Int64("user_id", userID),
		zap.String("platform", string(link.Platform)),
		zap.String("format", string(format)))

	res, err := h.downloads.Download(ctx, downloader.Request{Link: *link, Format: format})
	if err != nil {
		h.log.Warn("download failed",
			zap.String("stage", "failed"),
			zap.Int64("user_id", userID),
			zap.String("platform", string(link.Platform)),
			zap.Error(err))
		h.editProgress(api, chatID, progressID, h.failureMessage(userID, link, err))
		return
	}
	defer func() {
		if err := os.Remove(res.Path); err == nil {
			h.log.Debug("temp file removed",
				zap.String("stage", "cleaned_up"),
				zap.String("path", res.Path))
		}
	}()

	h.editProgress(api, chatID, progressID, "⬆️ **Uploading...**")

	sent, err := api.Send(h.mediaFromFile(chatID, linkMessageID, res, format))
	if err != nil {
		h.log.Error("upload failed",
			zap.String("stage", "failed"),
			zap.Int64("user_id", userID),
			zap.Error(err))
		h.editProgress(api, chatID, progressID, "❌ **Upload failed!**\nThe admin has been notified.")
		h.reporter.UploadError(userID, err)
		return
	}

	if fileID := sentFileID(&sent, format); fileID != "" {
		err := h.cache.Store(ctx, &cache.Entry{
			SourceKey: link.Key(),
			Format:    string(format),
			FileID:    fileID,
			Title:     res.Title,
		})
		if err != nil {
			h.log.Warn("failed to cache delivery", zap.String("source", link.Key()), zap.Error(err))
		}
	}

	h.finishDelivery(ctx, api, user, chatID, progressID)
	h.log.Info("download delivered",
		zap.String("stage", "delivered"),
		zap.Int64("user_id", userID),
		zap.String("platform", string(link.Platform)),
		zap.String("format", string(format)),
		zap.Int64("size", res.Size))
}

// deliverCached re-sends an earlier delivery by Telegram file ID. It
// reports true only when the user got the file; any cache trouble falls
// back to a fresh download.
func (h *DownloadHandler) deliverCached(
	ctx context.Context,
	api bot.API,
	link *platform.Link,
	format downloader.Format,
	user *models.User,
	chatID int64,
	progressID, linkMessageID int,
) bool {
	entry, err := h.cache.Lookup(ctx, link.Key(), string(format))
	if err != nil {
		h.log.Warn("cache lookup failed", zap.String("source", link.Key()), zap.Error(err))
		return false
	}
	if entry == nil {
		return false
	}

	if _, err := api.Send(h.mediaFromCache(chatID, linkMessageID, entry, format)); err != nil {
		// Stale file IDs happen; download fresh and overwrite the entry.
		h.log.Warn("cached delivery failed", zap.String("source", link.Key()), zap.Error(err))
		return false
	}

	if err := h.cache.Touch(ctx, link.Key(), string(format)); err != nil {
		h.log.Warn("failed to touch cache entry", zap.String("source", link.Key()), zap.Error(err))
	}

	h.finishDelivery(ctx, api, user, chatID, progressID)
	h.log.Info("download delivered",
		zap.String("stage", "delivered"),
		zap.Int64("user_id", user.UserID),
		zap.String("platform", string(link.Platform)),
		zap.String("format", string(format)),
		zap.Bool("cache_hit", true))
	return true
}

// finishDelivery removes the progress message and counts the download
// for metered users.
func (h *DownloadHandler) finishDelivery(ctx context.Context, api bot.API, user *models.User, chatID int64, progressID int) {
	if _, err := api.Request(tgbotapi.NewDeleteMessage(chatID, progressID)); err != nil {
		h.log.Warn("failed to delete progress message", zap.Error(err))
	}

	if h.policy.Unlimited(user) {
		return
	}
	if err := h.users.IncrementDownloads(ctx, user.UserID); err != nil {
		h.log.Error("failed to increment downloads", zap.Int64("user_id", user.UserID), zap.Error(err))
	}
}

func (h *DownloadHandler) failureMessage(userID int64, link *platform.Link, err error) string {
	var sizeErr *downloader.SizeError
	switch {
	case errors.As(err, &sizeErr):
		return fmt.Sprintf("❌ **File too large!** (%.2f MB)\nThe limit is %d MB.",
			float64(sizeErr.Size)/megabyte, sizeErr.Max/megabyte)
	case errors.Is(err, downloader.ErrClosed):
		return "🔄 **The bot is restarting.**\nPlease try again in a minute."
	case errors.Is(err, downloader.ErrTimedOut):
		h.reporter.DownloadError(userID, link.Normalized, err)
		return "⌛️ **Download timed out!**\nThe file may be too large or the source too slow."
	default:
		h.reporter.DownloadError(userID, link.Normalized, err)
		return "❌ **Download failed!**\nThe admin has been notified."
	}
}

func (h *DownloadHandler) mediaFromFile(chatID int64, replyTo int, res *downloader.Result, format downloader.Format) tgbotapi.Chattable {
	if format == downloader.FormatAudio {
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(res.Path))
		audio.Caption = res.Title
		audio.ReplyToMessageID = replyTo
		return audio
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(res.Path))
	video.Caption = res.Title
	video.ReplyToMessageID = replyTo
	return video
}

func (h *DownloadHandler) mediaFromCache(chatID int64, replyTo int, entry *cache.Entry, format downloader.Format) tgbotapi.Chattable {
	if format == downloader.FormatAudio {
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FileID(entry.FileID))
		audio.Caption = entry.Title
		audio.ReplyToMessageID = replyTo
		return audio
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FileID(entry.FileID))
	video.Caption = entry.Title
	video.ReplyToMessageID = replyTo
	return video
}

func (h *DownloadHandler) editProgress(api bot.API, chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := api.Send(edit); err != nil {
		h.log.Warn("failed to edit progress message", zap.Error(err))
	}
}

func (h *DownloadHandler) answer(api bot.API, callback tgbotapi.CallbackConfig) {
	if _, err := api.Request(callback); err != nil {
		h.log.Warn("failed to answer callback", zap.Error(err))
	}
}

// sentFileID extracts the Telegram file ID from a delivered message.
// Telegram occasionally wraps media as a document; that ID re-sends
// just as well.
func sentFileID(msg *tgbotapi.Message, format downloader.Format) string {
	if msg == nil {
		return ""
	}
	if format == downloader.FormatAudio {
		if msg.Audio != nil {
			return msg.Audio.FileID
		}
	} else if msg.Video != nil {
		return msg.Video.FileID
	}
	if msg.Document != nil {
		return msg.Document.FileID
	}
	return ""
}
