package notifier

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of the bot client the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts operational events to the log channel. Every method is
// best effort: failures are logged and swallowed, so an unreachable
// channel never breaks a user flow. A zero channel id disables it.
type Notifier struct {
	sender    Sender
	channelID int64
	log       *zap.Logger
}

// New creates a Notifier posting to channelID.
func New(sender Sender, channelID int64, log *zap.Logger) *Notifier {
	return &Notifier{
		sender:    sender,
		channelID: channelID,
		log:       log,
	}
}

// Enabled reports whether events reach a channel.
func (n *Notifier) Enabled() bool {
	return n.channelID != 0 && n.sender != nil
}

// Send posts a Markdown-formatted text event.
func (n *Notifier) Send(text string) {
	if !n.Enabled() {
		return
	}

	msg := tgbotapi.NewMessage(n.channelID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.sender.Send(msg); err != nil {
		n.log.Warn("failed to send notification", zap.Error(err))
	}
}

// Startup announces the bot coming online.
func (n *Notifier) Startup(botName string) {
	n.Send(fmt.Sprintf("🚀 **BOT STARTED**\n🤖 @%s\n🕒 %s",
		botName, time.Now().Format(time.RFC1123)))
}

// NewUser announces a first-time user.
func (n *Notifier) NewUser(name, username string, userID int64) {
	text := fmt.Sprintf("🆕 **NEW USER JOINED!**\n👤 Name: %s\n🆔 ID: `%d`", name, userID)
	if username != "" {
		text += fmt.Sprintf("\n🔗 Username: @%s", username)
	}
	n.Send(text)
}

// Upgrade announces a premium promotion.
func (n *Notifier) Upgrade(adminName string, targetID int64) {
	n.Send(fmt.Sprintf("💎 **PREMIUM UPGRADED**\n👮‍♂️ By Admin: %s\n👤 User ID: `%d`",
		adminName, targetID))
}

// DownloadError reports a failed download.
func (n *Notifier) DownloadError(userID int64, link string, err error) {
	n.Send(fmt.Sprintf("⚠️ **DOWNLOAD ERROR**\n👤 User: `%d`\n🔗 Link: %s\n🛑 Error: `%v`",
		userID, link, err))
}

// UploadError reports a download that could not be delivered.
func (n *Notifier) UploadError(userID int64, err error) {
	n.Send(fmt.Sprintf("⚠️ **UPLOAD ERROR**\nUser: `%d`\nError: `%v`", userID, err))
}

// Receipt forwards a payment receipt photo with the approve command
// ready to copy.
func (n *Notifier) Receipt(fileID, name string, userID int64) {
	if !n.Enabled() {
		return
	}

	photo := tgbotapi.NewPhoto(n.channelID, tgbotapi.FileID(fileID))
	photo.Caption = fmt.Sprintf(
		"💸 **PAYMENT RECEIPT**\n👤 User: %s\n🆔 ID: `%d`\n\n👇 **Tap to approve:**\n`/approve %d`",
		name, userID, userID)
	photo.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.sender.Send(photo); err != nil {
		n.log.Warn("failed to forward receipt", zap.Error(err))
	}
}
