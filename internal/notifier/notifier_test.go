package notifier

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type fakeSender struct {
	sent    []tgbotapi.Chattable
	sendErr error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.sendErr
}

func lastMessage(t *testing.T, f *fakeSender) tgbotapi.MessageConfig {
	t.Helper()

	if len(f.sent) == 0 {
		t.Fatal("Expected a message to be sent")
	}
	msg, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("Expected MessageConfig, got %T", f.sent[len(f.sent)-1])
	}
	return msg
}

func TestNotifier_Send(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, -100123, zap.NewNop())

	n.Send("hello channel")

	msg := lastMessage(t, sender)
	if msg.ChatID != -100123 {
		t.Errorf("Expected channel -100123, got %d", msg.ChatID)
	}
	if msg.Text != "hello channel" {
		t.Errorf("Unexpected text: %q", msg.Text)
	}
	if msg.ParseMode != tgbotapi.ModeMarkdown {
		t.Errorf("Expected Markdown parse mode, got %q", msg.ParseMode)
	}
}

func TestNotifier_DisabledWithoutChannel(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, 0, zap.NewNop())

	if n.Enabled() {
		t.Error("Notifier with channel 0 should be disabled")
	}

	n.Send("dropped")
	n.NewUser("Name", "user", 1)
	n.Receipt("file-id", "Name", 1)

	if len(sender.sent) != 0 {
		t.Errorf("Disabled notifier should send nothing, sent %d", len(sender.sent))
	}
}

func TestNotifier_SendFailureIsSwallowed(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("channel is gone")}
	n := New(sender, -100123, zap.NewNop())

	// Must not panic or propagate.
	n.Send("event")
	n.Receipt("file-id", "Name", 7)

	if len(sender.sent) != 2 {
		t.Errorf("Expected 2 attempted sends, got %d", len(sender.sent))
	}
}

func TestNotifier_NewUser(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, -100123, zap.NewNop())

	n.NewUser("Dara", "dara01", 555)

	text := lastMessage(t, sender).Text
	for _, want := range []string{"NEW USER JOINED", "Dara", "`555`", "@dara01"} {
		if !strings.Contains(text, want) {
			t.Errorf("New-user event should contain %q, got %q", want, text)
		}
	}
}

func TestNotifier_NewUserWithoutUsername(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, -100123, zap.NewNop())

	n.NewUser("Dara", "", 555)

	text := lastMessage(t, sender).Text
	if strings.Contains(text, "@") {
		t.Errorf("Event should omit the username line, got %q", text)
	}
}

func TestNotifier_Upgrade(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, -100123, zap.NewNop())

	n.Upgrade("Admin", 987)

	text := lastMessage(t, sender).Text
	if !strings.Contains(text, "PREMIUM UPGRADED") || !strings.Contains(text, "`987`") {
		t.Errorf("Unexpected upgrade event: %q", text)
	}
}

func TestNotifier_DownloadError(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, -100123, zap.NewNop())

	n.DownloadError(42, "https://www.tiktok.com/@u/video/1", errors.New("boom"))

	text := lastMessage(t, sender).Text
	for _, want := range []string{"DOWNLOAD ERROR", "`42`", "tiktok.com", "boom"} {
		if !strings.Contains(text, want) {
			t.Errorf("Download-error event should contain %q, got %q", want, text)
		}
	}
}

func TestNotifier_Receipt(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, -100123, zap.NewNop())

	n.Receipt("photo-file-id", "Dara", 555)

	if len(sender.sent) != 1 {
		t.Fatal("Expected the receipt photo to be sent")
	}
	photo, ok := sender.sent[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("Expected PhotoConfig, got %T", sender.sent[0])
	}

	if photo.ChatID != -100123 {
		t.Errorf("Expected channel -100123, got %d", photo.ChatID)
	}
	if !strings.Contains(photo.Caption, "/approve 555") {
		t.Errorf("Caption should carry the approve command, got %q", photo.Caption)
	}
	if !strings.Contains(photo.Caption, "PAYMENT RECEIPT") {
		t.Errorf("Caption should name the event, got %q", photo.Caption)
	}
}
