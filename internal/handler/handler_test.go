package handler

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/mediasaver/internal/cache"
	"github.com/artur/mediasaver/internal/database/models"
	"github.com/artur/mediasaver/internal/downloader"
	"github.com/artur/mediasaver/internal/platform"
	"github.com/artur/mediasaver/internal/quota"
)

// testPolicy is the freemium rule set the handler tests run under:
// 10 free downloads, admin id 99.
var testPolicy = quota.Policy{FreeLimit: 10, AdminID: 99}

// fakeAPI records outgoing Telegram traffic. Send attempts are recorded
// even when sendFunc fails them.
type fakeAPI struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	sendFunc  func(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if f.sendFunc != nil {
		return f.sendFunc(c)
	}
	return tgbotapi.Message{MessageID: 1000 + len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// sentText extracts the visible text of a recorded message.
func sentText(c tgbotapi.Chattable) string {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		return m.Text
	case tgbotapi.EditMessageTextConfig:
		return m.Text
	}
	return ""
}

// lastTextContaining fails the test unless some recorded message
// contains want.
func lastTextContaining(t *testing.T, api *fakeAPI, want string) string {
	t.Helper()
	for i := len(api.sent) - 1; i >= 0; i-- {
		if text := sentText(api.sent[i]); strings.Contains(text, want) {
			return text
		}
	}
	t.Fatalf("No sent message contains %q, got %d messages", want, len(api.sent))
	return ""
}

type fakeUsers struct {
	users      map[int64]*models.User
	getErr     error
	promoteErr error
	created    []int64
	increments []int64
	promoted   []int64
}

func newFakeUsers(existing ...*models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[int64]*models.User)}
	for _, u := range existing {
		f.users[u.UserID] = u
	}
	return f
}

func (f *fakeUsers) GetOrCreate(ctx context.Context, userID int64) (*models.User, bool, error) {
	if f.getErr != nil {
		// Same fail-closed shape as the real repository.
		return &models.User{UserID: userID, Status: models.TierFree, DownloadsCount: testPolicy.FreeLimit}, false, f.getErr
	}
	if u, ok := f.users[userID]; ok {
		return u, false, nil
	}
	u := &models.User{UserID: userID, Status: models.TierFree}
	f.users[userID] = u
	f.created = append(f.created, userID)
	return u, true, nil
}

func (f *fakeUsers) IncrementDownloads(ctx context.Context, userID int64) error {
	f.increments = append(f.increments, userID)
	if u, ok := f.users[userID]; ok && u.Status == models.TierFree {
		u.DownloadsCount++
	}
	return nil
}

func (f *fakeUsers) Promote(ctx context.Context, userID int64) error {
	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.promoted = append(f.promoted, userID)
	if u, ok := f.users[userID]; ok {
		u.Status = models.TierPremium
		return nil
	}
	f.users[userID] = &models.User{UserID: userID, Status: models.TierPremium}
	return nil
}

type fakeReporter struct {
	newUsers  []int64
	upgrades  []int64
	downloads []string
	uploads   []int64
	receipts  []string
}

func (f *fakeReporter) NewUser(name, username string, userID int64) {
	f.newUsers = append(f.newUsers, userID)
}

func (f *fakeReporter) Upgrade(adminName string, targetID int64) {
	f.upgrades = append(f.upgrades, targetID)
}

func (f *fakeReporter) DownloadError(userID int64, link string, err error) {
	f.downloads = append(f.downloads, link)
}

func (f *fakeReporter) UploadError(userID int64, err error) {
	f.uploads = append(f.uploads, userID)
}

func (f *fakeReporter) Receipt(fileID, name string, userID int64) {
	f.receipts = append(f.receipts, fileID)
}

type fakeCache struct {
	entries   map[string]*cache.Entry
	lookupErr error
	storeErr  error
	stored    []*cache.Entry
	touched   []string
	size      int64
	sizeErr   error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*cache.Entry)}
}

func cacheKey(sourceKey, format string) string {
	return sourceKey + "|" + format
}

func (f *fakeCache) Lookup(ctx context.Context, sourceKey, format string) (*cache.Entry, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.entries[cacheKey(sourceKey, format)], nil
}

func (f *fakeCache) Store(ctx context.Context, entry *cache.Entry) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, entry)
	f.entries[cacheKey(entry.SourceKey, entry.Format)] = entry
	return nil
}

func (f *fakeCache) Touch(ctx context.Context, sourceKey, format string) error {
	f.touched = append(f.touched, cacheKey(sourceKey, format))
	return nil
}

func (f *fakeCache) Size(ctx context.Context) (int64, error) {
	return f.size, f.sizeErr
}

type fakeDownloads struct {
	downloadFunc func(ctx context.Context, req downloader.Request) (*downloader.Result, error)
	requests     []downloader.Request
}

func (f *fakeDownloads) Download(ctx context.Context, req downloader.Request) (*downloader.Result, error) {
	f.requests = append(f.requests, req)
	if f.downloadFunc != nil {
		return f.downloadFunc(ctx, req)
	}
	return nil, errors.New("no download configured")
}

// testValidator resolves every host to a public address so tests never
// hit DNS.
func testValidator() *platform.Validator {
	return &platform.Validator{
		LookupIP: func(string) ([]net.IP, error) {
			return []net.IP{net.ParseIP("203.0.113.10")}, nil
		},
	}
}

func freeUser(id int64, used int) *models.User {
	return &models.User{UserID: id, Status: models.TierFree, DownloadsCount: used}
}

func premiumUser(id int64) *models.User {
	return &models.User{UserID: id, Status: models.TierPremium}
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 100,
			From:      &tgbotapi.User{ID: userID, FirstName: "Artur", UserName: "artur"},
			Chat:      &tgbotapi.Chat{ID: userID},
			Text:      text,
		},
	}
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	update := textUpdate(userID, text)
	length := len(text)
	if i := strings.Index(text, " "); i != -1 {
		length = i
	}
	update.Message.Entities = []tgbotapi.MessageEntity{
		{Type: "bot_command", Offset: 0, Length: length},
	}
	return update
}

// callbackUpdate builds a format-button press. linkText is the text of
// the replied-to message; empty means the reply is gone.
func callbackUpdate(userID int64, data, linkText string) tgbotapi.Update {
	chat := &tgbotapi.Chat{ID: userID}
	var reply *tgbotapi.Message
	if linkText != "" {
		reply = &tgbotapi.Message{MessageID: 40, Chat: chat, Text: linkText}
	}
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			From: &tgbotapi.User{ID: userID, FirstName: "Artur"},
			Data: data,
			Message: &tgbotapi.Message{
				MessageID:      50,
				Chat:           chat,
				Text:           "👇 Choose a format:",
				ReplyToMessage: reply,
			},
		},
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		user     *tgbotapi.User
		expected string
	}{
		{
			name:     "full name",
			user:     &tgbotapi.User{FirstName: "Artur", LastName: "K"},
			expected: "Artur K",
		},
		{
			name:     "first name only",
			user:     &tgbotapi.User{FirstName: "Artur"},
			expected: "Artur",
		},
		{
			name:     "username fallback",
			user:     &tgbotapi.User{UserName: "artur123"},
			expected: "artur123",
		},
		{
			name:     "nil user",
			user:     nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := displayName(tt.user); got != tt.expected {
				t.Errorf("displayName() = %q, want %q", got, tt.expected)
			}
		})
	}
}
