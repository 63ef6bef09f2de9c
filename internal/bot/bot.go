package bot

import (
	"context"
	"fmt"
	"math"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/ratelimit"
)

// API is the surface handlers use to talk back to Telegram.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler processes one kind of update. The first registered handler
// whose CanHandle returns true gets the update.
type Handler interface {
	CanHandle(update tgbotapi.Update) bool
	Handle(ctx context.Context, api API, update tgbotapi.Update)
}

// Bot polls Telegram for updates and dispatches them to handlers. The
// per-user rate gate runs before dispatch so throttled users get one
// explicit answer instead of silence.
type Bot struct {
	client   *tgbotapi.BotAPI
	api      API
	limiter  *ratelimit.Limiter
	handlers []Handler
	log      *zap.Logger
}

// New authorizes against the Telegram API.
func New(token string, limiter *ratelimit.Limiter, log *zap.Logger) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize bot: %w", err)
	}

	log.Info("authorized on telegram", zap.String("username", client.Self.UserName))

	return &Bot{
		client:   client,
		api:      client,
		limiter:  limiter,
		handlers: make([]Handler, 0),
		log:      log,
	}, nil
}

// Username returns the authorized bot account name.
func (b *Bot) Username() string {
	return b.client.Self.UserName
}

// API returns the surface handlers and notifiers send through.
func (b *Bot) API() API {
	return b.api
}

// RegisterHandler appends a handler; registration order is match order.
func (b *Bot) RegisterHandler(h Handler) {
	b.handlers = append(b.handlers, h)
	b.log.Debug("registered handler", zap.String("handler", fmt.Sprintf("%T", h)))
}

// Run polls for updates until ctx is canceled, then stops the update
// channel and returns.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.client.GetUpdatesChan(u)

	b.log.Info("bot started", zap.Int("handlers", len(b.handlers)))

	for {
		select {
		case <-ctx.Done():
			b.log.Info("stopping update polling")
			b.client.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil && update.CallbackQuery == nil {
		return
	}

	b.log.Debug("update received",
		zap.String("stage", "received"),
		zap.Int("update_id", update.UpdateID))

	// Messages pass the rate gate; callbacks answer an inline keyboard
	// the user already paid for, so they go straight through.
	if msg := update.Message; msg != nil && msg.From != nil && b.limiter != nil {
		if ok, wait := b.limiter.Allow(msg.From.ID); !ok {
			b.log.Debug("rate limited",
				zap.String("stage", "rate_checked"),
				zap.Int64("user_id", msg.From.ID),
				zap.Duration("wait", wait))

			reply := tgbotapi.NewMessage(msg.Chat.ID, formatWaitMessage(wait))
			reply.ParseMode = tgbotapi.ModeMarkdown
			if _, err := b.api.Send(reply); err != nil {
				b.log.Warn("failed to send rate-limit reply", zap.Error(err))
			}
			return
		}
	}

	for _, handler := range b.handlers {
		if handler.CanHandle(update) {
			go handler.Handle(ctx, b.api, update)
			return
		}
	}

	b.log.Debug("no handler for update", zap.Int("update_id", update.UpdateID))
}

func formatWaitMessage(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("⏳ **Too many requests!**\nPlease wait %d seconds and try again.", secs)
}
