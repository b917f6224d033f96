package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// API is the part of tgbotapi.BotAPI the handlers use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Handler interface {
	CanHandle(update tgbotapi.Update) bool
	Handle(ctx context.Context, api API, update tgbotapi.Update)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	handlers    []Handler
	pollTimeout int
	logger      *zap.Logger
}

func New(token string, pollTimeout int, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize bot: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("bot")

	logger.Info("authorized", zap.String("account", api.Self.UserName))

	return &Bot{
		api:         api,
		handlers:    make([]Handler, 0),
		pollTimeout: pollTimeout,
		logger:      logger,
	}, nil
}

func (b *Bot) RegisterHandler(h Handler) {
	b.handlers = append(b.handlers, h)
	b.logger.Debug("registered handler", zap.String("handler", fmt.Sprintf("%T", h)))
}

// NotifyStartup sends a short message to the admin chat, if one is configured.
func (b *Bot) NotifyStartup(chatID int64) {
	if chatID == 0 {
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, "🚀 Бот запущен")); err != nil {
		b.logger.Warn("failed to send startup notification", zap.Error(err))
	}
}

// Run polls for updates until ctx is cancelled. Each update is handled on its
// own goroutine so one slow download never blocks other chats.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("starting bot", zap.Int("handlers", len(b.handlers)))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stopping bot")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, b.api, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, api API, update tgbotapi.Update) {
	if m := update.Message; m != nil && m.From != nil && m.Chat != nil {
		b.logger.Info("message",
			zap.String("from", m.From.UserName),
			zap.Int64("chat_id", m.Chat.ID),
			zap.String("text", m.Text),
		)
	}
	if update.CallbackQuery != nil && update.CallbackQuery.From != nil {
		b.logger.Info("callback",
			zap.String("from", update.CallbackQuery.From.UserName),
			zap.String("data", update.CallbackQuery.Data),
		)
	}

	if update.Message == nil && update.CallbackQuery == nil {
		b.logger.Debug("skipping update: no message or callback")
		return
	}

	h := b.match(update)
	if h == nil {
		b.logger.Debug("no handler found for update")
		return
	}
	go h.Handle(ctx, api, update)
}

// match returns the first registered handler that accepts update.
func (b *Bot) match(update tgbotapi.Update) Handler {
	for _, h := range b.handlers {
		if h.CanHandle(update) {
			return h
		}
	}
	return nil
}
