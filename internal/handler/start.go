package handler

import (
	"context"

	"github.com/artur/tubedrop/internal/bot"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type StartHandler struct {
	tracker *Tracker
	logger  *zap.Logger
}

func NewStartHandler(tracker *Tracker, logger *zap.Logger) *StartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StartHandler{tracker: tracker, logger: logger.Named("start")}
}

func (h *StartHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "start"
}

func (h *StartHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	from := update.Message.From
	var userName string
	if from != nil {
		userName = getUserName(from.FirstName, from.UserName)
	}
	h.tracker.Track(ctx, from, "start")

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, formatGreeting(userName))
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send greeting", zap.Error(err))
	}
}

func getUserName(firstName, userName string) string {
	if firstName != "" {
		return firstName
	}
	return userName
}

func formatGreeting(userName string) string {
	if userName == "" {
		return "Привет! Пришли ссылку на YouTube!"
	}
	return "Привет, " + userName + "! Пришли ссылку на YouTube!"
}
