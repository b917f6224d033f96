package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/artur/tubedrop/internal/bot"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// StatsHandler answers /stats in the admin chat with usage counters, including
// how many commands the asking user ran.
type StatsHandler struct {
	users       UserStore
	stats       StatsStore
	adminChatID int64
	logger      *zap.Logger
}

func NewStatsHandler(users UserStore, stats StatsStore, adminChatID int64, logger *zap.Logger) *StatsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{users: users, stats: stats, adminChatID: adminChatID, logger: logger.Named("stats")}
}

func (h *StatsHandler) CanHandle(update tgbotapi.Update) bool {
	return h.adminChatID != 0 &&
		update.Message != nil &&
		update.Message.Chat != nil &&
		update.Message.Chat.ID == h.adminChatID &&
		update.Message.IsCommand() &&
		update.Message.Command() == "stats"
}

func (h *StatsHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	text, err := h.report(ctx, update.Message.From)
	if err != nil {
		h.logger.Warn("failed to build stats", zap.Error(err))
		text = "❌ Ошибка: " + err.Error()
	}
	if _, err := api.Send(tgbotapi.NewMessage(update.Message.Chat.ID, text)); err != nil {
		h.logger.Warn("failed to send stats", zap.Error(err))
	}
}

func (h *StatsHandler) report(ctx context.Context, from *tgbotapi.User) (string, error) {
	users, err := h.users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("count users: %w", err)
	}
	total, err := h.stats.Total(ctx)
	if err != nil {
		return "", fmt.Errorf("count commands: %w", err)
	}
	top, err := h.stats.Top(ctx, 5)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👥 Пользователей: %d\n📊 Команд: %d", users, total)
	for _, c := range top {
		fmt.Fprintf(&sb, "\n• %s: %d", c.Command, c.Count)
	}

	if from != nil {
		user, err := h.users.ByTelegramID(ctx, from.ID)
		if err != nil {
			return "", fmt.Errorf("find user: %w", err)
		}
		if user != nil {
			own, err := h.stats.CountByUser(ctx, user.ID)
			if err != nil {
				return "", fmt.Errorf("count user commands: %w", err)
			}
			fmt.Fprintf(&sb, "\n🙋 Ваших команд: %d", own)
		}
	}
	return sb.String(), nil
}
