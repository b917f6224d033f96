package handler

import (
	"context"

	"github.com/artur/tubedrop/internal/database/models"
	"github.com/artur/tubedrop/internal/database/repository"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type UserStore interface {
	Touch(ctx context.Context, tgUser *tgbotapi.User) (*models.User, error)
	ByTelegramID(ctx context.Context, telegramUserID int64) (*models.User, error)
	Count(ctx context.Context) (int64, error)
}

type StatsStore interface {
	Record(ctx context.Context, userID int64, command string) error
	CountByUser(ctx context.Context, userID int64) (int64, error)
	Total(ctx context.Context) (int64, error)
	Top(ctx context.Context, limit int) ([]repository.CommandCount, error)
}

// Tracker records who used which command. Failures are logged and never
// reach the user. A nil Tracker records nothing.
type Tracker struct {
	users  UserStore
	stats  StatsStore
	logger *zap.Logger
}

func NewTracker(users UserStore, stats StatsStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{users: users, stats: stats, logger: logger.Named("tracker")}
}

func (t *Tracker) Track(ctx context.Context, from *tgbotapi.User, command string) {
	if t == nil || t.users == nil || from == nil {
		return
	}
	user, err := t.users.Touch(ctx, from)
	if err != nil {
		t.logger.Warn("failed to upsert user", zap.Int64("telegram_user_id", from.ID), zap.Error(err))
		return
	}
	if t.stats == nil {
		return
	}
	if err := t.stats.Record(ctx, user.ID, command); err != nil {
		t.logger.Warn("failed to record command", zap.String("command", command), zap.Error(err))
	}
}
