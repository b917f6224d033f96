package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artur/tubedrop/internal/database/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UserRepository stores the Telegram users who talked to the bot
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Touch creates the user or refreshes their profile fields and returns the stored row
func (r *UserRepository) Touch(ctx context.Context, tgUser *tgbotapi.User) (*models.User, error) {
	if tgUser == nil {
		return nil, errors.New("telegram user is nil")
	}

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (telegram_user_id, username, first_name, last_name, language_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			language_code = excluded.language_code,
			updated_at = excluded.updated_at`,
		tgUser.ID, tgUser.UserName, tgUser.FirstName, tgUser.LastName, tgUser.LanguageCode, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user %d: %w", tgUser.ID, err)
	}

	return r.ByTelegramID(ctx, tgUser.ID)
}

// ByTelegramID returns nil, nil when the user is unknown
func (r *UserRepository) ByTelegramID(ctx context.Context, telegramUserID int64) (*models.User, error) {
	user := &models.User{}
	var username, firstName, lastName, languageCode sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, telegram_user_id, username, first_name, last_name, language_code, created_at, updated_at
		FROM users
		WHERE telegram_user_id = ?`, telegramUserID).Scan(
		&user.ID,
		&user.TelegramUserID,
		&username,
		&firstName,
		&lastName,
		&languageCode,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", telegramUserID, err)
	}

	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.LanguageCode = languageCode.String
	return user, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}
