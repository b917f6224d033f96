package repository_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/artur/tubedrop/internal/database"
	"github.com/artur/tubedrop/internal/database/repository"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(nil))

	t.Cleanup(func() { db.Close() })
	return db.DB
}

func TestUserRepository_Touch(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUserRepository(setupTestDB(t))

	tgUser := &tgbotapi.User{
		ID:           12345,
		FirstName:    "Test",
		LastName:     "User",
		UserName:     "testuser",
		LanguageCode: "en",
	}

	first, err := repo.Touch(ctx, tgUser)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(12345), first.TelegramUserID)
	assert.Equal(t, "testuser", first.Username)
	assert.Equal(t, "en", first.LanguageCode)

	tgUser.FirstName = "Renamed"
	tgUser.UserName = "renamed"
	second, err := repo.Touch(ctx, tgUser)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "upsert must keep the row id")
	assert.Equal(t, "Renamed", second.FirstName)
	assert.Equal(t, "renamed", second.Username)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUserRepository_TouchNil(t *testing.T) {
	repo := repository.NewUserRepository(setupTestDB(t))

	_, err := repo.Touch(context.Background(), nil)
	assert.Error(t, err)
}

func TestUserRepository_ByTelegramIDUnknown(t *testing.T) {
	repo := repository.NewUserRepository(setupTestDB(t))

	user, err := repo.ByTelegramID(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserRepository_EmptyOptionalFields(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUserRepository(setupTestDB(t))

	user, err := repo.Touch(ctx, &tgbotapi.User{ID: 7})
	require.NoError(t, err)
	assert.Empty(t, user.Username)
	assert.Empty(t, user.FirstName)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestUserRepository_Count(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUserRepository(setupTestDB(t))

	for _, id := range []int64{1, 2, 3} {
		_, err := repo.Touch(ctx, &tgbotapi.User{ID: id, FirstName: "u"})
		require.NoError(t, err)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
