package database

import (
	"fmt"

	"go.uber.org/zap"
)

// Migrate runs all database migrations. Only users and command counters are
// kept; downloads themselves are never recorded.
func (db *DB) Migrate(logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("running migrations")

	migrations := []string{
		// Users table
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_user_id INTEGER NOT NULL UNIQUE,
			username TEXT,
			first_name TEXT,
			last_name TEXT,
			language_code TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_telegram_id ON users(telegram_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at)`,

		// Command stats table
		`CREATE TABLE IF NOT EXISTS command_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			command TEXT NOT NULL,
			executed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_command_stats_user_id ON command_stats(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_command_stats_command ON command_stats(command)`,
		`CREATE INDEX IF NOT EXISTS idx_command_stats_executed_at ON command_stats(executed_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	logger.Info("migrations completed", zap.Int("count", len(migrations)))
	return nil
}
