package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CommandCount is one row of the usage summary
type CommandCount struct {
	Command string
	Count   int64
}

// StatsRepository counts bot interactions per command. Only the command name
// is recorded, never the requested video.
type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) Record(ctx context.Context, userID int64, command string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_stats (user_id, command, executed_at) VALUES (?, ?, ?)`,
		userID, command, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record command %q: %w", command, err)
	}
	return nil
}

// CountByUser returns how many commands a user has run
func (r *StatsRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM command_stats WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

func (r *StatsRepository) Total(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM command_stats").Scan(&count)
	return count, err
}

// Top returns the most used commands, ties broken by name
func (r *StatsRepository) Top(ctx context.Context, limit int) ([]CommandCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT command, COUNT(*) AS count
		FROM command_stats
		GROUP BY command
		ORDER BY count DESC, command ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top commands: %w", err)
	}
	defer rows.Close()

	var results []CommandCount
	for rows.Next() {
		var item CommandCount
		if err := rows.Scan(&item.Command, &item.Count); err != nil {
			return nil, fmt.Errorf("failed to scan command count: %w", err)
		}
		results = append(results, item)
	}
	return results, rows.Err()
}
