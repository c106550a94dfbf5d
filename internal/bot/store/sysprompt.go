package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SystemPrompt returns the current system prompt (the most recently inserted
// row wins), or the empty string when none has been set.
func (s *Store) SystemPrompt(ctx context.Context) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM system_prompt ORDER BY id DESC LIMIT 1
	`).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get system prompt: %w", err)
	}
	return content, nil
}

// SetSystemPrompt replaces the current system prompt by inserting a new row.
// Older rows are retained; only the newest is ever read.
func (s *Store) SetSystemPrompt(ctx context.Context, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_prompt (content, created_at) VALUES (?, ?)
	`, content, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set system prompt: %w", err)
	}
	return nil
}
