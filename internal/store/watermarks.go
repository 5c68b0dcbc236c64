package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rfp-mail-ingest/internal/models"
)

// Get returns the stored history cursor of a mailbox
func (s *Store) Get(ctx context.Context, mailbox string) (models.Cursor, bool, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT history_cursor FROM watermarks WHERE mailbox = ?
	`), watermarkKey(mailbox)).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get watermark: %w", err)
	}
	return models.Cursor(cursor), true, nil
}

// Set stores the history cursor of a mailbox
func (s *Store) Set(ctx context.Context, mailbox string, cursor models.Cursor) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO watermarks (mailbox, history_cursor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (mailbox) DO UPDATE SET history_cursor = excluded.history_cursor, updated_at = excluded.updated_at
	`), watermarkKey(mailbox), string(cursor), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	return nil
}

func watermarkKey(mailbox string) string {
	return strings.ToLower(strings.TrimSpace(mailbox))
}
