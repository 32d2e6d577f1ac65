package storage

import (
	"context"
	"fmt"
	"time"

	e "nuclight.org/referral-tg-bot/pkg/entities"
)

// LogMessage appends an outbound message record for analytics.
func (s *Store) LogMessage(ctx context.Context, userID int64, kind e.MessageKind, sentAt time.Time) error {
	_, err := s.exec(ctx,
		`INSERT INTO message_logs (user_id, message_type, sent_at) VALUES (?, ?, ?)`,
		userID, string(kind), dbTime(sentAt),
	)
	if err != nil {
		return fmt.Errorf("logging message: %w", err)
	}
	return nil
}

// MarkLatestOpened stamps opened_at on the newest logged message of the user,
// unless it is already stamped.
func (s *Store) MarkLatestOpened(ctx context.Context, telegramID int64, at time.Time) error {
	return s.markLatest(ctx, "opened_at", telegramID, at)
}

// MarkLatestResponded stamps responded_at on the newest logged message of the user.
func (s *Store) MarkLatestResponded(ctx context.Context, telegramID int64, at time.Time) error {
	return s.markLatest(ctx, "responded_at", telegramID, at)
}

// markLatest is called with a fixed column name only.
func (s *Store) markLatest(ctx context.Context, column string, telegramID int64, at time.Time) error {
	_, err := s.exec(ctx,
		`UPDATE message_logs SET `+column+` = ?
		WHERE `+column+` IS NULL AND id = (
			SELECT MAX(l.id) FROM message_logs l
			JOIN users u ON u.user_id = l.user_id
			WHERE u.telegram_id = ?
		)`,
		dbTime(at), telegramID,
	)
	if err != nil {
		return fmt.Errorf("stamping %s: %w", column, err)
	}
	return nil
}

// AddUserFile records an accepted upload against the user's storage quota.
func (s *Store) AddUserFile(ctx context.Context, userID, size int64, uploadedAt time.Time) error {
	_, err := s.exec(ctx,
		`INSERT INTO user_files (user_id, file_size, uploaded_at) VALUES (?, ?, ?)`,
		userID, size, dbTime(uploadedAt),
	)
	if err != nil {
		return fmt.Errorf("adding user file: %w", err)
	}
	return nil
}

// UserStorageSize returns the total bytes uploaded by the user.
func (s *Store) UserStorageSize(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := s.queryRow(ctx,
		`SELECT COALESCE(SUM(file_size), 0) FROM user_files WHERE user_id = ?`,
		userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("getting user storage size: %w", err)
	}
	return total, nil
}
