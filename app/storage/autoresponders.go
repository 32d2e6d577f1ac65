package storage

import (
	"context"
	"fmt"
	"time"

	e "nuclight.org/referral-tg-bot/pkg/entities"
)

func (s *Store) InsertAutoresponder(ctx context.Context, ar e.Autoresponder) (int64, error) {
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO autoresponders (content, delay_hours, media_type, media_id)
		VALUES (?, ?, ?, ?) RETURNING id`,
		ar.Content, delayHours(ar.Delay), string(ar.Media.Kind), ar.Media.FileID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting autoresponder: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateAutoresponder(ctx context.Context, ar e.Autoresponder) error {
	res, err := s.exec(ctx,
		`UPDATE autoresponders SET content = ?, delay_hours = ?, media_type = ?, media_id = ?
		WHERE id = ?`,
		ar.Content, delayHours(ar.Delay), string(ar.Media.Kind), ar.Media.FileID, ar.ID,
	)
	if err != nil {
		return fmt.Errorf("updating autoresponder: %w", err)
	}
	return expectOne(res, "updating autoresponder")
}

func (s *Store) DeleteAutoresponder(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM autoresponders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting autoresponder: %w", err)
	}
	return expectOne(res, "deleting autoresponder")
}

func (s *Store) GetAutoresponder(ctx context.Context, id int64) (e.Autoresponder, error) {
	ar, err := scanAutoresponder(s.queryRow(ctx,
		`SELECT id, content, delay_hours, media_type, media_id FROM autoresponders WHERE id = ?`,
		id,
	))
	if err != nil {
		return e.Autoresponder{}, fmt.Errorf("getting autoresponder: %w", notFound(err))
	}
	return ar, nil
}

func (s *Store) ListAutoresponders(ctx context.Context) ([]e.Autoresponder, error) {
	rows, err := s.query(ctx,
		`SELECT id, content, delay_hours, media_type, media_id FROM autoresponders ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing autoresponders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []e.Autoresponder
	for rows.Next() {
		ar, err := scanAutoresponder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning autoresponder: %w", err)
		}
		list = append(list, ar)
	}

	return list, rows.Err()
}

func (s *Store) IsAutoresponderSent(ctx context.Context, userID, autoresponderID int64) (bool, error) {
	var count int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM sent_autoresponders WHERE user_id = ? AND autoresponder_id = ?`,
		userID, autoresponderID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking autoresponder sent: %w", err)
	}
	return count > 0, nil
}

// MarkAutoresponderSent records the send. A second record for the same pair is
// ignored; the result reports whether this call created the record.
func (s *Store) MarkAutoresponderSent(ctx context.Context, userID, autoresponderID int64, sentAt time.Time) (bool, error) {
	res, err := s.exec(ctx,
		`INSERT INTO sent_autoresponders (user_id, autoresponder_id, sent_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, autoresponder_id) DO NOTHING`,
		userID, autoresponderID, dbTime(sentAt),
	)
	if err != nil {
		return false, fmt.Errorf("marking autoresponder sent: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting affected rows: %w", err)
	}

	return n == 1, nil
}

func scanAutoresponder(row rowScanner) (e.Autoresponder, error) {
	var (
		ar        e.Autoresponder
		hours     int64
		mediaKind string
	)
	if err := row.Scan(&ar.ID, &ar.Content, &hours, &mediaKind, &ar.Media.FileID); err != nil {
		return e.Autoresponder{}, err
	}
	ar.Delay = time.Duration(hours) * time.Hour
	ar.Media.Kind = e.MediaKind(mediaKind)
	return ar, nil
}

func delayHours(d time.Duration) int64 {
	return int64(d / time.Hour)
}
