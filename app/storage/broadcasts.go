package storage

import (
	"context"
	"fmt"
	"time"

	e "nuclight.org/referral-tg-bot/pkg/entities"
)

func (s *Store) InsertBroadcast(ctx context.Context, b e.Broadcast) (int64, error) {
	status := b.Status
	if status == "" {
		status = e.BroadcastScheduled
	}

	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO broadcasts (template_id, tag, scheduled_time, status)
		VALUES (?, ?, ?, ?) RETURNING broadcast_id`,
		b.TemplateID, b.Tag, dbTime(b.ScheduledTime), string(status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting broadcast: %w", err)
	}
	return id, nil
}

// ListDueBroadcasts returns scheduled broadcasts whose time is not after now,
// joined with their template content.
func (s *Store) ListDueBroadcasts(ctx context.Context, now time.Time) ([]e.DueBroadcast, error) {
	rows, err := s.query(ctx,
		`SELECT b.broadcast_id, b.template_id, b.tag, b.scheduled_time, b.status,
			t.content, t.media_type, t.media_id
		FROM broadcasts b
		JOIN message_templates t ON t.template_id = b.template_id
		WHERE b.status = ? AND b.scheduled_time <= ?
		ORDER BY b.scheduled_time, b.broadcast_id`,
		string(e.BroadcastScheduled), dbTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("listing due broadcasts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var due []e.DueBroadcast
	for rows.Next() {
		var (
			b         e.DueBroadcast
			status    string
			mediaKind string
		)
		err = rows.Scan(
			&b.ID, &b.TemplateID, &b.Tag, &b.ScheduledTime, &status,
			&b.Content, &mediaKind, &b.Media.FileID,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning due broadcast: %w", err)
		}
		b.Status = e.BroadcastStatus(status)
		b.Media.Kind = e.MediaKind(mediaKind)
		due = append(due, b)
	}

	return due, rows.Err()
}

// MarkBroadcastSent moves a scheduled broadcast to sent. It reports false when
// the broadcast was not in the scheduled state.
func (s *Store) MarkBroadcastSent(ctx context.Context, broadcastID int64, sentAt time.Time) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE broadcasts SET status = ?, sent_at = ?
		WHERE broadcast_id = ? AND status = ?`,
		string(e.BroadcastSent), dbTime(sentAt), broadcastID, string(e.BroadcastScheduled),
	)
	if err != nil {
		return false, fmt.Errorf("marking broadcast sent: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting affected rows: %w", err)
	}

	return n == 1, nil
}

func (s *Store) GetBroadcast(ctx context.Context, broadcastID int64) (e.Broadcast, error) {
	var (
		b      e.Broadcast
		status string
	)
	err := s.queryRow(ctx,
		`SELECT broadcast_id, template_id, tag, scheduled_time, status
		FROM broadcasts WHERE broadcast_id = ?`,
		broadcastID,
	).Scan(&b.ID, &b.TemplateID, &b.Tag, &b.ScheduledTime, &status)
	if err != nil {
		return e.Broadcast{}, fmt.Errorf("getting broadcast: %w", notFound(err))
	}
	b.Status = e.BroadcastStatus(status)
	return b, nil
}
