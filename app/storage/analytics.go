package storage

import (
	"context"
	"fmt"
	"time"

	e "nuclight.org/referral-tg-bot/pkg/entities"
)

func (s *Store) countBetween(ctx context.Context, op, query string, from, to time.Time) (int, error) {
	var n int
	if err := s.queryRow(ctx, query, dbTime(from), dbTime(to)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *Store) NewSubscribersCount(ctx context.Context, from, to time.Time) (int, error) {
	return s.countBetween(ctx, "counting new subscribers",
		`SELECT COUNT(*) FROM users WHERE joined_at BETWEEN ? AND ?`, from, to)
}

func (s *Store) SentMessagesCount(ctx context.Context, from, to time.Time) (int, error) {
	return s.countBetween(ctx, "counting sent messages",
		`SELECT COUNT(*) FROM message_logs WHERE sent_at BETWEEN ? AND ?`, from, to)
}

// UserActivity returns the number of logged messages per user in the period.
func (s *Store) UserActivity(ctx context.Context, from, to time.Time) ([]e.UserActivity, error) {
	rows, err := s.query(ctx,
		`SELECT user_id, COUNT(*) FROM message_logs
		WHERE sent_at BETWEEN ? AND ?
		GROUP BY user_id ORDER BY user_id`,
		dbTime(from), dbTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("getting user activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var activity []e.UserActivity
	for rows.Next() {
		var a e.UserActivity
		if err = rows.Scan(&a.UserID, &a.Messages); err != nil {
			return nil, fmt.Errorf("scanning user activity: %w", err)
		}
		activity = append(activity, a)
	}

	return activity, rows.Err()
}

// OpenRate is the percentage of messages sent in the period that were opened.
func (s *Store) OpenRate(ctx context.Context, from, to time.Time) (float64, error) {
	return s.rate(ctx, "opened_at", from, to)
}

// ResponseRate is the percentage of messages sent in the period that got a reply.
func (s *Store) ResponseRate(ctx context.Context, from, to time.Time) (float64, error) {
	return s.rate(ctx, "responded_at", from, to)
}

func (s *Store) rate(ctx context.Context, column string, from, to time.Time) (float64, error) {
	var total, hit int
	err := s.queryRow(ctx,
		`SELECT COUNT(*), COUNT(`+column+`) FROM message_logs WHERE sent_at BETWEEN ? AND ?`,
		dbTime(from), dbTime(to),
	).Scan(&total, &hit)
	if err != nil {
		return 0, fmt.Errorf("getting %s rate: %w", column, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(hit) / float64(total) * 100, nil
}

// LeadMagnetEffectiveness counts users per chosen lead magnet.
func (s *Store) LeadMagnetEffectiveness(ctx context.Context) ([]e.LeadMagnetStat, error) {
	rows, err := s.query(ctx,
		`SELECT lm.name, COUNT(*) FROM users u
		JOIN lead_magnets lm ON lm.id = u.lead_magnet_id
		GROUP BY lm.id, lm.name ORDER BY lm.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("getting lead magnet effectiveness: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []e.LeadMagnetStat
	for rows.Next() {
		var st e.LeadMagnetStat
		if err = rows.Scan(&st.Name, &st.Users); err != nil {
			return nil, fmt.Errorf("scanning lead magnet stat: %w", err)
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

// Invitations counts invitees per inviter, most active first.
func (s *Store) Invitations(ctx context.Context) ([]e.InviterStat, error) {
	rows, err := s.query(ctx,
		`SELECT inviter.username, COUNT(invitee.user_id) AS invitations
		FROM users inviter
		JOIN users invitee ON invitee.invited_by = inviter.user_id
		GROUP BY inviter.user_id, inviter.username
		ORDER BY invitations DESC, inviter.user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("getting invitations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []e.InviterStat
	for rows.Next() {
		var st e.InviterStat
		if err = rows.Scan(&st.Username, &st.Invitations); err != nil {
			return nil, fmt.Errorf("scanning inviter stat: %w", err)
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

// Summary builds the analytics report for the period.
func (s *Store) Summary(ctx context.Context, from, to time.Time) (e.Summary, error) {
	var (
		sum e.Summary
		err error
	)

	if sum.NewSubscribers, err = s.NewSubscribersCount(ctx, from, to); err != nil {
		return e.Summary{}, err
	}
	if sum.SentMessages, err = s.SentMessagesCount(ctx, from, to); err != nil {
		return e.Summary{}, err
	}

	activity, err := s.UserActivity(ctx, from, to)
	if err != nil {
		return e.Summary{}, err
	}
	sum.ActiveUsers = len(activity)

	if sum.OpenRate, err = s.OpenRate(ctx, from, to); err != nil {
		return e.Summary{}, err
	}
	if sum.ResponseRate, err = s.ResponseRate(ctx, from, to); err != nil {
		return e.Summary{}, err
	}
	if sum.LeadMagnets, err = s.LeadMagnetEffectiveness(ctx); err != nil {
		return e.Summary{}, err
	}
	if sum.Inviters, err = s.Invitations(ctx); err != nil {
		return e.Summary{}, err
	}

	return sum, nil
}
