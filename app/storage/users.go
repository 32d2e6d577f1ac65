package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	e "nuclight.org/referral-tg-bot/pkg/entities"
)

const userColumns = `user_id, telegram_id, username, first_name, last_name, joined_at,
	is_admin, referrals, invited_by, received_gift, lead_magnet_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (e.User, error) {
	var (
		u          e.User
		invitedBy  sql.NullInt64
		leadMagnet sql.NullInt64
	)
	err := row.Scan(
		&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.JoinedAt,
		&u.IsAdmin, &u.Referrals, &invitedBy, &u.ReceivedGift, &leadMagnet,
	)
	if err != nil {
		return e.User{}, err
	}
	u.InvitedBy = ptrInt64(invitedBy)
	u.LeadMagnetID = ptrInt64(leadMagnet)
	return u, nil
}

func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (e.User, error) {
	u, err := scanUser(s.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`,
		telegramID,
	))
	if err != nil {
		return e.User{}, fmt.Errorf("getting user by telegram id: %w", notFound(err))
	}

	u.Tags, err = s.ListUserTags(ctx, u.ID)
	if err != nil {
		return e.User{}, err
	}

	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID int64) (e.User, error) {
	u, err := scanUser(s.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ?`,
		userID,
	))
	if err != nil {
		return e.User{}, fmt.Errorf("getting user by id: %w", notFound(err))
	}

	u.Tags, err = s.ListUserTags(ctx, u.ID)
	if err != nil {
		return e.User{}, err
	}

	return u, nil
}

// InsertUser stores a new subscriber and its initial tags, returning the stored row.
func (s *Store) InsertUser(ctx context.Context, nu e.NewUser) (e.User, error) {
	var userID int64
	err := s.queryRow(ctx,
		`INSERT INTO users (
			telegram_id, username, first_name, last_name, joined_at, is_admin, invited_by
		) VALUES (
			?, ?, ?, ?, ?, ?, ?
		) RETURNING user_id`,
		nu.TelegramID, nu.Username, nu.FirstName, nu.LastName, dbTime(nu.JoinedAt),
		nu.IsAdmin, nullInt64(nu.InvitedBy),
	).Scan(&userID)
	if err != nil {
		return e.User{}, fmt.Errorf("inserting user: %w", err)
	}

	if err = s.AddUserTags(ctx, userID, nu.Tags...); err != nil {
		return e.User{}, err
	}

	return s.GetUserByID(ctx, userID)
}

func (s *Store) ListUsers(ctx context.Context) ([]e.User, error) {
	rows, err := s.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	users, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return users, s.attachTags(ctx, users)
}

// ListUsersByTag returns every user carrying the tag.
func (s *Store) ListUsersByTag(ctx context.Context, tag string) ([]e.User, error) {
	rows, err := s.query(ctx,
		`SELECT u.user_id, u.telegram_id, u.username, u.first_name, u.last_name, u.joined_at,
			u.is_admin, u.referrals, u.invited_by, u.received_gift, u.lead_magnet_id
		FROM users u
		JOIN user_tags t ON t.user_id = u.user_id
		WHERE t.tag = ?
		ORDER BY u.user_id`,
		tag,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users by tag: %w", err)
	}

	users, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("listing users by tag: %w", err)
	}

	return users, s.attachTags(ctx, users)
}

func (s *Store) ListAdmins(ctx context.Context) ([]e.User, error) {
	rows, err := s.query(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_admin = TRUE ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}

	users, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}

	return users, nil
}

// SetAdmin grants or revokes the admin flag. Unknown users are ignored.
func (s *Store) SetAdmin(ctx context.Context, telegramID int64, isAdmin bool) error {
	_, err := s.exec(ctx,
		`UPDATE users SET is_admin = ? WHERE telegram_id = ?`,
		isAdmin, telegramID,
	)
	if err != nil {
		return fmt.Errorf("setting admin flag: %w", err)
	}
	return nil
}

func (s *Store) IncrementReferrals(ctx context.Context, userID int64) error {
	res, err := s.exec(ctx,
		`UPDATE users SET referrals = referrals + 1 WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("incrementing referrals: %w", err)
	}
	return expectOne(res, "incrementing referrals")
}

func (s *Store) SetUserLeadMagnet(ctx context.Context, telegramID, leadMagnetID int64) error {
	res, err := s.exec(ctx,
		`UPDATE users SET lead_magnet_id = ? WHERE telegram_id = ?`,
		leadMagnetID, telegramID,
	)
	if err != nil {
		return fmt.Errorf("setting user lead magnet: %w", err)
	}
	return expectOne(res, "setting user lead magnet")
}

// MarkGiftReceived flips received_gift for a user that has reached required
// referrals. It reports whether this call performed the flip, so concurrent
// callers can never both observe a transition.
func (s *Store) MarkGiftReceived(ctx context.Context, userID int64, required int) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE users SET received_gift = TRUE
		WHERE user_id = ? AND received_gift = FALSE AND referrals >= ?`,
		userID, required,
	)
	if err != nil {
		return false, fmt.Errorf("marking gift received: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting affected rows: %w", err)
	}

	return n == 1, nil
}

// AddUserTags adds tags to the user's tag set; tags already present are kept as is.
func (s *Store) AddUserTags(ctx context.Context, userID int64, tags ...string) error {
	now := dbTime(time.Now())
	for _, tag := range tags {
		_, err := s.exec(ctx,
			`INSERT INTO user_tags (user_id, tag, added_at) VALUES (?, ?, ?)
			ON CONFLICT (user_id, tag) DO NOTHING`,
			userID, tag, now,
		)
		if err != nil {
			return fmt.Errorf("adding user tag %q: %w", tag, err)
		}
	}
	return nil
}

func (s *Store) ListUserTags(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.query(ctx,
		`SELECT tag FROM user_tags WHERE user_id = ? ORDER BY added_at, tag`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing user tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []string
	for rows.Next() {
		var tag string
		if err = rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scanning user tag: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, rows.Err()
}

// ListTags returns every distinct tag in use.
func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT DISTINCT tag FROM user_tags ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []string
	for rows.Next() {
		var tag string
		if err = rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, rows.Err()
}

func (s *Store) attachTags(ctx context.Context, users []e.User) error {
	if len(users) == 0 {
		return nil
	}

	rows, err := s.query(ctx, `SELECT user_id, tag FROM user_tags ORDER BY added_at, tag`)
	if err != nil {
		return fmt.Errorf("listing tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byUser := make(map[int64][]string, len(users))
	for rows.Next() {
		var (
			userID int64
			tag    string
		)
		if err = rows.Scan(&userID, &tag); err != nil {
			return fmt.Errorf("scanning tag: %w", err)
		}
		byUser[userID] = append(byUser[userID], tag)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterating tags: %w", err)
	}

	for i := range users {
		users[i].Tags = byUser[users[i].ID]
	}

	return nil
}

func collectUsers(rows *sql.Rows) ([]e.User, error) {
	defer func() { _ = rows.Close() }()

	var users []e.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: getting affected rows: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	return nil
}
