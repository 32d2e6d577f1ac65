package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// GetConfigInt reads an integer config value, returning defaultValue when the
// key is not set.
func (s *Store) GetConfigInt(ctx context.Context, name string, defaultValue int) (int, error) {
	var raw string
	err := s.queryRow(ctx, `SELECT value FROM config WHERE name = ?`, name).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return defaultValue, nil
		}
		return 0, fmt.Errorf("getting config %q: %w", name, err)
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing config %q: %w", name, err)
	}

	return v, nil
}

// SetConfigValue upserts a config value.
func (s *Store) SetConfigValue(ctx context.Context, name, value string) error {
	_, err := s.exec(ctx,
		`INSERT INTO config (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		name, value,
	)
	if err != nil {
		return fmt.Errorf("setting config %q: %w", name, err)
	}
	return nil
}
