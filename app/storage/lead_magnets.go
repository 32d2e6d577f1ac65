package storage

import (
	"context"
	"fmt"

	e "nuclight.org/referral-tg-bot/pkg/entities"
)

func (s *Store) InsertLeadMagnet(ctx context.Context, lm e.LeadMagnet) (int64, error) {
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO lead_magnets (name, description, image_id) VALUES (?, ?, ?) RETURNING id`,
		lm.Name, lm.Description, lm.ImageID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting lead magnet: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateLeadMagnet(ctx context.Context, lm e.LeadMagnet) error {
	res, err := s.exec(ctx,
		`UPDATE lead_magnets SET name = ?, description = ?, image_id = ? WHERE id = ?`,
		lm.Name, lm.Description, lm.ImageID, lm.ID,
	)
	if err != nil {
		return fmt.Errorf("updating lead magnet: %w", err)
	}
	return expectOne(res, "updating lead magnet")
}

func (s *Store) DeleteLeadMagnet(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM lead_magnets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting lead magnet: %w", err)
	}
	return expectOne(res, "deleting lead magnet")
}

func (s *Store) GetLeadMagnet(ctx context.Context, id int64) (e.LeadMagnet, error) {
	var lm e.LeadMagnet
	err := s.queryRow(ctx,
		`SELECT id, name, description, image_id FROM lead_magnets WHERE id = ?`,
		id,
	).Scan(&lm.ID, &lm.Name, &lm.Description, &lm.ImageID)
	if err != nil {
		return e.LeadMagnet{}, fmt.Errorf("getting lead magnet: %w", notFound(err))
	}
	return lm, nil
}

func (s *Store) ListLeadMagnets(ctx context.Context) ([]e.LeadMagnet, error) {
	rows, err := s.query(ctx, `SELECT id, name, description, image_id FROM lead_magnets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing lead magnets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []e.LeadMagnet
	for rows.Next() {
		var lm e.LeadMagnet
		if err = rows.Scan(&lm.ID, &lm.Name, &lm.Description, &lm.ImageID); err != nil {
			return nil, fmt.Errorf("scanning lead magnet: %w", err)
		}
		list = append(list, lm)
	}

	return list, rows.Err()
}
