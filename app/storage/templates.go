package storage

import (
	"context"
	"fmt"

	e "nuclight.org/referral-tg-bot/pkg/entities"
)

func scanTemplate(row rowScanner) (e.Template, error) {
	var (
		t         e.Template
		mediaKind string
	)
	err := row.Scan(&t.ID, &t.Type, &t.Content, &mediaKind, &t.Media.FileID)
	if err != nil {
		return e.Template{}, err
	}
	t.Media.Kind = e.MediaKind(mediaKind)
	return t, nil
}

func (s *Store) GetTemplateByType(ctx context.Context, templateType string) (e.Template, error) {
	t, err := scanTemplate(s.queryRow(ctx,
		`SELECT template_id, template_type, content, media_type, media_id
		FROM message_templates WHERE template_type = ?`,
		templateType,
	))
	if err != nil {
		return e.Template{}, fmt.Errorf("getting template %q: %w", templateType, notFound(err))
	}
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]e.Template, error) {
	rows, err := s.query(ctx,
		`SELECT template_id, template_type, content, media_type, media_id
		FROM message_templates ORDER BY template_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []e.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template: %w", err)
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

func (s *Store) InsertTemplate(ctx context.Context, t e.Template) (int64, error) {
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO message_templates (template_type, content, media_type, media_id)
		VALUES (?, ?, ?, ?) RETURNING template_id`,
		t.Type, t.Content, string(t.Media.Kind), t.Media.FileID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting template: %w", err)
	}
	return id, nil
}

// UpdateTemplate replaces content and media of a template in one statement.
func (s *Store) UpdateTemplate(ctx context.Context, templateID int64, content string, media e.Media) error {
	res, err := s.exec(ctx,
		`UPDATE message_templates SET content = ?, media_type = ?, media_id = ?
		WHERE template_id = ?`,
		content, string(media.Kind), media.FileID, templateID,
	)
	if err != nil {
		return fmt.Errorf("updating template: %w", err)
	}
	return expectOne(res, "updating template")
}
