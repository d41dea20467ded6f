package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/model"
)

// Drafts implements draft.Persistence on the drafts table.
type Drafts struct {
	d *DB
}

var _ draft.Persistence = (*Drafts)(nil)

// Upsert implements draft.Persistence.
func (s *Drafts) Upsert(ctx context.Context, p draft.Payload) error {
	fields, err := json.Marshal(p.Fields)
	if err != nil {
		return fmt.Errorf("encode draft fields: %w", err)
	}
	err = s.d.exec(ctx, `INSERT INTO drafts (subject_key, period, fields, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (subject_key, period) DO UPDATE SET fields = excluded.fields, saved_at = excluded.saved_at`,
		p.Identity.SubjectKey, p.Identity.Period.String(), string(fields), formatTime(p.SavedAt))
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

// Fetch implements draft.Persistence.
func (s *Drafts) Fetch(ctx context.Context, id model.Identity) (draft.Payload, bool, error) {
	row := s.d.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT fields, saved_at FROM drafts WHERE subject_key = ? AND period = ?`),
		id.SubjectKey, id.Period.String())
	var fields, savedAt string
	if err := row.Scan(&fields, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return draft.Payload{}, false, nil
		}
		return draft.Payload{}, false, fmt.Errorf("fetch draft: %w", err)
	}
	p := draft.Payload{Identity: id, IsDraft: true}
	if err := json.Unmarshal([]byte(fields), &p.Fields); err != nil {
		return draft.Payload{}, false, fmt.Errorf("decode draft fields: %w", err)
	}
	at, err := parseTime(savedAt)
	if err != nil {
		return draft.Payload{}, false, err
	}
	p.SavedAt = at
	return p, true, nil
}

// Delete implements draft.Persistence.
func (s *Drafts) Delete(ctx context.Context, id model.Identity) error {
	if err := s.d.exec(ctx, `DELETE FROM drafts WHERE subject_key = ? AND period = ?`,
		id.SubjectKey, id.Period.String()); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
