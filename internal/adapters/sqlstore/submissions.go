package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opsboard/pulse/internal/domain/model"
)

// Submissions stores final submissions in the submissions table.
type Submissions struct {
	d *DB
}

// Upsert stores sub. An existing row keeps its submitted_at.
func (s *Submissions) Upsert(ctx context.Context, sub model.Submission) error {
	fields, err := json.Marshal(sub.Fields)
	if err != nil {
		return fmt.Errorf("encode submission fields: %w", err)
	}
	err = s.d.exec(ctx, `INSERT INTO submissions (subject_key, period, fields, submitted_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (subject_key, period) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		sub.Identity.SubjectKey, sub.Identity.Period.String(), string(fields),
		formatTime(sub.SubmittedAt), formatTime(sub.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// Fetch returns the submission for id; found is false when absent.
func (s *Submissions) Fetch(ctx context.Context, id model.Identity) (model.Submission, bool, error) {
	row := s.d.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT fields, submitted_at, updated_at FROM submissions WHERE subject_key = ? AND period = ?`),
		id.SubjectKey, id.Period.String())
	var fields, submittedAt, updatedAt string
	if err := row.Scan(&fields, &submittedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Submission{}, false, nil
		}
		return model.Submission{}, false, fmt.Errorf("fetch submission: %w", err)
	}
	sub := model.Submission{Identity: id}
	if err := json.Unmarshal([]byte(fields), &sub.Fields); err != nil {
		return model.Submission{}, false, fmt.Errorf("decode submission fields: %w", err)
	}
	var err error
	if sub.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return model.Submission{}, false, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Submission{}, false, err
	}
	return sub, true, nil
}

// Exists reports whether a submission is stored for id.
func (s *Submissions) Exists(ctx context.Context, id model.Identity) (bool, error) {
	row := s.d.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT COUNT(*) FROM submissions WHERE subject_key = ? AND period = ?`),
		id.SubjectKey, id.Period.String())
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("check submission: %w", err)
	}
	return n > 0, nil
}
