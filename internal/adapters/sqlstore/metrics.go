package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
)

// Metrics implements scoring.MetricStore on the metric_records table.
// Periods are stored as YYYY-MM text, which sorts chronologically.
type Metrics struct {
	d *DB
}

var _ scoring.MetricStore = (*Metrics)(nil)

// Upsert implements scoring.MetricStore.
func (s *Metrics) Upsert(ctx context.Context, rec model.MetricRecord) error {
	values, err := json.Marshal(rec.Values)
	if err != nil {
		return fmt.Errorf("encode metric values: %w", err)
	}
	err = s.d.exec(ctx, `INSERT INTO metric_records (subject_id, period, metric_values, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (subject_id, period) DO UPDATE SET metric_values = excluded.metric_values, updated_at = excluded.updated_at`,
		rec.SubjectID, rec.Period.String(), string(values), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert metric record: %w", err)
	}
	return nil
}

// Record implements scoring.HistorySource.
func (s *Metrics) Record(ctx context.Context, subjectID string, p period.Key) (model.MetricRecord, bool, error) {
	row := s.d.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT period, metric_values, updated_at FROM metric_records WHERE subject_id = ? AND period = ?`),
		subjectID, p.String())
	rec, err := scanRecord(subjectID, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.MetricRecord{}, false, nil
		}
		return model.MetricRecord{}, false, err
	}
	return rec, true, nil
}

// Records implements scoring.HistorySource.
func (s *Metrics) Records(ctx context.Context, subjectID string, from, to period.Key) ([]model.MetricRecord, error) {
	rows, err := s.d.db.QueryContext(ctx,
		s.d.rebind(`SELECT period, metric_values, updated_at FROM metric_records
			WHERE subject_id = ? AND period >= ? AND period <= ? ORDER BY period`),
		subjectID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query metric records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.MetricRecord
	for rows.Next() {
		rec, err := scanRecord(subjectID, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read metric records: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(subjectID string, row scanner) (model.MetricRecord, error) {
	var p, values, updatedAt string
	if err := row.Scan(&p, &values, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.MetricRecord{}, err
		}
		return model.MetricRecord{}, fmt.Errorf("scan metric record: %w", err)
	}
	rec := model.MetricRecord{SubjectID: subjectID}
	var err error
	if rec.Period, err = period.Parse(p); err != nil {
		return model.MetricRecord{}, err
	}
	if err := json.Unmarshal([]byte(values), &rec.Values); err != nil {
		return model.MetricRecord{}, fmt.Errorf("decode metric values: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.MetricRecord{}, err
	}
	return rec, nil
}
