package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"route-pipeline/internal/model"
)

// RunInfo is the list view of a stored run.
type RunInfo struct {
	ID         string                 `json:"id"`
	Status     model.CollectionStatus `json:"status"`
	State      model.RunState         `json:"state"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// CollectorStatus is the last stored outcome of a collector.
type CollectorStatus struct {
	Name            string                 `json:"name"`
	Type            model.CollectorType    `json:"type"`
	Status          model.CollectionStatus `json:"status"`
	RecordsAccepted int                    `json:"records_accepted"`
	LastError       string                 `json:"last_error,omitempty"`
	FinishedAt      time.Time              `json:"finished_at"`
	Collections     int                    `json:"collections"`
	TotalAccepted   int                    `json:"total_accepted"`
}

// SaveRun stores a sealed run report and its per-collector results.
func (s *Store) SaveRun(ctx context.Context, report *model.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, status, state, started_at, finished_at, report) VALUES (?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Status, report.State, report.StartedAt.UTC(), report.FinishedAt.UTC(), string(data))
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, r := range report.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO collection_results (run_id, collector_name, collector_type, status, records_fetched,
				records_accepted, records_rejected, duplicates_skipped, attempts, last_error, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, r.CollectorName, r.CollectorType, r.Status, r.RecordsFetched,
			r.RecordsAccepted, r.RecordsRejected, r.DuplicatesSkipped, r.Attempts, r.LastError(), r.FinishedAt.UTC())
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, state, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		var ri RunInfo
		if err := rows.Scan(&ri.ID, &ri.Status, &ri.State, &ri.StartedAt, &ri.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, ri)
	}
	return runs, rows.Err()
}

// GetRun fetches the full report of a run.
func (s *Store) GetRun(ctx context.Context, id string) (*model.RunReport, error) {
	return s.scanReport(s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, id))
}

// LatestRun fetches the most recent run report.
func (s *Store) LatestRun(ctx context.Context) (*model.RunReport, error) {
	return s.scanReport(s.db.QueryRowContext(ctx, `SELECT report FROM runs ORDER BY started_at DESC LIMIT 1`))
}

func (s *Store) scanReport(row *sql.Row) (*model.RunReport, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var report model.RunReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// CollectorStatuses returns the latest outcome and totals per collector.
func (s *Store) CollectorStatuses(ctx context.Context) (map[string]CollectorStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.collector_name, c.collector_type, c.status, c.records_accepted, c.last_error, c.finished_at,
			agg.n, agg.total
		FROM collection_results c
		JOIN (
			SELECT collector_name, MAX(id) AS last_id, COUNT(*) AS n, SUM(records_accepted) AS total
			FROM collection_results GROUP BY collector_name
		) agg ON agg.last_id = c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]CollectorStatus)
	for rows.Next() {
		var cs CollectorStatus
		var lastErr sql.NullString
		if err := rows.Scan(&cs.Name, &cs.Type, &cs.Status, &cs.RecordsAccepted, &lastErr, &cs.FinishedAt,
			&cs.Collections, &cs.TotalAccepted); err != nil {
			return nil, err
		}
		cs.LastError = lastErr.String
		out[cs.Name] = cs
	}
	return out, rows.Err()
}
