// Package store keeps accepted routes, fingerprints and run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"route-pipeline/internal/dedup"
	"route-pipeline/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS routes (
		fingerprint TEXT PRIMARY KEY,
		route_id TEXT NOT NULL,
		route_date TEXT NOT NULL,
		driver_name TEXT,
		collector TEXT,
		data TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS fingerprints (
		fingerprint TEXT PRIMARY KEY,
		created_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT,
		state TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		report TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS collection_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		collector_name TEXT,
		collector_type TEXT,
		status TEXT,
		records_fetched INTEGER,
		records_accepted INTEGER,
		records_rejected INTEGER,
		duplicates_skipped INTEGER,
		attempts INTEGER,
		last_error TEXT,
		finished_at DATETIME
	);`,
	`CREATE INDEX IF NOT EXISTS idx_results_collector ON collection_results(collector_name, finished_at);`,
}

// InitDB opens the database at dbPath and creates tables if not exists.
func InitDB(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Persist upserts records in one transaction and returns one error slot per record.
func (s *Store) Persist(ctx context.Context, collector string, recs []model.CanonicalRecord) []error {
	errs := make([]error, len(recs))
	fail := func(err error) []error {
		for i := range errs {
			errs[i] = model.NewError(model.KindPersistence, collector, err)
		}
		return errs
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO routes (fingerprint, route_id, route_date, driver_name, collector, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			data = excluded.data,
			collector = excluded.collector,
			updated_at = excluded.updated_at`)
	if err != nil {
		tx.Rollback()
		return fail(err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			errs[i] = model.NewError(model.KindPersistence, collector, err)
			continue
		}
		_, err = stmt.ExecContext(ctx,
			dedup.Fingerprint(rec),
			rec.String(model.FieldRouteID),
			rec.Date(model.FieldRouteDate).Format("2006-01-02"),
			rec.String(model.FieldDriverName),
			collector, string(data), now, now)
		if err != nil {
			errs[i] = model.NewError(model.KindPersistence, collector, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	return errs
}

// CountRoutes returns the number of stored routes.
func (s *Store) CountRoutes(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM routes`).Scan(&n)
	return n, err
}

// LoadFingerprints returns every stored fingerprint.
func (s *Store) LoadFingerprints(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fingerprint FROM fingerprints`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// SaveFingerprints stores new fingerprints, ignoring known ones.
func (s *Store) SaveFingerprints(ctx context.Context, fps []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, fp := range fps {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO fingerprints (fingerprint, created_at) VALUES (?, ?)`, fp, now); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
