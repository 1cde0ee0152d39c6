package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"route-pipeline/internal/dedup"
	"route-pipeline/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func route(id string) model.CanonicalRecord {
	return model.CanonicalRecord{
		"route_id":    id,
		"route_date":  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		"driver_name": "Ann",
		"revenue":     decimal.RequireFromString("12.50"),
	}
}

func TestPersistUpsertsByFingerprint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	errs := s.Persist(ctx, "files", []model.CanonicalRecord{route("R1"), route("R2")})
	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])

	errs = s.Persist(ctx, "files", []model.CanonicalRecord{route("R1")})
	assert.NoError(t, errs[0])

	n, err := s.CountRoutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFingerprintRoundTripThroughFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f := dedup.NewFilter(s)
	require.NoError(t, f.Load(ctx))
	assert.True(t, f.Claim("abc"))
	require.NoError(t, f.Flush(ctx))
	require.NoError(t, s.SaveFingerprints(ctx, []string{"abc"}))

	fps, err := s.LoadFingerprints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, fps)
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	start := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	older := &model.RunReport{RunID: "run-1", State: model.StateDone, Status: model.StatusSuccess, StartedAt: start, FinishedAt: start.Add(time.Second),
		Results: []model.CollectionResult{{CollectorName: "files", CollectorType: model.CollectorFile, Status: model.StatusSuccess, RecordsAccepted: 3}}}
	newer := &model.RunReport{RunID: "run-2", State: model.StateDone, Status: model.StatusFailed, StartedAt: start.Add(30 * time.Second), FinishedAt: start.Add(31 * time.Second),
		Results: []model.CollectionResult{{CollectorName: "files", CollectorType: model.CollectorFile, Status: model.StatusFailed,
			Errors: []model.ErrorDetail{{Kind: model.KindSourceUnavailable, Message: "down"}}}}}
	require.NoError(t, s.SaveRun(ctx, older))
	require.NoError(t, s.SaveRun(ctx, newer))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, model.StatusFailed, runs[0].Status)

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Results[0].RecordsAccepted)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	statuses, err := s.CollectorStatuses(ctx)
	require.NoError(t, err)
	cs := statuses["files"]
	assert.Equal(t, model.StatusFailed, cs.Status)
	assert.Equal(t, "down", cs.LastError)
	assert.Equal(t, 2, cs.Collections)
	assert.Equal(t, 3, cs.TotalAccepted)
}
