package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"route-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routesCSV = "Route ID,Date,Miles\nR1,2024-01-01,\"1,200\"\nR2,2024-01-02,N/A\n\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newFile(t *testing.T, dir string, extra string) Collector {
	t.Helper()
	c, err := New(configFromJSON(t, `{"name": "files", "type": "file", "input_directory": "`+dir+`"`+extra+`}`), Options{})
	require.NoError(t, err)
	return c
}

func TestFileFetchReadsFormatsAndQuarantinesBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a_routes.csv"), routesCSV)
	writeFile(t, filepath.Join(dir, "b_routes.json"), `{"routes": [{"route_id": "R3", "route_date": "2024-01-03"}]}`)
	writeFile(t, filepath.Join(dir, "c_broken.json"), `{"routes": [`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	old := filepath.Join(dir, "old.csv")
	writeFile(t, old, routesCSV+"R9,2020-01-01,1\n")
	past := time.Now().AddDate(0, 0, -60)
	require.NoError(t, os.Chtimes(old, past, past))

	c := newFile(t, dir, "")
	res, err := c.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Records, 3)
	assert.Equal(t, "R1", res.Records[0].Fields["Route ID"])
	assert.Equal(t, "1,200", res.Records[0].Fields["Miles"])
	assert.Nil(t, res.Records[1].Fields["Miles"])
	assert.Equal(t, "R3", res.Records[2].Fields["route_id"])
	assert.Equal(t, []string{filepath.Join(dir, "a_routes.csv"), filepath.Join(dir, "b_routes.json")}, res.Origins)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.KindMalformedInput, res.Warnings[0].Kind)
	assert.FileExists(t, filepath.Join(dir, "errors", "c_broken.json"))
	assert.FileExists(t, filepath.Join(dir, "errors", "c_broken.json.errors"))
	assert.FileExists(t, old)
}

func TestFileFetchSkipsIdenticalFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.csv"), routesCSV)
	writeFile(t, filepath.Join(dir, "b.csv"), routesCSV)

	res, err := newFile(t, dir, "").Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Len(t, res.Origins, 2)

	res, err = newFile(t, dir, `, "skip_duplicates": false`).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 4)
}

func TestFileAcknowledgeMovesOnlyGivenOrigins(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	writeFile(t, a, routesCSV)
	writeFile(t, b, "route_id,route_date\nR5,2024-02-02\n")

	c := newFile(t, dir, "")
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, a)

	require.NoError(t, c.Acknowledge(context.Background(), []string{a}))
	assert.NoFileExists(t, a)
	assert.FileExists(t, filepath.Join(dir, "processed", "a.csv"))
	assert.FileExists(t, b)
}

func TestFileMoveDisabled(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	writeFile(t, a, routesCSV)

	c := newFile(t, dir, `, "move_processed_files": false`)
	require.NoError(t, c.Acknowledge(context.Background(), []string{a}))
	assert.FileExists(t, a)
}

func TestFileMissingDirectoryIsRetryable(t *testing.T) {
	c := newFile(t, filepath.Join(t.TempDir(), "missing"), "")
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
	assert.True(t, model.IsRetryable(err))
}

func TestFileRecursivePatternSkipsArchive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2024", "jan.csv"), routesCSV)
	writeFile(t, filepath.Join(dir, "processed", "done.csv"), routesCSV+"R7,2024-01-07,1\n")

	res, err := newFile(t, dir, `, "file_patterns": ["**/*.csv"]`).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
}
