package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	input := filepath.Join(dir, "input")
	require.NoError(t, os.MkdirAll(input, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(input, "monday.csv"),
		[]byte("route_id,route_date,total_miles\nR1,2024-03-04,120\nR2,2024-03-04,85\n,2024-03-04,10\n"), 0644))

	doc := `{
		"collectors": {
			"daily_files": {"type": "file", "input_directory": "` + filepath.ToSlash(input) + `"},
			"tms": {"type": "api", "enabled": false, "base_url": "http://127.0.0.1:1", "endpoints": {"routes": {"url": "/routes"}}}
		},
		"settings": {
			"database_path": "` + filepath.ToSlash(filepath.Join(dir, "routes.db")) + `",
			"default_timeout": "5s",
			"retry": {"max_retries": 0},
			"log_level": "error"
		}
	}`
	path := filepath.Join(dir, "collectors.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := ExecuteArgs(args)
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	t.Run("list collectors", func(t *testing.T) {
		out, err := execute(t, "--config", path, "collect", "--list")
		require.NoError(t, err)
		assert.Contains(t, out, "daily_files")
		assert.Contains(t, out, "tms")
		assert.Contains(t, out, "route_data")
	})
	collectList = false

	t.Run("collect and export", func(t *testing.T) {
		export := filepath.Join(dir, "report.csv")
		out, err := execute(t, "--config", path, "collect", "--output", export)
		require.NoError(t, err)
		assert.Contains(t, out, "daily_files")
		assert.Contains(t, out, "partial")
		assert.Contains(t, out, "2 accepted")
		assert.Contains(t, out, "1 rejected")
		assert.Contains(t, out, "Top rejection reasons")
		assert.FileExists(t, export)
		assert.FileExists(t, filepath.Join(dir, "input", "processed", "monday.csv"))
	})
	collectOutput = ""

	t.Run("status lists the run", func(t *testing.T) {
		out, err := execute(t, "--config", path, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Recent runs")
		assert.Contains(t, out, "success")
		assert.Contains(t, out, "Stored routes: 2")
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := execute(t, "--config", path, "status", "--run", "nope")
		assert.ErrorContains(t, err, "not found")
	})
	statusRunID = ""

	t.Run("connection test skips disabled collectors", func(t *testing.T) {
		out, err := execute(t, "--config", path, "test")
		require.NoError(t, err)
		assert.Contains(t, out, "skipped")
	})

	t.Run("watch rejects a bad schedule", func(t *testing.T) {
		_, err := execute(t, "--config", path, "watch", "--schedule", "every tuesday")
		assert.ErrorContains(t, err, "invalid schedule")
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := execute(t, "--config", filepath.Join(dir, "missing.json"), "status")
		assert.Error(t, err)
	})
}
