package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OutputManager moves consumed source files into archive directories
type OutputManager struct {
	BaseOutputDir string
	now           func() time.Time
}

// NewOutputManager creates a new output manager rooted at baseOutputDir
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
		now:           time.Now,
	}
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	if err := os.MkdirAll(om.BaseOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// GetOutputFilePath returns a free path for fileName inside the base directory.
// An existing file gets a timestamp suffix appended to the new name.
func (om *OutputManager) GetOutputFilePath(fileName string) (string, error) {
	if err := om.EnsureOutputDirExists(); err != nil {
		return "", err
	}

	cleanFileName := filepath.Base(fileName)
	dest := filepath.Join(om.BaseOutputDir, cleanFileName)
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest, nil
	}

	ext := filepath.Ext(cleanFileName)
	stem := strings.TrimSuffix(cleanFileName, ext)
	stamp := om.now().Format("20060102_150405")
	dest = filepath.Join(om.BaseOutputDir, fmt.Sprintf("%s_%s%s", stem, stamp, ext))
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return dest, nil
		}
		dest = filepath.Join(om.BaseOutputDir, fmt.Sprintf("%s_%s_%d%s", stem, stamp, i, ext))
	}
}

// Move relocates src into the base directory and returns the new path.
func (om *OutputManager) Move(src string) (string, error) {
	dest, err := om.GetOutputFilePath(src)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, dest); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", src, err)
	}
	return dest, nil
}

// WriteErrorLog writes messages next to an archived file as <file>.errors.
func (om *OutputManager) WriteErrorLog(archivedPath string, messages []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Errors for %s at %s\n", filepath.Base(archivedPath), om.now().Format(time.RFC3339))
	for _, m := range messages {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteByte('\n')
	}
	return os.WriteFile(archivedPath+".errors", []byte(b.String()), 0644)
}

// GetFileType determines the file type based on extension
func GetFileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt", ".tsv":
		return "csv"
	case ".json":
		return "json"
	case ".xlsx", ".xlsm":
		return "excel"
	default:
		return "unknown"
	}
}
