package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"route-pipeline/internal/model"
	"route-pipeline/pkg/utils"

	"github.com/bmatcuk/doublestar/v4"
)

// FileParams configures the file collector.
type FileParams struct {
	InputDirectory     string   `json:"input_directory" validate:"required"`
	ProcessedDirectory string   `json:"processed_directory"`
	ErrorDirectory     string   `json:"error_directory"`
	FilePatterns       []string `json:"file_patterns"`
	Delimiter          string   `json:"delimiter" validate:"omitempty,max=2"`
	MoveProcessedFiles *bool    `json:"move_processed_files"`
	MaxFileAgeDays     int      `json:"max_file_age_days" validate:"gte=0"`
}

var defaultFilePatterns = []string{"*.csv", "*.json", "*.xlsx"}

type fileCollector struct {
	base
	params         FileParams
	skipDuplicates bool
	processed      *utils.OutputManager
	failed         *utils.OutputManager
}

func newFileCollector(b base, cfg model.CollectorConfig) (*fileCollector, error) {
	var p FileParams
	if err := decodeParams(cfg, &p); err != nil {
		return nil, err
	}
	if p.ProcessedDirectory == "" {
		p.ProcessedDirectory = filepath.Join(p.InputDirectory, "processed")
	}
	if p.ErrorDirectory == "" {
		p.ErrorDirectory = filepath.Join(p.InputDirectory, "errors")
	}
	if len(p.FilePatterns) == 0 {
		p.FilePatterns = defaultFilePatterns
	}
	for _, pattern := range p.FilePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, model.Errorf(model.KindConfiguration, "collector "+cfg.Name, "invalid file pattern %q", pattern)
		}
	}
	if p.MaxFileAgeDays == 0 {
		p.MaxFileAgeDays = 30
	}
	return &fileCollector{
		base:           b,
		params:         p,
		skipDuplicates: cfg.SkipsDuplicates(),
		processed:      utils.NewOutputManager(p.ProcessedDirectory),
		failed:         utils.NewOutputManager(p.ErrorDirectory),
	}, nil
}

func (c *fileCollector) TestConnection(_ context.Context) error {
	info, err := os.Stat(c.params.InputDirectory)
	if err != nil {
		return model.NewError(model.KindSourceUnavailable, c.op("input directory"), err)
	}
	if !info.IsDir() {
		return model.Errorf(model.KindConfiguration, c.op("input directory"), "%s is not a directory", c.params.InputDirectory)
	}
	return nil
}

func (c *fileCollector) Fetch(ctx context.Context) (*FetchResult, error) {
	if err := c.TestConnection(ctx); err != nil {
		return nil, err
	}
	files, err := c.findFiles()
	if err != nil {
		return nil, err
	}
	c.logger.Info("found input files", "count", len(files), "dir", c.params.InputDirectory)

	res := &FetchResult{}
	hashes := make(map[string]string)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			res.warn(model.KindSourceUnavailable, path, err.Error())
			continue
		}

		if c.skipDuplicates {
			sum := sha256.Sum256(data)
			h := hex.EncodeToString(sum[:])
			if first, ok := hashes[h]; ok {
				c.logger.Info("skipping duplicate file", "file", path, "same_as", first)
				res.Origins = append(res.Origins, path)
				continue
			}
			hashes[h] = path
		}

		rows, err := parseTable(path, data, c.params.Delimiter)
		if err != nil {
			c.quarantine(path, err)
			res.warn(model.KindMalformedInput, path, err.Error())
			continue
		}

		res.Origins = append(res.Origins, path)
		for _, row := range rows {
			res.Records = append(res.Records, model.RawRecord{Origin: path, Fields: row})
		}
		c.logger.Debug("read file", "file", path, "rows", len(rows))
	}
	return res, nil
}

// findFiles expands every pattern relative to the input directory.
func (c *fileCollector) findFiles() ([]string, error) {
	dir := c.params.InputDirectory
	fsys := os.DirFS(dir)
	cutoff := c.now().AddDate(0, 0, -c.params.MaxFileAgeDays)
	skipDirs := []string{filepath.Clean(c.params.ProcessedDirectory), filepath.Clean(c.params.ErrorDirectory)}

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range c.params.FilePatterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, model.NewError(model.KindConfiguration, c.op("glob "+pattern), err)
		}
		for _, m := range matches {
			path := filepath.Join(dir, filepath.FromSlash(m))
			if seen[path] || underAny(path, skipDirs) {
				continue
			}
			seen[path] = true

			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if info.ModTime().Before(cutoff) {
				c.logger.Debug("skipping old file", "file", path, "modified", info.ModTime().Format(time.RFC3339))
				continue
			}
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

func underAny(path string, dirs []string) bool {
	for _, d := range dirs {
		if strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// quarantine moves an unreadable file to the error directory with an .errors log.
func (c *fileCollector) quarantine(path string, cause error) {
	dest, err := c.failed.Move(path)
	if err != nil {
		c.logger.Warn("could not move file to error directory", "file", path, "error", err)
		return
	}
	if err := c.failed.WriteErrorLog(dest, []string{cause.Error()}); err != nil {
		c.logger.Warn("could not write error log", "file", dest, "error", err)
	}
	c.logger.Warn("moved unreadable file", "file", path, "to", dest, "error", cause)
}

func (c *fileCollector) moveProcessed() bool {
	return c.params.MoveProcessedFiles == nil || *c.params.MoveProcessedFiles
}

func (c *fileCollector) Acknowledge(_ context.Context, origins []string) error {
	if !c.moveProcessed() {
		return nil
	}
	var errs []error
	for _, path := range origins {
		dest, err := c.processed.Move(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", path, err))
			continue
		}
		c.logger.Info("archived file", "file", path, "to", dest)
	}
	return errors.Join(errs...)
}
