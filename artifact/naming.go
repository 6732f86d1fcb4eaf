// Package artifact persists clustering runs as flat files and publishes the
// immutable snapshot that inference reads.
package artifact

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	KindAssignments = "assignments"
	KindSummary     = "summary"
	KindSchema      = "schema"

	timestampLayout = "20060102-150405"
	zstExt          = ".zst"
)

// FileInfo describes one run file, parsed from its name:
// <entity>-<n>p-<yyyymmdd>-<hhmmss>-<id>-<kind>.csv[.zst]
type FileInfo struct {
	Path       string    `json:"path"`
	Entity     string    `json:"entity"`
	NumPoints  int       `json:"numPoints"`
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"runId"`
	Kind       string    `json:"kind"`
	Compressed bool      `json:"compressed"`
	FileSize   int64     `json:"fileSize"`
}

// NewRunID returns a short random run id.
func NewRunID() string {
	return uuid.New().String()[:8]
}

// FileName builds the name of a run table file.
func FileName(entity string, numPoints int, ts time.Time, runID, kind string, compressed bool) string {
	name := fmt.Sprintf("%s-%dp-%s-%s-%s.csv", entity, numPoints, ts.UTC().Format(timestampLayout), runID, kind)
	if compressed {
		name += zstExt
	}
	return name
}

// SchemaFileName names the feature schema of a run.
func SchemaFileName(numColumns int, ts time.Time, runID string) string {
	return fmt.Sprintf("features-%dp-%s-%s-%s.json", numColumns, ts.UTC().Format(timestampLayout), runID, KindSchema)
}

// ParseFileName reads the run metadata out of a file name.
func ParseFileName(path string) (FileInfo, error) {
	name := filepath.Base(path)
	info := FileInfo{Path: path}

	if strings.HasSuffix(name, zstExt) {
		info.Compressed = true
		name = strings.TrimSuffix(name, zstExt)
	}
	ext := filepath.Ext(name)
	if ext != ".csv" && ext != ".json" {
		return info, fmt.Errorf("artifact: unexpected extension in %s", path)
	}
	name = strings.TrimSuffix(name, ext)

	parts := strings.Split(name, "-")
	if len(parts) != 6 {
		return info, fmt.Errorf("artifact: invalid file name %s", path)
	}

	n, err := strconv.Atoi(strings.TrimSuffix(parts[1], "p"))
	if err != nil {
		return info, fmt.Errorf("artifact: bad point count in %s: %w", path, err)
	}
	ts, err := time.Parse(timestampLayout, parts[2]+"-"+parts[3])
	if err != nil {
		return info, fmt.Errorf("artifact: bad timestamp in %s: %w", path, err)
	}

	info.Entity = parts[0]
	info.NumPoints = n
	info.Timestamp = ts
	info.RunID = parts[4]
	info.Kind = parts[5]
	return info, nil
}

// FormatFileSize renders a byte count for logs and listings.
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
