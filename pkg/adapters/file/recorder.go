package file

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// DefaultBasePath is where a Recorder writes when no base path is given.
const DefaultBasePath = "output"

// Recorder implements ports.Recorder on the local filesystem. Each node gets its own
// directory holding iterations.csv and timing.csv.
type Recorder struct {
	BasePath string
}

var _ ports.Recorder = (*Recorder)(nil)

// New creates a Recorder. If basePath is empty, it defaults to DefaultBasePath.
func New(basePath string) *Recorder {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &Recorder{BasePath: basePath}
}

// WriteHistory writes the node's iteration and timing tables, replacing earlier ones.
func (r *Recorder) WriteHistory(nodeID int, records []domain.IterationRecord) error {
	dir := filepath.Join(r.BasePath, strconv.Itoa(nodeID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure node directory: %w", err)
	}

	proximal := false
	for _, rec := range records {
		if rec.HasCenter {
			proximal = true
			break
		}
	}

	header := []string{"iteration", "bound", "objective"}
	if proximal {
		header = []string{"iteration", "bound", "center", "objective"}
	}
	rows := [][]string{header}
	timing := [][]string{{"iteration", "seconds"}}
	for _, rec := range records {
		row := []string{strconv.Itoa(rec.Iteration), format(rec.Bound)}
		if proximal {
			center := ""
			if rec.HasCenter {
				center = format(rec.Center)
			}
			row = append(row, center)
		}
		rows = append(rows, append(row, format(rec.Objective)))
		timing = append(timing, []string{strconv.Itoa(rec.Iteration), format(rec.Elapsed.Seconds())})
	}

	if err := writeAtomic(dir, "iterations.csv", rows); err != nil {
		return err
	}
	return writeAtomic(dir, "timing.csv", timing)
}

// writeAtomic writes to a temporary file in dir, syncs it, then renames it into place.
func writeAtomic(dir, name string, rows [][]string) error {
	tmpFile, err := os.CreateTemp(dir, "tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	w := csv.NewWriter(tmpFile)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return nil
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
