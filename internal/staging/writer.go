// Package staging reads and writes the CSV artifact that connects the
// pipeline to the import engine.
package staging

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

// Columns is the canonical staging header, in order.
var Columns = []string{"domain", "name", "description", "website", "category", "pricing", "logo", "source"}

// Writer appends staged records to a CSV stream. The header is written at
// construction so even an empty run produces a well formed artifact.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	count  int
}

// NewFileWriter creates (or truncates) the staging file at path, creating
// parent directories as needed, and writes the header row.
func NewFileWriter(path string) (*Writer, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write staging header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush staging header: %w", err)
	}
	return &Writer{file: f, writer: w}, nil
}

// Write appends one record.
func (w *Writer) Write(rec harvest.StagedRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	row := []string{
		rec.Domain,
		rec.Name,
		rec.Description,
		rec.Website,
		rec.Category,
		rec.Pricing,
		rec.Logo,
		rec.Source,
	}
	if err := w.writer.Write(row); err != nil {
		return fmt.Errorf("write staging record: %w", err)
	}
	w.count++
	return nil
}

// Count reports records written so far, header excluded.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush staging writer: %w", err)
	}
	return w.file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
