package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sawpanic/firescore/internal/table"
)

// WriteCSVAtomic writes a table as CSV to path atomically using temp file + rename
func WriteCSVAtomic(path string, t *table.Table) error {
	return writeAtomic(path, func(w io.Writer) error {
		return table.WriteCSV(w, t)
	})
}

// WriteJSONAtomic writes indented JSON to file atomically
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// WriteFileAtomic writes data to file atomically
func WriteFileAtomic(path string, data []byte) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// writeAtomic streams into a uniquely named temp file beside path, then renames it
// over path. Concurrent writers to one path never share a temp file; the last
// rename wins.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := file.Name()

	if err := write(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}

	// CreateTemp uses 0600
	if err := file.Chmod(0644); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
