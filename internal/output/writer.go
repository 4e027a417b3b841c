// Package output writes rendered statements to stdout and an optional
// append-only file.
package output

import (
	"fmt"
	"io"
	"os"

	"binlog2sql/internal/models"
)

// Writer emits one line per statement
type Writer struct {
	out  io.Writer
	file *os.File
}

// NewWriter writes to out and, when path is not empty, appends to path
func NewWriter(out io.Writer, path string) (*Writer, error) {
	w := &Writer{out: out}
	if path != "" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open output file: %w", err)
		}
		w.file = f
	}
	return w, nil
}

// Emit writes the statement line. Each line goes out in a single write so
// an interrupted run never leaves half a statement.
func (w *Writer) Emit(event *models.ChangeEvent) error {
	line := []byte(event.SQL + "\n")
	if _, err := w.out.Write(line); err != nil {
		return fmt.Errorf("failed to write statement: %w", err)
	}
	if w.file != nil {
		if _, err := w.file.Write(line); err != nil {
			return fmt.Errorf("failed to write statement to file: %w", err)
		}
	}
	return nil
}

// Summary is a no-op, the summary goes to the log
func (w *Writer) Summary(models.Summary) error {
	return nil
}

// Close closes the output file
func (w *Writer) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
