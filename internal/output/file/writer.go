// Package file writes links to a local file, one per line.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath is used when no path is configured.
const DefaultPath = "extracted_links.txt"

// Stdout is the path that selects standard output.
const Stdout = "-"

// Writer appends links to a buffered file.
type Writer struct {
	path   string
	buf    *bufio.Writer
	closer io.Closer
}

// New truncates or creates path and returns a Writer for it. Parent
// directories are created as needed. A path of "-" writes to stdout, which is
// flushed but never closed.
func New(path string, stdout io.Writer) (*Writer, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if path == Stdout {
		if stdout == nil {
			stdout = os.Stdout
		}
		return &Writer{path: path, buf: bufio.NewWriter(stdout)}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create parent directories: %w", err)
		}
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &Writer{path: path, buf: bufio.NewWriter(f), closer: f}, nil
}

// Path returns the destination path.
func (w *Writer) Path() string {
	return w.path
}

// Write appends link and a newline.
func (w *Writer) Write(_ context.Context, link string) error {
	if _, err := w.buf.WriteString(link); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return nil
}

// Close flushes buffered links and closes the file.
func (w *Writer) Close(context.Context) error {
	flushErr := w.buf.Flush()
	if w.closer == nil {
		if flushErr != nil {
			return fmt.Errorf("flush %s: %w", w.path, flushErr)
		}
		return nil
	}
	closeErr := w.closer.Close()
	w.closer = nil
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", w.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", w.path, closeErr)
	}
	return nil
}
