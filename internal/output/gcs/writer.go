// Package gcs uploads links to a newline-delimited Cloud Storage object.
package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to the object name, which is <prefix>/<run-id>.txt.
	Prefix string
}

// Writer streams links into one object per run.
type Writer struct {
	client *storage.Client
	bucket string
	object string
	w      *storage.Writer
}

// New creates a Writer for runID. The upload starts on the first Write; an
// empty run still produces an empty object on Close.
func New(client *storage.Client, cfg Config, runID string) (*Writer, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	return &Writer{
		client: client,
		bucket: cfg.Bucket,
		object: ObjectName(cfg.Prefix, runID),
	}, nil
}

// ObjectName returns the object path for a run.
func ObjectName(prefix, runID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return runID + ".txt"
	}
	return path.Join(prefix, runID+".txt")
}

// URI returns the gs:// location of the object.
func (w *Writer) URI() string {
	return fmt.Sprintf("gs://%s/%s", w.bucket, w.object)
}

// Write appends link and a newline to the object.
func (w *Writer) Write(ctx context.Context, link string) error {
	ow := w.open(ctx)
	if _, err := ow.Write([]byte(link + "\n")); err != nil {
		return fmt.Errorf("write gcs object %s: %w", w.object, err)
	}
	return nil
}

// Close finalizes the upload.
func (w *Writer) Close(ctx context.Context) error {
	ow := w.open(ctx)
	if err := ow.Close(); err != nil {
		return fmt.Errorf("close gcs writer for %s: %w", w.object, err)
	}
	return nil
}

// open starts the upload. The storage writer keeps the context of the first
// call for its whole lifetime.
func (w *Writer) open(ctx context.Context) *storage.Writer {
	if w.w == nil {
		w.w = w.client.Bucket(w.bucket).Object(w.object).NewWriter(ctx)
		w.w.ContentType = "text/plain; charset=utf-8"
	}
	return w.w
}
