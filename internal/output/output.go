// Package output delivers extracted links to their destinations.
package output

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Writer receives links one at a time. Close flushes and releases the
// destination; a Writer is not reused after Close.
type Writer interface {
	Write(ctx context.Context, link string) error
	Close(ctx context.Context) error
}

// Drain pulls every link from seq and writes it to each writer in yield order.
// It stops at the first write error or when ctx is done, which ends the
// iteration early, and returns the number of links fully written.
func Drain(ctx context.Context, seq iter.Seq[string], writers ...Writer) (int, error) {
	n := 0
	for link := range seq {
		if err := ctx.Err(); err != nil {
			return n, fmt.Errorf("drain output: %w", err)
		}
		for _, w := range writers {
			if err := w.Write(ctx, link); err != nil {
				return n, fmt.Errorf("write %q: %w", link, err)
			}
		}
		n++
	}
	return n, nil
}

// CloseAll closes every writer and joins their errors.
func CloseAll(ctx context.Context, writers ...Writer) error {
	var errs []error
	for _, w := range writers {
		if err := w.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
