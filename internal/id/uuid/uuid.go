// Package uuid issues run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements pipeline.IDGenerator with UUIDv7, so run IDs sort by
// start time in logs, object names and database rows.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewRawID returns a fresh UUIDv7.
func (Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}
