// Package uuid provides run ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings. V7 IDs sort by creation time, which
// keeps run history naturally ordered.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewRawID returns a UUID7.
func (Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}
