package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDGenerator returns "<prefix>-1", "<prefix>-2", ...
//
// This keeps study IDs stable across test runs so assertions and golden
// output can name them.
//
// Thread-safety: SequentialIDGenerator is safe for concurrent use.
type SequentialIDGenerator struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDGenerator creates a generator. If prefix is empty,
// "study" is used.
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "study"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
