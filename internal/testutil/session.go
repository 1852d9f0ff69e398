package testutil

import (
	"fmt"
	"sync"
)

// SequentialSessionGenerator hands out session ids "<prefix>-0001",
// "<prefix>-0002", ... so each scenario run in a test gets a distinct but
// reproducible id.
//
// Implements engine.SessionIDGenerator.
//
// Thread-safety: safe for concurrent use.
type SequentialSessionGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialSessionGenerator creates a generator. An empty prefix
// becomes "test-session".
func NewSequentialSessionGenerator(prefix string) *SequentialSessionGenerator {
	if prefix == "" {
		prefix = "test-session"
	}
	return &SequentialSessionGenerator{prefix: prefix}
}

// Generate returns the next session id.
func (g *SequentialSessionGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
