package testfixtures

import (
	"fmt"
	"sync"
)

// RequestIDs hands the executor predictable X-Request-ID values, so a test
// can match the backend's request log against the calls it made.
type RequestIDs struct {
	mu     sync.Mutex
	issued []string
}

// Next returns "req-<n>" and records it.
func (g *RequestIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("req-%d", len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// Issued returns the identifiers handed out so far, oldest first.
func (g *RequestIDs) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}

// RequestRecord is one request as seen by the Backend.
type RequestRecord struct {
	ID     string
	Method string
	Path   string
	Status int
}
