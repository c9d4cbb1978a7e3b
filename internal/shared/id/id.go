// Package id provides ULID generation for the bridge.
//
// ULIDs are lexicographically sortable by creation time, so artifact file
// names generated in one session list in the order they were written.
// Prefixed typed IDs keep log lines readable:
//   - rpt_*: session reports
//   - req_*: HTTP requests
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ReportID identifies a rendered session report
type ReportID string

// RequestID identifies an API request
type RequestID string

const (
	ReportPrefix  = "rpt"
	RequestPrefix = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// entropy, so IDs from the same millisecond still sort in creation order.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateLower creates a new ULID in lowercase, for use in file names
func (g *Generator) GenerateLower() string {
	return strings.ToLower(g.GenerateString())
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewReportID generates a new report ID
func NewReportID() ReportID {
	return ReportID(Default().GenerateWithPrefix(ReportPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id ReportID) String() string  { return string(id) }
func (id RequestID) String() string { return string(id) }

// Parse parses a ULID string, with or without a type prefix
func Parse(id string) (ulid.ULID, error) {
	if _, raw, ok := strings.Cut(id, "_"); ok {
		id = raw
	}
	return ulid.Parse(id)
}
