package engine

import (
	"time"
)

// Parser turns a raw response payload into records. A nil error with zero
// records is a valid outcome (an empty page); a non-nil error marks the
// payload malformed, which callers treat as a transport failure.
type Parser interface {
	Parse(data []byte) ([]Record, error)
}

// ProxySource hands out proxy URIs and receives health reports. An empty
// proxy string with a nil error means "fetch directly".
type ProxySource interface {
	GetProxy() (proxyURL string, poolID string, err error)
	ReportSuccess(poolID string, latency time.Duration)
	ReportFailure(poolID string)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}
