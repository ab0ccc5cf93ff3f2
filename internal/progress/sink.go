package progress

import "context"

// Sink consumes emitted snapshots. Implementations must be safe for repeated
// calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, snap Snapshot) error
	Close(ctx context.Context) error
}
