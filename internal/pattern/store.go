package pattern

import (
	"context"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

// UpsertFields carries the row content for an occurrence upsert. SeenAt is
// the observation time; on insert it becomes both first_seen and last_seen,
// on update only last_seen moves.
type UpsertFields struct {
	NormalizedMessage string
	SignalType        model.SignalType
	SeenAt            time.Time
}

// Store is the narrow persistence contract the tracker depends on. Both
// operations are atomic; concurrent analyses serialize at this boundary.
type Store interface {
	// UpsertIncrement inserts the pattern or increments its occurrence
	// count, returning the row as stored.
	UpsertIncrement(ctx context.Context, hash string, fields UpsertFields) (*model.Pattern, error)
	// Get returns the pattern for a hash, or nil when unknown.
	Get(ctx context.Context, hash string) (*model.Pattern, error)
}

// AdminStore extends Store with the triage operations the CLI exposes.
type AdminStore interface {
	Store
	// List returns patterns filtered by status ("" = all), most recently
	// seen first, capped at limit (0 = no cap).
	List(ctx context.Context, status model.PatternStatus, limit int) ([]*model.Pattern, error)
	// SetStatus moves a pattern through its triage lifecycle.
	SetStatus(ctx context.Context, hash string, status model.PatternStatus) error
	// Close releases the underlying storage.
	Close() error
}
