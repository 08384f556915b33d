package delivery

import (
	"context"
	"time"

	"github.com/newthinker/pushrelay/internal/core"
)

// Store defines the interface for delivery history persistence.
type Store interface {
	// Save records a dispatch result. Results without an ID get one.
	Save(ctx context.Context, result core.Result) error

	// GetByID retrieves a result by its ID.
	GetByID(ctx context.Context, id string) (*core.Result, error)

	// List retrieves results matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]core.Result, error)

	// Count returns the number of results matching the filter.
	Count(ctx context.Context, filter ListFilter) (int, error)
}

// ListFilter defines criteria for listing results.
type ListFilter struct {
	Project string
	Kind    core.OccurrenceKind
	Outcome core.Outcome
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}
