package quota

import (
	"context"
)

// Store persists daily quota records keyed by (identity, day).
//
// Implementations must make IncrementIfBelow atomic across concurrent callers
// and across service instances sharing the store.
type Store interface {
	// Count returns the click count recorded for identity on day, or 0 if
	// no record exists. It never creates a record.
	Count(ctx context.Context, identity, day string) (int, error)

	// IncrementIfBelow adds one to the count for (identity, day) if the
	// current count is below max, creating the record with count 1 if it does
	// not exist. It returns the count after the call and whether the
	// increment happened.
	IncrementIfBelow(ctx context.Context, identity, day string, max int) (int, bool, error)
}
