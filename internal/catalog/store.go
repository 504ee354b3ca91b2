package catalog

import "context"

// Predicate selects records.
type Predicate func(Record) bool

// Store holds catalog records keyed by name. Records are never removed.
type Store interface {
	// Select returns copies of all records matching pred, sorted by name.
	Select(ctx context.Context, pred Predicate) ([]Record, error)

	// Get returns a copy of the record called name.
	Get(ctx context.Context, name string) (Record, bool, error)

	// Update applies fn to the record called name, creating a bare record
	// first when none exists. The read-modify-write is atomic for that
	// record. If fn returns an error nothing is stored.
	Update(ctx context.Context, name string, fn func(*Record) error) (Record, error)

	// Len returns the number of records.
	Len(ctx context.Context) (int, error)
}
