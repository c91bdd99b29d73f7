// Package store provides the document tables every component persists into.
//
// A table holds whole records keyed by a string derived from the record
// itself. Writes replace the full record (last write wins); there is no
// partial-field merge, so callers read, modify and write back.
package store

import (
	"context"
	"errors"
	"iter"
)

// ErrNotFound is returned by Get when no record has the key.
var ErrNotFound = errors.New("record not found")

// Status reports what an Upsert did.
type Status int

const (
	Unchanged Status = iota
	Inserted
	Updated
)

func (s Status) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Table is a keyed collection of records of type T.
type Table[T any] interface {
	// Upsert inserts or fully replaces the record under its key.
	Upsert(ctx context.Context, rec T) (Status, error)

	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (T, error)

	// Query yields every record for which match returns true, in key order.
	// A nil match selects everything. The sequence is lazy and can be ranged
	// over again to restart the scan; records upserted during the scan may or
	// may not be observed.
	Query(ctx context.Context, match func(T) bool) iter.Seq2[T, error]
}

// KeyFunc derives the primary key of a record.
type KeyFunc[T any] func(T) string
