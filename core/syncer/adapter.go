package syncer

import "context"

// RecordIterator streams change records in diff order. Iteration is
// single-pass and not restartable: a fresh call to the producing method is
// required to iterate again. Usage mirrors sql.Rows:
//
//	for iter.Next() {
//	    rec := iter.Record()
//	    ...
//	}
//	if err := iter.Err(); err != nil { ... }
//
// Consumers must not assume primary-key ordering; records arrive in the
// order the underlying diff produces them.
type RecordIterator interface {
	// Next advances to the next record, returning false at end of stream
	// or on error.
	Next() bool
	// Record returns the current record. Only valid after Next returned
	// true.
	Record() ChangeRecord
	// Err returns the error that terminated iteration, if any.
	Err() error
	// Close releases the underlying stream. Safe to call more than once.
	Close() error
}

// Source is the version-control collaborator the engine extracts changes
// from. core/dolt implements it over a live Dolt connection.
type Source interface {
	// ResolveCommit resolves a ref (branch, tag, or hash) to a commit id.
	// An empty ref means the current head. Unresolvable refs surface as
	// RefNotFoundError.
	ResolveCommit(ctx context.Context, ref string) (string, error)

	// CommitsBetween lists the commits reachable from to but not from
	// from, oldest first.
	CommitsBetween(ctx context.Context, from, to string) ([]Commit, error)

	// DiffRows streams the row-level changes of a table between two
	// commits. Incompatible column sets surface as SchemaMismatchError.
	DiffRows(ctx context.Context, mapping TableMapping, from, to string) (RecordIterator, error)

	// SnapshotRows streams every row of the table as of a commit, shaped
	// as insert records. Used for full syncs, reverse diffs, and
	// verification.
	SnapshotRows(ctx context.Context, mapping TableMapping, at string) (RecordIterator, error)

	// CommitChanges stages the given tables and creates a commit,
	// returning the new head. When nothing changed the head is returned
	// unchanged.
	CommitChanges(ctx context.Context, message string, tables []string) (string, error)

	// TableColumns returns the table's column names as of a commit.
	TableColumns(ctx context.Context, table, at string) ([]string, error)
}

// Adapter applies change batches to one RDBMS dialect. Adapters receive
// batches by value, apply each as a single transaction, and own no
// persistent state between calls.
type Adapter interface {
	// Name returns the dialect name (mysql, postgres, oracle).
	Name() string
	// Apply writes a batch in one transaction and returns the count of
	// change records applied. A failure rolls back the whole batch and
	// returns an ApplyError carrying the offending record's index, a
	// SchemaMismatchError, or a ConnectionError.
	Apply(ctx context.Context, batch Batch, mapping TableMapping, opts ApplyOptions) (int64, error)
}

// RowReader is the optional read capability of an adapter, discovered via
// type assertion. It streams the target table's current rows as insert
// records. Reverse-direction sync requires it.
type RowReader interface {
	ReadRows(ctx context.Context, mapping TableMapping) (RecordIterator, error)
}

// CursorStore persists sync cursors. Implementations must upsert on write,
// keep at most one row per key, and support concurrent writes to distinct
// keys without cross-key locking.
type CursorStore interface {
	// Get returns the cursor for a key; found is false when no sync has
	// completed a batch for the key yet.
	Get(ctx context.Context, key CursorKey) (Cursor, bool, error)
	// Advance moves the cursor to a new commit. Callers invoke it
	// strictly after the corresponding target transaction committed.
	Advance(ctx context.Context, key CursorKey, commit string) error
}
