// Package syncer implements the commit-diff synchronization engine.
//
// The engine keeps a table consistent between a Dolt database and a
// conventional RDBMS by extracting row-level changes between two commits,
// applying them to the target in bounded transactions, and recording durable
// progress so re-runs are idempotent and incremental.
//
// # Pipeline
//
// A sync job moves through a fixed sequence: resolve the commit range from
// the stored cursor, extract change records commit by commit, apply them in
// batches through a dialect adapter, and advance the cursor after each fully
// committed boundary. A crash or failure mid-sync resumes from the last
// advanced cursor, never from scratch and never re-applying committed work.
//
// # Collaborators
//
// The engine owns no I/O of its own. It consumes a Source (the
// version-control collaborator, implemented by core/dolt), an Adapter (one
// per SQL dialect, implemented by core/dialect), and a CursorStore (the
// SQL-backed implementation lives in this package). All three are small
// interfaces so tests can substitute in-memory fakes.
//
// # Errors
//
// Failures carry one of four typed errors: RefNotFoundError and
// SchemaMismatchError are fatal, ApplyError and ConnectionError are
// retryable by re-invoking the sync. The cursor is only ever advanced after
// a confirmed transaction commit, so no error path can corrupt it.
package syncer
