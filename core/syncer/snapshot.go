package syncer

import (
	"database/sql"

	"doltsync/core/database"
	"doltsync/core/fingerprint"
)

// snapshotIterator adapts an open result set into a stream of insert
// records, one per row. Both sides of a sync use it: the Dolt client for
// AS OF snapshots and the dialect adapters for reading a target table back.
type snapshotIterator struct {
	rows    *sql.Rows
	scanner *database.RowScanner
	mapping TableMapping
	rec     ChangeRecord
	err     error
	closed  bool
}

// NewSnapshotIterator wraps rows as a RecordIterator of insert records. The
// iterator owns the rows and closes them when done.
func NewSnapshotIterator(rows *sql.Rows, mapping TableMapping) (RecordIterator, error) {
	scanner, err := database.NewRowScanner(rows)
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &snapshotIterator{rows: rows, scanner: scanner, mapping: mapping}, nil
}

func (it *snapshotIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}

	row, err := it.scanner.Scan(it.rows)
	if err != nil {
		it.err = err
		return false
	}

	it.rec = ChangeRecord{
		Table:       it.mapping.SourceTable,
		Op:          OpInsert,
		Fingerprint: fingerprint.Fingerprint(row, it.mapping.PrimaryKey),
		NewRow:      row,
	}
	return true
}

func (it *snapshotIterator) Record() ChangeRecord { return it.rec }

func (it *snapshotIterator) Err() error { return it.err }

func (it *snapshotIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.rows.Close()
}
