package syncer

import (
	"doltsync/core/fingerprint"
)

// IndexEntry is one row of a fingerprint index: its full-row digest for
// change detection plus the row itself so deletes and updates can reference
// the old values.
type IndexEntry struct {
	Digest string
	Row    map[string]any
}

// BuildIndex drains an iterator into a fingerprint-keyed index of the
// table's rows. One O(n) pass replaces per-row existence queries: reverse
// diffs and verification look rows up by identity hash instead of round
// tripping to the database.
func BuildIndex(iter RecordIterator, mapping TableMapping) (map[string]IndexEntry, error) {
	defer iter.Close()

	idx := make(map[string]IndexEntry)
	for iter.Next() {
		rec := iter.Record()
		row := rec.Row()
		fp := rec.Fingerprint
		if fp == "" {
			fp = fingerprint.Fingerprint(row, mapping.PrimaryKey)
		}
		idx[fp] = IndexEntry{
			Digest: fingerprint.RowDigest(row, mapping.Columns),
			Row:    row,
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return idx, nil
}
