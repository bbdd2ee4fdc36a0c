// Package dolt is the version-control collaborator: a client for the Dolt
// system tables and stored procedures, spoken over a regular MySQL-protocol
// connection.
//
// It implements the syncer.Source contract. Commits resolve through
// dolt_hashof, ranges list through the dolt_log table function, and
// row-level changes stream from dolt_diff(from, to, table), whose result
// carries the old and new values in from_/to_ prefixed columns plus a
// diff_type of added, modified, or removed. Snapshots read the table AS OF a
// commit. Reverse syncs land their writes with DOLT_ADD + DOLT_COMMIT.
//
// Extraction is lazy: DiffRows and SnapshotRows hold an open result set and
// decode one record per Next call, so a 100k-row diff never materializes in
// memory ahead of the batch that applies it.
package dolt
