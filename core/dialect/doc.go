// Package dialect translates generic change records into the DDL/DML of a
// specific RDBMS family.
//
// One variant exists per target: MySQL (which also covers Dolt itself, since
// Dolt speaks the MySQL wire protocol), Postgres (whose syntax also serves
// embedded SQLite targets), and Oracle. The variants only differ in SQL
// shape: identifier quoting, upsert form (ON DUPLICATE KEY UPDATE,
// ON CONFLICT, MERGE INTO), column types, and value coercion. The rest is
// shared: transaction-per-batch application, statement chunking, failure
// classification, and schema inference for create-if-not-exists.
//
// Statements are emitted with ? placeholders; GORM rebinds them to the
// connected dialector's form ($1, :1) at execution time.
//
// # Coercion
//
// Values with no native equivalent on a target are transcoded losslessly to
// the nearest representable type before binding: arrays, maps, and JSON
// documents become compact JSON text everywhere, and date-only values become
// ISO-8601 date text on Oracle. The transcoding is lossy-reversible, not
// bit-identical; core/coerce decodes it back on reverse syncs when the
// caller opts in.
package dialect
