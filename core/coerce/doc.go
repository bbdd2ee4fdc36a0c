// Package coerce transcodes values between a versioned source schema and SQL
// targets that lack a native equivalent.
//
// Array and JSON values become compact JSON text; date-only values become
// ISO-8601 date text on connectors without a usable date binding. The
// contract is lossy-reversible: DecodeValue restores the logical value, not
// the original driver type, and decoding on a reverse sync only happens when
// the caller opts in.
package coerce
