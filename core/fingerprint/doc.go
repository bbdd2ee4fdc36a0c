// Package fingerprint computes deterministic row identity hashes.
//
// A fingerprint is the sha256 of a row's primary key values after
// canonicalization, so the same logical row produces the same hash on Dolt,
// MySQL, Postgres, and Oracle even though their drivers scan values into
// different Go types and text forms.
//
// # Canonicalization
//
// Canonical collapses equal values to one representation: integer widths and
// numeric text ("007", "1.50") normalize to plain decimal forms, []byte
// payloads to strings, booleans to 0/1, and the engines' datetime text
// layouts to either a date-only form (midnight UTC) or RFC3339.
//
// # Uses
//
// Fingerprints match rows across systems during diff application and let
// callers build an existing-key index of a whole table in one pass instead of
// issuing per-row existence queries. RowDigest extends the same scheme to all
// mapped columns for change detection in snapshot diffs.
package fingerprint
