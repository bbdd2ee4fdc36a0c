package syncer

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

// RefNotFoundError reports a commit or branch reference that could not be
// resolved on the source. Fatal: retrying with the same reference cannot
// succeed.
type RefNotFoundError struct {
	Ref string
	Err error
}

func (e *RefNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reference %q not found: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("reference %q not found", e.Ref)
}

func (e *RefNotFoundError) Unwrap() error { return e.Err }

// SchemaMismatchError reports a column set that changed incompatibly with
// the table mapping in force. Fatal: the caller must redefine the mapping
// before retrying.
type SchemaMismatchError struct {
	Table  string
	Detail string
	Err    error
}

func (e *SchemaMismatchError) Error() string {
	msg := fmt.Sprintf("schema mismatch on table %s", e.Table)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// ApplyError reports a batch that failed to commit on the target. The whole
// batch rolled back, the cursor keeps its last advanced value, and
// re-invoking the sync resumes from there without duplicate application.
type ApplyError struct {
	Table string
	// RecordIndex is the index within the failing batch of the first
	// record of the statement that failed, for diagnostics.
	RecordIndex int
	Err         error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply to %s failed at batch record %d: %v", e.Table, e.RecordIndex, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ConnectionError reports an unreachable source or target. Retryable with
// backoff; the retry policy is the caller's.
type ConnectionError struct {
	System string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.System, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsRetryable reports whether re-invoking the sync can succeed without any
// caller-side change. Apply failures qualify because the cursor preserved
// partial progress; connection failures qualify after backoff.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var applyErr *ApplyError
	if errors.As(err, &applyErr) {
		return true
	}
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsFatal reports whether the error requires caller intervention: a bad
// reference or an incompatible schema change.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var refErr *RefNotFoundError
	if errors.As(err, &refErr) {
		return true
	}
	var schemaErr *SchemaMismatchError
	return errors.As(err, &schemaErr)
}

// IsConnectionFailure reports whether an error from a SQL driver looks like
// a transport failure rather than a statement failure. Collaborators use it
// to decide between ConnectionError and the statement-level taxonomy.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "bad connection") ||
		strings.Contains(msg, "invalid connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout")
}
