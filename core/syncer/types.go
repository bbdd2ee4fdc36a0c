package syncer

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBatchSize is the number of change records accumulated per target
// transaction when a request does not set its own threshold.
const DefaultBatchSize = 100000

// Op identifies the kind of change a record carries.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Direction identifies which way a sync job moves data.
type Direction string

const (
	// ToTarget replays Dolt commits onto a conventional RDBMS.
	ToTarget Direction = "to_target"
	// ToDolt writes the current state of an RDBMS table back into Dolt,
	// creating a commit over the applied changes.
	ToDolt Direction = "to_dolt"
)

// ChangeRecord is one row-level change between two commits of a table.
//
// An insert carries only a new row, a delete only an old row, and an update
// both. Fingerprint is the identity hash of the row's primary key values and
// stays stable across systems (see core/fingerprint).
type ChangeRecord struct {
	Table       string
	Op          Op
	Fingerprint string
	OldRow      map[string]any
	NewRow      map[string]any
}

// Row returns the row that identifies the record on the target: the new row
// for inserts and updates, the old row for deletes.
func (r ChangeRecord) Row() map[string]any {
	if r.Op == OpDelete {
		return r.OldRow
	}
	return r.NewRow
}

// Validate checks the record invariants.
func (r ChangeRecord) Validate() error {
	switch r.Op {
	case OpInsert:
		if r.OldRow != nil {
			return fmt.Errorf("insert record for %s carries an old row", r.Table)
		}
		if r.NewRow == nil {
			return fmt.Errorf("insert record for %s has no new row", r.Table)
		}
	case OpUpdate:
		if r.OldRow == nil || r.NewRow == nil {
			return fmt.Errorf("update record for %s must carry both rows", r.Table)
		}
	case OpDelete:
		if r.NewRow != nil {
			return fmt.Errorf("delete record for %s carries a new row", r.Table)
		}
		if r.OldRow == nil {
			return fmt.Errorf("delete record for %s has no old row", r.Table)
		}
	default:
		return fmt.Errorf("unknown change operation %q", r.Op)
	}
	return nil
}

// TableMapping binds a source table to a target table for the duration of a
// sync run. The column list is ordered and must be compatible with both
// schemas; drift during a run is a hard error, never silently reconciled.
type TableMapping struct {
	// SourceTable is the table name on the Dolt side.
	SourceTable string
	// TargetTable is the table name on the target side. Empty means the
	// source name is reused.
	TargetTable string
	// Columns are the mapped column names in source order.
	Columns []string
	// PrimaryKey is the ordered primary key subset of Columns.
	PrimaryKey []string
}

// Target returns the effective target table name.
func (m TableMapping) Target() string {
	if m.TargetTable != "" {
		return m.TargetTable
	}
	return m.SourceTable
}

// Reverse swaps the mapping's table names for jobs that write back into the
// Dolt side.
func (m TableMapping) Reverse() TableMapping {
	return TableMapping{
		SourceTable: m.Target(),
		TargetTable: m.SourceTable,
		Columns:     m.Columns,
		PrimaryKey:  m.PrimaryKey,
	}
}

// Validate checks that the mapping is usable for a sync run.
func (m TableMapping) Validate() error {
	if m.SourceTable == "" {
		return fmt.Errorf("table mapping has no source table")
	}
	if len(m.Columns) == 0 {
		return fmt.Errorf("table mapping for %s has no columns", m.SourceTable)
	}
	if len(m.PrimaryKey) == 0 {
		return fmt.Errorf("table mapping for %s has no primary key columns", m.SourceTable)
	}
	cols := make(map[string]struct{}, len(m.Columns))
	for _, c := range m.Columns {
		cols[strings.ToLower(c)] = struct{}{}
	}
	for _, pk := range m.PrimaryKey {
		if _, ok := cols[strings.ToLower(pk)]; !ok {
			return fmt.Errorf("table mapping for %s: primary key column %s is not mapped", m.SourceTable, pk)
		}
	}
	return nil
}

// ValueColumns returns the mapped columns that are not part of the primary
// key, in mapping order.
func (m TableMapping) ValueColumns() []string {
	pk := make(map[string]struct{}, len(m.PrimaryKey))
	for _, c := range m.PrimaryKey {
		pk[strings.ToLower(c)] = struct{}{}
	}
	out := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		if _, ok := pk[strings.ToLower(c)]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Batch is a bounded ordered run of change records applied as a single
// target transaction. A failure anywhere in the batch rolls back the whole
// batch.
type Batch []ChangeRecord

// OnConflict selects how an adapter treats rows that already exist on the
// target.
type OnConflict string

const (
	// ConflictUpdate rewrites existing rows with the incoming values
	// (insert-or-replace keyed on the primary key columns).
	ConflictUpdate OnConflict = "update"
	// ConflictIgnore leaves existing rows untouched and only adds missing
	// ones.
	ConflictIgnore OnConflict = "ignore"
)

// ApplyOptions carries the per-batch knobs an adapter honors.
type ApplyOptions struct {
	OnConflict        OnConflict
	CreateIfNotExists bool
}

// CursorKey identifies one sync cursor. There is at most one cursor per
// (table, target, direction) triple.
type CursorKey struct {
	Table     string
	TargetID  string
	Direction Direction
}

// String renders the key in the form used for logs and the job registry.
func (k CursorKey) String() string {
	return fmt.Sprintf("%s@%s/%s", k.Table, k.TargetID, k.Direction)
}

// Cursor is the durable pointer to the last commit successfully synchronized
// for a key. It is mutated only by the engine after a fully committed batch
// boundary and never deleted automatically.
type Cursor struct {
	Key        CursorKey
	LastCommit string
	UpdatedAt  time.Time
}

// Commit is one commit of the versioned source, oldest-first in range
// listings.
type Commit struct {
	Hash    string
	Date    time.Time
	Message string
}

// Config is the sync section of the application configuration. Fields map
// from the `sync.*` keys with environment overrides.
type Config struct {
	// BatchSize is the number of change records per target transaction.
	BatchSize int `mapstructure:"batch_size" default:"100000"`
	// OnConflict is the conflict policy: update or ignore.
	OnConflict string `mapstructure:"on_conflict" default:"update"`
	// CreateIfNotExists creates absent target tables from the first
	// batch's row shapes.
	CreateIfNotExists bool `mapstructure:"create_if_not_exists" default:"true"`
	// DecodeCoerced opts reverse syncs into decoding previously coerced
	// values (JSON text, date-only text) back to native forms.
	DecodeCoerced bool `mapstructure:"decode_coerced" default:"false"`
	// CommitMessage overrides the message of Dolt commits created by
	// reverse syncs.
	CommitMessage string `mapstructure:"commit_message" default:""`
	// StateDB selects where cursors persist: target or dolt.
	StateDB string `mapstructure:"state_db" default:"target"`
	// Dialect overrides the adapter variant; defaults to the target
	// driver.
	Dialect string `mapstructure:"dialect" default:""`
	// Tables is the comma-separated default table list for whole-database
	// runs.
	Tables string `mapstructure:"tables" default:""`
}

// TableList splits the configured default table list.
func (c Config) TableList() []string {
	if strings.TrimSpace(c.Tables) == "" {
		return nil
	}
	parts := strings.Split(c.Tables, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Request describes one sync job: a single table, target, and direction.
type Request struct {
	Mapping   TableMapping
	Direction Direction
	// TargetID names the target system in cursor keys, e.g. "mysql:prod".
	TargetID string
	// ToRef is the commit to sync up to; empty means the current head.
	ToRef string
	// BatchSize caps records per transaction; zero means DefaultBatchSize.
	BatchSize         int
	OnConflict        OnConflict
	CreateIfNotExists bool
	// DecodeCoerced decodes coerced values on reverse syncs (opt-in).
	DecodeCoerced bool
	// DryRun extracts and counts without writing or advancing the cursor.
	DryRun bool
	// CommitMessage is used for Dolt commits created by reverse syncs.
	CommitMessage string
}

// Key returns the cursor key this request synchronizes under.
func (r Request) Key() CursorKey {
	return CursorKey{Table: r.Mapping.SourceTable, TargetID: r.TargetID, Direction: r.Direction}
}

func (r *Request) normalize() error {
	if r.Direction == "" {
		r.Direction = ToTarget
	}
	if r.Direction != ToTarget && r.Direction != ToDolt {
		return fmt.Errorf("unknown sync direction %q", r.Direction)
	}
	if r.BatchSize <= 0 {
		r.BatchSize = DefaultBatchSize
	}
	if r.OnConflict == "" {
		r.OnConflict = ConflictUpdate
	}
	if r.OnConflict != ConflictUpdate && r.OnConflict != ConflictIgnore {
		return fmt.Errorf("unknown on-conflict policy %q", r.OnConflict)
	}
	if r.TargetID == "" {
		return fmt.Errorf("sync request has no target id")
	}
	return r.Mapping.Validate()
}

// Result reports a finished or halted sync job. On failure it still carries
// the partial progress made before the halt.
type Result struct {
	Table     string    `json:"table"`
	Direction Direction `json:"direction"`
	// RowsApplied counts change records written by committed transactions
	// (dry runs count extracted records instead).
	RowsApplied int64 `json:"rows_applied"`
	// Batches is the number of applied target transactions.
	Batches int `json:"batches"`
	// FinalCommit is the resolved to-commit of the run.
	FinalCommit string `json:"final_commit"`
	// CursorAdvancedTo is the last durable resume point.
	CursorAdvancedTo string `json:"cursor_advanced_to"`
	// UpToDate is set when the cursor already matched the to-commit.
	UpToDate bool          `json:"up_to_date"`
	Duration time.Duration `json:"duration"`
}
