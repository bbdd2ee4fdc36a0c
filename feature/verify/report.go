package verify

import "time"

// maxSamples caps the example keys reported per discrepancy class.
const maxSamples = 10

// Report is the parity report for one table: schema compatibility plus
// row-level agreement between the Dolt head and the target table.
type Report struct {
	Table       string `json:"table"`
	TargetTable string `json:"target_table"`
	// Commit is the Dolt head the source side was read at.
	Commit string `json:"commit"`

	// TargetMissing is set when the target table does not exist. Row
	// parity is skipped.
	TargetMissing bool `json:"target_missing,omitempty"`
	// MissingColumns lists mapped columns absent on the target. Row
	// parity is skipped when any are missing.
	MissingColumns []string `json:"missing_columns,omitempty"`

	SourceRows int `json:"source_rows"`
	TargetRows int `json:"target_rows"`

	// Missing counts rows present on the source but absent on the target.
	Missing int `json:"missing"`
	// Extra counts rows present on the target but absent on the source.
	Extra int `json:"extra"`
	// Mismatched counts rows present on both sides with different values.
	Mismatched int `json:"mismatched"`

	Samples   Samples   `json:"samples"`
	InSync    bool      `json:"in_sync"`
	CheckedAt time.Time `json:"checked_at"`
}

// Samples holds example primary keys per discrepancy class, rendered as
// "col=value" pairs and sorted for deterministic output.
type Samples struct {
	Missing    []string `json:"missing,omitempty"`
	Extra      []string `json:"extra,omitempty"`
	Mismatched []string `json:"mismatched,omitempty"`
}
