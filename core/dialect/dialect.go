package dialect

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"doltsync/core/coerce"
	"doltsync/core/fingerprint"
	"doltsync/core/syncer"
)

// Supported dialect names, as accepted by New.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	Oracle   = "oracle"
	SQLite   = "sqlite"
)

// Statement chunk ceilings. Multi-row statements are split so a single
// exec never carries more rows than this, keeping packet sizes and bind
// variable counts inside every target's limits.
const (
	maxUpsertRows = 500
	maxDeleteRows = 1000
)

// builder is the per-dialect SQL surface. Implementations are pure string
// formatters; they never touch the database.
type builder interface {
	name() string
	quote(ident string) string
	// upsert renders one multi-row insert for rows under the given conflict
	// policy. cols lists the insert columns, pk the key columns; rows are
	// bind values in cols order.
	upsert(table string, cols, pk []string, rows [][]any, onConflict syncer.OnConflict) (string, []any)
	// deleteByKey renders one statement removing the rows identified by
	// keys, each a bind-value tuple in pk order.
	deleteByKey(table string, pk []string, keys [][]any) (string, []any)
	// columnType maps an inferred value kind to this dialect's column type.
	columnType(k valueKind, primaryKey bool) string
	// coerceValue rewrites values the dialect cannot bind natively. It runs
	// after the generic document coercion.
	coerceValue(v any) any
}

// adapter wraps a builder with the shared application machinery. It
// implements syncer.Adapter and syncer.RowReader.
type adapter struct {
	db  *gorm.DB
	log *zap.Logger
	b   builder
}

// New returns an adapter for the named dialect, applying changes over db.
// SQLite targets reuse the Postgres SQL shape, which SQLite accepts.
func New(name string, db *gorm.DB, log *zap.Logger) (syncer.Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("dialect: nil database handle")
	}
	if log == nil {
		log = zap.NewNop()
	}
	var b builder
	switch strings.ToLower(strings.TrimSpace(name)) {
	case MySQL:
		b = mysqlBuilder{}
	case Postgres, SQLite:
		b = postgresBuilder{}
	case Oracle:
		b = oracleBuilder{}
	default:
		return nil, fmt.Errorf("dialect: unsupported dialect %q", name)
	}
	return &adapter{db: db, log: log, b: b}, nil
}

func (a *adapter) Name() string {
	return a.b.name()
}

// Apply writes one batch inside a single transaction. Consecutive records
// with compatible operations are folded into multi-row statements; any
// statement failure rolls back the whole batch so re-running it stays safe.
func (a *adapter) Apply(ctx context.Context, batch syncer.Batch, mapping syncer.TableMapping, opts syncer.ApplyOptions) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if err := mapping.Validate(); err != nil {
		return 0, err
	}
	table := mapping.Target()
	if opts.CreateIfNotExists {
		if err := a.ensureTable(ctx, batch, mapping); err != nil {
			return 0, err
		}
	}
	stmts, err := a.plan(batch, mapping, opts)
	if err != nil {
		return 0, err
	}
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, st := range stmts {
			if err := tx.Exec(st.sql, st.args...).Error; err != nil {
				return a.classify(err, table, st.first)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	a.log.Debug("Applied batch",
		zap.String("dialect", a.b.name()),
		zap.String("table", table),
		zap.Int("records", len(batch)),
		zap.Int("statements", len(stmts)))
	return int64(len(batch)), nil
}

// statement is one executable chunk of a batch. first is the batch index of
// its first record, reported on failure so callers can locate bad rows.
type statement struct {
	sql   string
	args  []any
	first int
}

// plan folds the batch into chunked statements, preserving record order.
// Inserts and updates share the upsert form, so a run only breaks when the
// operation switches to or from delete.
func (a *adapter) plan(batch syncer.Batch, mapping syncer.TableMapping, opts syncer.ApplyOptions) ([]statement, error) {
	table := mapping.Target()
	cols := mapping.Columns
	pk := mapping.PrimaryKey

	var stmts []statement
	i := 0
	for i < len(batch) {
		if err := batch[i].Validate(); err != nil {
			return nil, &syncer.ApplyError{Table: table, RecordIndex: i, Err: err}
		}
		isDelete := batch[i].Op == syncer.OpDelete
		j := i + 1
		for j < len(batch) && (batch[j].Op == syncer.OpDelete) == isDelete {
			if err := batch[j].Validate(); err != nil {
				return nil, &syncer.ApplyError{Table: table, RecordIndex: j, Err: err}
			}
			j++
		}
		run := batch[i:j]
		limit := maxUpsertRows
		if isDelete {
			limit = maxDeleteRows
		}
		for start := 0; start < len(run); start += limit {
			end := start + limit
			if end > len(run) {
				end = len(run)
			}
			chunk := run[start:end]
			var sql string
			var args []any
			if isDelete {
				sql, args = a.b.deleteByKey(table, pk, a.keyTuples(chunk, pk))
			} else {
				sql, args = a.b.upsert(table, cols, pk, a.rowTuples(chunk, cols), opts.OnConflict)
			}
			stmts = append(stmts, statement{sql: sql, args: args, first: i + start})
		}
		i = j
	}
	return stmts, nil
}

// rowTuples extracts bind values in column order for upsert records.
func (a *adapter) rowTuples(chunk syncer.Batch, cols []string) [][]any {
	rows := make([][]any, len(chunk))
	for i, rec := range chunk {
		row := rec.Row()
		vals := make([]any, len(cols))
		for c, col := range cols {
			vals[c] = a.bindValue(fingerprint.Value(row, col))
		}
		rows[i] = vals
	}
	return rows
}

// keyTuples extracts primary key bind values for delete records.
func (a *adapter) keyTuples(chunk syncer.Batch, pk []string) [][]any {
	keys := make([][]any, len(chunk))
	for i, rec := range chunk {
		row := rec.Row()
		vals := make([]any, len(pk))
		for c, col := range pk {
			vals[c] = a.bindValue(fingerprint.Value(row, col))
		}
		keys[i] = vals
	}
	return keys
}

// bindValue runs the generic document coercion, then the dialect's own.
func (a *adapter) bindValue(v any) any {
	encoded, _ := coerce.EncodeValue(v)
	return a.b.coerceValue(encoded)
}

// ensureTable creates the target table when it does not exist, inferring the
// schema from the batch being applied.
func (a *adapter) ensureTable(ctx context.Context, batch syncer.Batch, mapping syncer.TableMapping) error {
	table := mapping.Target()
	if a.db.WithContext(ctx).Migrator().HasTable(table) {
		return nil
	}
	ddl := buildCreateTable(a.b, table, mapping, batch)
	if err := a.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return a.classify(err, table, 0)
	}
	a.log.Info("Created target table",
		zap.String("dialect", a.b.name()),
		zap.String("table", table),
		zap.Strings("primary_key", mapping.PrimaryKey))
	return nil
}

// ReadRows streams the current contents of the mapped target table as insert
// records, letting the sync engine diff a conventional database against a
// Dolt head. Implements syncer.RowReader.
func (a *adapter) ReadRows(ctx context.Context, mapping syncer.TableMapping) (syncer.RecordIterator, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	table := mapping.Target()
	quoted := make([]string, len(mapping.Columns))
	for i, col := range mapping.Columns {
		quoted[i] = a.b.quote(col)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), a.b.quote(table))
	rows, err := a.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, a.classify(err, table, 0)
	}
	return syncer.NewSnapshotIterator(rows, mapping)
}

// classify maps a driver error onto the sync error taxonomy.
func (a *adapter) classify(err error, table string, recordIndex int) error {
	if err == nil {
		return nil
	}
	if syncer.IsConnectionFailure(err) {
		return &syncer.ConnectionError{System: a.b.name(), Err: err}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unknown column"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "invalid identifier"), // ORA-00904
		strings.Contains(msg, "of relation") && strings.Contains(msg, "does not exist"):
		return &syncer.SchemaMismatchError{Table: table, Detail: "column missing on target", Err: err}
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "doesn't exist"),
		strings.Contains(msg, "table or view does not exist"), // ORA-00942
		strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"):
		return &syncer.SchemaMismatchError{Table: table, Detail: "table missing on target", Err: err}
	}
	return &syncer.ApplyError{Table: table, RecordIndex: recordIndex, Err: err}
}
