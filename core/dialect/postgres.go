package dialect

import (
	"fmt"
	"strings"

	"doltsync/core/syncer"
)

// postgresBuilder renders Postgres SQL. SQLite accepts the same upsert and
// delete shapes, so embedded targets share this builder.
type postgresBuilder struct{}

func (postgresBuilder) name() string { return Postgres }

func (postgresBuilder) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (b postgresBuilder) upsert(table string, cols, pk []string, rows [][]any, onConflict syncer.OnConflict) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.quote(table))
	sb.WriteString(" (")
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.quote(col))
	}
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	tuple := "(" + placeholders(len(cols)) + ")"
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
		args = append(args, row...)
	}

	sb.WriteString(" ON CONFLICT (")
	for i, col := range pk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.quote(col))
	}
	sb.WriteString(") ")

	setCols := valueColumns(cols, pk)
	if onConflict == syncer.ConflictIgnore || len(setCols) == 0 {
		sb.WriteString("DO NOTHING")
		return sb.String(), args
	}
	sb.WriteString("DO UPDATE SET ")
	for i, col := range setCols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s = EXCLUDED.%s", b.quote(col), b.quote(col))
	}
	return sb.String(), args
}

func (b postgresBuilder) deleteByKey(table string, pk []string, keys [][]any) (string, []any) {
	return deleteByKey(b, table, pk, keys)
}

func (postgresBuilder) columnType(k valueKind, primaryKey bool) string {
	switch k {
	case kindInt:
		return "BIGINT"
	case kindFloat:
		return "DOUBLE PRECISION"
	case kindBool:
		return "BOOLEAN"
	case kindDate:
		return "DATE"
	case kindTime:
		return "TIMESTAMP"
	case kindBytes:
		return "BYTEA"
	default:
		if primaryKey {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

func (postgresBuilder) coerceValue(v any) any { return v }
