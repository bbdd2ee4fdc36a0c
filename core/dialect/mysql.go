package dialect

import (
	"fmt"
	"strings"

	"doltsync/core/syncer"
)

// mysqlBuilder renders MySQL-family SQL. Dolt itself is a MySQL-family
// target, so reverse syncs write through this builder too.
type mysqlBuilder struct{}

func (mysqlBuilder) name() string { return MySQL }

func (mysqlBuilder) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (b mysqlBuilder) upsert(table string, cols, pk []string, rows [][]any, onConflict syncer.OnConflict) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT ")
	if onConflict == syncer.ConflictIgnore {
		sb.WriteString("IGNORE ")
	}
	sb.WriteString("INTO ")
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

	if onConflict == syncer.ConflictUpdate {
		setCols := valueColumns(cols, pk)
		if len(setCols) == 0 {
			// All columns are key columns; touching the first one keeps the
			// statement valid and leaves the row unchanged.
			setCols = pk[:1]
		}
		sb.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, col := range setCols {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s = VALUES(%s)", b.quote(col), b.quote(col))
		}
	}
	return sb.String(), args
}

func (b mysqlBuilder) deleteByKey(table string, pk []string, keys [][]any) (string, []any) {
	return deleteByKey(b, table, pk, keys)
}

func (mysqlBuilder) columnType(k valueKind, primaryKey bool) string {
	switch k {
	case kindInt:
		return "BIGINT"
	case kindFloat:
		return "DOUBLE"
	case kindBool:
		return "TINYINT(1)"
	case kindDate:
		return "DATE"
	case kindTime:
		return "DATETIME(6)"
	case kindBytes:
		if primaryKey {
			return "VARBINARY(255)"
		}
		return "LONGBLOB"
	default:
		if primaryKey {
			return "VARCHAR(255)"
		}
		return "LONGTEXT"
	}
}

func (mysqlBuilder) coerceValue(v any) any { return v }
