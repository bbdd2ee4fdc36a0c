package dialect

import (
	"fmt"
	"strings"
	"time"

	"doltsync/core/coerce"
	"doltsync/core/syncer"
)

// oracleBuilder renders Oracle SQL. Identifiers are quoted uppercase, which
// matches how Oracle folds unquoted names, and upserts use MERGE since
// Oracle has no ON CONFLICT form.
type oracleBuilder struct{}

func (oracleBuilder) name() string { return Oracle }

func (oracleBuilder) quote(ident string) string {
	return `"` + strings.ToUpper(strings.ReplaceAll(ident, `"`, ``)) + `"`
}

func (b oracleBuilder) upsert(table string, cols, pk []string, rows [][]any, onConflict syncer.OnConflict) (string, []any) {
	var sb strings.Builder
	sb.WriteString("MERGE INTO ")
	sb.WriteString(b.quote(table))
	sb.WriteString(" t USING (")

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(" UNION ALL ")
		}
		sb.WriteString("SELECT ")
		for c, col := range cols {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			// Column aliases are only needed on the first branch.
			if i == 0 {
				sb.WriteString(" AS ")
				sb.WriteString(b.quote(col))
			}
		}
		sb.WriteString(" FROM DUAL")
		args = append(args, row...)
	}
	sb.WriteString(") s ON (")
	for i, col := range pk {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "t.%s = s.%s", b.quote(col), b.quote(col))
	}
	sb.WriteString(")")

	setCols := valueColumns(cols, pk)
	if onConflict == syncer.ConflictUpdate && len(setCols) > 0 {
		sb.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		for i, col := range setCols {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "t.%s = s.%s", b.quote(col), b.quote(col))
		}
	}

	sb.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.quote(col))
	}
	sb.WriteString(") VALUES (")
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("s.")
		sb.WriteString(b.quote(col))
	}
	sb.WriteString(")")
	return sb.String(), args
}

func (b oracleBuilder) deleteByKey(table string, pk []string, keys [][]any) (string, []any) {
	return deleteByKey(b, table, pk, keys)
}

func (oracleBuilder) columnType(k valueKind, primaryKey bool) string {
	switch k {
	case kindInt:
		return "NUMBER(19)"
	case kindFloat:
		return "BINARY_DOUBLE"
	case kindBool:
		return "NUMBER(1)"
	case kindDate:
		// Date-only values bind as ISO-8601 text on Oracle.
		return "VARCHAR2(10)"
	case kindTime:
		return "TIMESTAMP(6)"
	case kindBytes:
		if primaryKey {
			return "RAW(255)"
		}
		return "BLOB"
	default:
		if primaryKey {
			return "VARCHAR2(255)"
		}
		return "CLOB"
	}
}

// coerceValue rewrites date-only timestamps as ISO-8601 text; the Oracle
// driver's date binding is unreliable for bare dates across NLS settings.
func (oracleBuilder) coerceValue(v any) any {
	if t, ok := v.(time.Time); ok && coerce.IsDateOnly(t) {
		return coerce.EncodeDate(t)
	}
	return v
}
