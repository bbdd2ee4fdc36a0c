package dialect

import "strings"

// placeholders returns n comma-joined ? markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// valueColumns returns cols minus the primary key columns, preserving order.
func valueColumns(cols, pk []string) []string {
	keyed := make(map[string]struct{}, len(pk))
	for _, col := range pk {
		keyed[strings.ToLower(col)] = struct{}{}
	}
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		if _, ok := keyed[strings.ToLower(col)]; !ok {
			out = append(out, col)
		}
	}
	return out
}

// deleteByKey renders the delete form shared by every dialect: a single IN
// list for one-column keys, OR-joined conjunctions for composite keys.
func deleteByKey(b builder, table string, pk []string, keys [][]any) (string, []any) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.quote(table))
	sb.WriteString(" WHERE ")

	args := make([]any, 0, len(keys)*len(pk))
	if len(pk) == 1 {
		sb.WriteString(b.quote(pk[0]))
		sb.WriteString(" IN (")
		sb.WriteString(placeholders(len(keys)))
		sb.WriteString(")")
		for _, key := range keys {
			args = append(args, key[0])
		}
		return sb.String(), args
	}

	for i, key := range keys {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(")
		for c, col := range pk {
			if c > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString(b.quote(col))
			sb.WriteString(" = ?")
		}
		sb.WriteString(")")
		args = append(args, key...)
	}
	return sb.String(), args
}
