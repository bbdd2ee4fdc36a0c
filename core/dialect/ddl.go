package dialect

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"doltsync/core/coerce"
	"doltsync/core/fingerprint"
	"doltsync/core/syncer"
)

// valueKind is the coarse type inferred for a column from the values passing
// through a batch. It only needs to be good enough to pick a column type;
// anything ambiguous falls back to text, which every value binds into after
// coercion.
type valueKind int

const (
	kindText valueKind = iota
	kindInt
	kindFloat
	kindBool
	kindDate
	kindTime
	kindBytes
)

// buildCreateTable renders a CREATE TABLE for the mapped table, inferring
// column types from the first batch's values. Primary key columns are NOT
// NULL; everything else stays nullable since later rows may carry NULLs the
// first batch did not.
func buildCreateTable(b builder, table string, mapping syncer.TableMapping, batch syncer.Batch) string {
	kinds := inferKinds(batch, mapping.Columns)
	keyed := make(map[string]bool, len(mapping.PrimaryKey))
	for _, col := range mapping.PrimaryKey {
		keyed[strings.ToLower(col)] = true
	}

	defs := make([]string, 0, len(mapping.Columns)+1)
	for _, col := range mapping.Columns {
		pk := keyed[strings.ToLower(col)]
		def := b.quote(col) + " " + b.columnType(kinds[col], pk)
		if pk {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	quotedPK := make([]string, len(mapping.PrimaryKey))
	for i, col := range mapping.PrimaryKey {
		quotedPK[i] = b.quote(col)
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quotedPK, ", ")))

	return fmt.Sprintf("CREATE TABLE %s (%s)", b.quote(table), strings.Join(defs, ", "))
}

// inferKinds classifies each column from the non-nil values observed across
// the batch. Disagreeing observations widen: date and datetime widen to
// datetime, int and float to float, anything else to text.
func inferKinds(batch syncer.Batch, cols []string) map[string]valueKind {
	kinds := make(map[string]valueKind, len(cols))
	seen := make(map[string]bool, len(cols))
	for _, rec := range batch {
		row := rec.Row()
		for _, col := range cols {
			v := fingerprint.Value(row, col)
			if v == nil {
				continue
			}
			k := kindOf(v)
			if !seen[col] {
				kinds[col], seen[col] = k, true
				continue
			}
			if kinds[col] == k {
				continue
			}
			switch {
			case kinds[col] == kindDate && k == kindTime:
				kinds[col] = kindTime
			case kinds[col] == kindTime && k == kindDate:
				// keep kindTime
			case kinds[col] == kindInt && k == kindFloat,
				kinds[col] == kindFloat && k == kindInt:
				kinds[col] = kindFloat
			default:
				kinds[col] = kindText
			}
		}
	}
	return kinds
}

func kindOf(v any) valueKind {
	switch val := v.(type) {
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return kindInt
	case float32, float64:
		return kindFloat
	case time.Time:
		if coerce.IsDateOnly(val) {
			return kindDate
		}
		return kindTime
	case []byte:
		return kindBytes
	case string, json.RawMessage:
		return kindText
	}
	// Arrays, maps, and other composites coerce to JSON text before binding.
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return kindText
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return kindInt
	case reflect.Float32, reflect.Float64:
		return kindFloat
	case reflect.Bool:
		return kindBool
	}
	return kindText
}
