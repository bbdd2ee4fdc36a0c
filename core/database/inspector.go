package database

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// ColumnInfo matches the output of SHOW COLUMNS.
type ColumnInfo struct {
	Field   string
	Type    string
	Null    string
	Key     string
	Default *string // Pointer because NULL default is possible
	Extra   string
}

// GetTableColumns retrieves the column definitions for a given table.
// The result is normalized to lowercase names and types across dialects.
func GetTableColumns(db *gorm.DB, tableName string) ([]ColumnInfo, error) {
	var columns []ColumnInfo

	switch db.Dialector.Name() {
	case "sqlite":
		// SQLite uses PRAGMA table_info
		type sqliteColumn struct {
			Cid        int
			Name       string
			Type       string
			Notnull    int
			DefaultVal *string
			Pk         int
		}
		var sqliteCols []sqliteColumn
		if err := db.Raw(fmt.Sprintf("PRAGMA table_info('%s')", tableName)).Scan(&sqliteCols).Error; err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
		for _, col := range sqliteCols {
			key := ""
			if col.Pk > 0 {
				key = "PRI"
			}
			null := "YES"
			if col.Notnull == 1 {
				null = "NO"
			}
			columns = append(columns, ColumnInfo{
				Field:   strings.ToLower(col.Name),
				Type:    strings.ToLower(col.Type),
				Null:    null,
				Key:     key,
				Default: col.DefaultVal,
			})
		}
		return columns, nil

	case "postgres":
		err := db.Raw(`SELECT c.column_name AS "field", c.data_type AS "type", c.is_nullable AS "null",
			CASE WHEN k.column_name IS NULL THEN '' ELSE 'PRI' END AS "key"
			FROM information_schema.columns c
			LEFT JOIN (
				SELECT kcu.column_name
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON kcu.constraint_name = tc.constraint_name AND kcu.table_name = tc.table_name
				WHERE tc.table_name = ? AND tc.constraint_type = 'PRIMARY KEY'
			) k ON k.column_name = c.column_name
			WHERE c.table_name = ?
			ORDER BY c.ordinal_position`, tableName, tableName).Scan(&columns).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}

	default:
		// MySQL and Dolt answer SHOW COLUMNS with exact type strings.
		err := db.Raw(fmt.Sprintf("SHOW COLUMNS FROM `%s`", tableName)).Scan(&columns).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
	}

	for i := range columns {
		columns[i].Type = strings.ToLower(columns[i].Type)
		columns[i].Field = strings.ToLower(columns[i].Field)
	}
	return columns, nil
}

// GetPrimaryKeyColumns returns the primary key column names of a table in
// table column order. An empty result means the table has no primary key
// or does not exist.
func GetPrimaryKeyColumns(db *gorm.DB, tableName string) ([]string, error) {
	if db.Dialector.Name() == "sqlite" {
		type sqliteColumn struct {
			Name string
			Pk   int
		}
		var cols []sqliteColumn
		if err := db.Raw(fmt.Sprintf("PRAGMA table_info('%s')", tableName)).Scan(&cols).Error; err != nil {
			return nil, fmt.Errorf("failed to get primary key for table %s: %w", tableName, err)
		}
		var pk []sqliteColumn
		for _, c := range cols {
			if c.Pk > 0 {
				pk = append(pk, c)
			}
		}
		sort.Slice(pk, func(i, j int) bool { return pk[i].Pk < pk[j].Pk })
		names := make([]string, 0, len(pk))
		for _, c := range pk {
			names = append(names, strings.ToLower(c.Name))
		}
		return names, nil
	}

	columns, err := GetTableColumns(db, tableName)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, c := range columns {
		if c.Key == "PRI" {
			names = append(names, c.Field)
		}
	}
	return names, nil
}

// TableExists reports whether the table is present in the connected schema.
func TableExists(db *gorm.DB, tableName string) bool {
	return db.Migrator().HasTable(tableName)
}
