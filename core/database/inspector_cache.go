package database

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// TableSchema holds the cached schema of one table.
type TableSchema struct {
	// Columns are the table's column definitions in table order.
	Columns []ColumnInfo

	// PrimaryKey holds the primary key column names.
	PrimaryKey []string

	// Built is the timestamp when this entry was built.
	Built time.Time

	// TTL is the time-to-live for this entry.
	TTL time.Duration
}

// IsExpired returns true if this entry has expired based on its TTL.
func (s *TableSchema) IsExpired() bool {
	if s.TTL == 0 {
		return true // No caching
	}
	return time.Since(s.Built) > s.TTL
}

// ColumnNames returns the column names in table order.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		names = append(names, c.Field)
	}
	return names
}

// Inspector caches schema lookups for one connection. Sync jobs consult the
// schema once per run; the cache keeps repeated jobs and the verify feature
// from hammering information_schema.
type Inspector struct {
	db  *gorm.DB
	ttl time.Duration

	mu     sync.RWMutex
	tables map[string]*TableSchema
	sf     singleflight.Group
}

// NewInspector creates an inspector over the given connection. A zero TTL
// disables caching.
func NewInspector(db *gorm.DB, ttl time.Duration) *Inspector {
	return &Inspector{
		db:     db,
		ttl:    ttl,
		tables: make(map[string]*TableSchema),
	}
}

// Schema returns the (possibly cached) schema of a table.
// Uses singleflight to prevent lookup stampedes.
func (i *Inspector) Schema(table string) (*TableSchema, error) {
	// Fast path: fresh cache entry
	i.mu.RLock()
	entry, exists := i.tables[table]
	i.mu.RUnlock()

	if exists && !entry.IsExpired() {
		return entry, nil
	}

	result, err, _ := i.sf.Do(table, func() (interface{}, error) {
		// Double-check after acquiring the singleflight lock
		i.mu.RLock()
		entry, exists := i.tables[table]
		i.mu.RUnlock()

		if exists && !entry.IsExpired() {
			return entry, nil
		}

		columns, err := GetTableColumns(i.db, table)
		if err != nil {
			return nil, err
		}
		pk, err := GetPrimaryKeyColumns(i.db, table)
		if err != nil {
			return nil, err
		}

		fresh := &TableSchema{
			Columns:    columns,
			PrimaryKey: pk,
			Built:      time.Now(),
			TTL:        i.ttl,
		}

		i.mu.Lock()
		i.tables[table] = fresh
		i.mu.Unlock()

		return fresh, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*TableSchema), nil
}

// Invalidate removes the cached entry for a table, forcing a rebuild.
// Used after adapters create or alter the table.
func (i *Inspector) Invalidate(table string) {
	i.mu.Lock()
	delete(i.tables, table)
	i.mu.Unlock()
}
