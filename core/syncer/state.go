package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cursorRow is the persisted shape of a cursor. The composite primary key
// gives the at-most-one-row-per-key guarantee and row-level isolation for
// concurrent jobs on distinct keys.
type cursorRow struct {
	Table      string    `gorm:"column:table_name;primaryKey;size:191"`
	TargetID   string    `gorm:"column:target_id;primaryKey;size:191"`
	Direction  string    `gorm:"column:direction;primaryKey;size:32"`
	LastCommit string    `gorm:"column:last_commit;size:64"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (cursorRow) TableName() string { return "doltsync_cursors" }

func (r cursorRow) cursor() Cursor {
	return Cursor{
		Key: CursorKey{
			Table:     r.Table,
			TargetID:  r.TargetID,
			Direction: Direction(r.Direction),
		},
		LastCommit: r.LastCommit,
		UpdatedAt:  r.UpdatedAt,
	}
}

// SQLCursorStore is the CursorStore backed by a doltsync_cursors table in
// either the target database or Dolt itself. Which side holds it is a
// configuration choice; the semantics are identical.
type SQLCursorStore struct {
	db *gorm.DB
}

// NewSQLCursorStore creates the store and the backing table if absent.
func NewSQLCursorStore(db *gorm.DB) (*SQLCursorStore, error) {
	if err := db.AutoMigrate(&cursorRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cursor table: %w", err)
	}
	return &SQLCursorStore{db: db}, nil
}

// Get returns the cursor for a key, with found=false when the key has never
// been advanced.
func (s *SQLCursorStore) Get(ctx context.Context, key CursorKey) (Cursor, bool, error) {
	var row cursorRow
	err := s.db.WithContext(ctx).
		Where("table_name = ? AND target_id = ? AND direction = ?", key.Table, key.TargetID, string(key.Direction)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, fmt.Errorf("failed to read cursor %s: %w", key, err)
	}
	return row.cursor(), true, nil
}

// Advance upserts the cursor to a new commit. The write touches exactly one
// row, so jobs on distinct keys never contend.
func (s *SQLCursorStore) Advance(ctx context.Context, key CursorKey, commit string) error {
	row := cursorRow{
		Table:      key.Table,
		TargetID:   key.TargetID,
		Direction:  string(key.Direction),
		LastCommit: commit,
		UpdatedAt:  time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "table_name"}, {Name: "target_id"}, {Name: "direction"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"last_commit", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to advance cursor %s to %s: %w", key, commit, err)
	}
	return nil
}

// List returns all cursors, ordered by key for deterministic output.
func (s *SQLCursorStore) List(ctx context.Context) ([]Cursor, error) {
	var rows []cursorRow
	err := s.db.WithContext(ctx).
		Order("table_name, target_id, direction").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	cursors := make([]Cursor, 0, len(rows))
	for _, r := range rows {
		cursors = append(cursors, r.cursor())
	}
	return cursors, nil
}

// Reset deletes the cursor for a key, forcing the next sync of that key to
// run from the table's creation point. Cursors are never deleted by the
// engine itself; reset is always an explicit caller action.
func (s *SQLCursorStore) Reset(ctx context.Context, key CursorKey) error {
	err := s.db.WithContext(ctx).
		Where("table_name = ? AND target_id = ? AND direction = ?", key.Table, key.TargetID, string(key.Direction)).
		Delete(&cursorRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to reset cursor %s: %w", key, err)
	}
	return nil
}
