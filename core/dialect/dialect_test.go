package dialect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"doltsync/core/database"
	"doltsync/core/syncer"
)

// setupMockDB creates a mock GORM DB for testing.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func ordersMapping() syncer.TableMapping {
	return syncer.TableMapping{
		SourceTable: "orders",
		Columns:     []string{"id", "status"},
		PrimaryKey:  []string{"id"},
	}
}

func insertRec(id int64, status string) syncer.ChangeRecord {
	return syncer.ChangeRecord{
		Table:  "orders",
		Op:     syncer.OpInsert,
		NewRow: map[string]any{"id": id, "status": status},
	}
}

func TestNew(t *testing.T) {
	db, _ := setupMockDB(t)

	t.Run("known dialects", func(t *testing.T) {
		for name, want := range map[string]string{
			"mysql":    MySQL,
			"MySQL":    MySQL,
			"postgres": Postgres,
			"sqlite":   Postgres, // sqlite reuses the postgres SQL shape
			"oracle":   Oracle,
		} {
			a, err := New(name, db, nil)
			assert.NoError(t, err)
			assert.Equal(t, want, a.Name())
		}
	})

	t.Run("unknown dialect", func(t *testing.T) {
		_, err := New("mssql", db, nil)
		assert.Error(t, err)
	})

	t.Run("nil handle", func(t *testing.T) {
		_, err := New("mysql", nil, nil)
		assert.Error(t, err)
	})
}

func TestApplyMixedBatchSingleTransaction(t *testing.T) {
	db, mock := setupMockDB(t)
	a, err := New(MySQL, db, nil)
	assert.NoError(t, err)

	batch := syncer.Batch{
		insertRec(1, "a"),
		insertRec(2, "b"),
		{
			Table:  "orders",
			Op:     syncer.OpDelete,
			OldRow: map[string]any{"id": int64(3), "status": "c"},
		},
		{
			Table:  "orders",
			Op:     syncer.OpUpdate,
			OldRow: map[string]any{"id": int64(4), "status": "c"},
			NewRow: map[string]any{"id": int64(4), "status": "d"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO `orders` (`id`, `status`) VALUES (?, ?), (?, ?) "+
			"ON DUPLICATE KEY UPDATE `status` = VALUES(`status`)")).
		WithArgs(int64(1), "a", int64(2), "b").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `orders` WHERE `id` IN (?)")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO `orders` (`id`, `status`) VALUES (?, ?) "+
			"ON DUPLICATE KEY UPDATE `status` = VALUES(`status`)")).
		WithArgs(int64(4), "d").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := a.Apply(context.Background(), batch, ordersMapping(), syncer.ApplyOptions{OnConflict: syncer.ConflictUpdate})
	assert.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRollsBackWholeBatch(t *testing.T) {
	db, mock := setupMockDB(t)
	a, err := New(MySQL, db, nil)
	assert.NoError(t, err)

	batch := syncer.Batch{
		insertRec(1, "a"),
		insertRec(2, "b"),
		{
			Table:  "orders",
			Op:     syncer.OpDelete,
			OldRow: map[string]any{"id": int64(3), "status": "c"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `orders`").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM `orders`").
		WillReturnError(errors.New("Error 1205: Lock wait timeout exceeded"))
	mock.ExpectRollback()

	n, err := a.Apply(context.Background(), batch, ordersMapping(), syncer.ApplyOptions{OnConflict: syncer.ConflictUpdate})
	assert.Error(t, err)
	assert.Equal(t, int64(0), n)

	var applyErr *syncer.ApplyError
	assert.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "orders", applyErr.Table)
	assert.Equal(t, 2, applyErr.RecordIndex)
	assert.True(t, syncer.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyClassifiesFailures(t *testing.T) {
	t.Run("schema mismatch is fatal", func(t *testing.T) {
		db, mock := setupMockDB(t)
		a, _ := New(MySQL, db, nil)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `orders`").
			WillReturnError(errors.New("Error 1054: Unknown column 'status' in 'field list'"))
		mock.ExpectRollback()

		_, err := a.Apply(context.Background(), syncer.Batch{insertRec(1, "a")}, ordersMapping(), syncer.ApplyOptions{})
		var schemaErr *syncer.SchemaMismatchError
		assert.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "orders", schemaErr.Table)
		assert.True(t, syncer.IsFatal(err))
	})

	t.Run("connection failure is retryable", func(t *testing.T) {
		db, mock := setupMockDB(t)
		a, _ := New(MySQL, db, nil)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `orders`").
			WillReturnError(errors.New("dial tcp 127.0.0.1:3306: connect: connection refused"))
		mock.ExpectRollback()

		_, err := a.Apply(context.Background(), syncer.Batch{insertRec(1, "a")}, ordersMapping(), syncer.ApplyOptions{})
		var connErr *syncer.ConnectionError
		assert.ErrorAs(t, err, &connErr)
		assert.Equal(t, MySQL, connErr.System)
		assert.True(t, syncer.IsRetryable(err))
	})

	t.Run("invalid record fails before any statement", func(t *testing.T) {
		db, mock := setupMockDB(t)
		a, _ := New(MySQL, db, nil)

		bad := syncer.Batch{{Table: "orders", Op: syncer.OpInsert}} // no new row
		_, err := a.Apply(context.Background(), bad, ordersMapping(), syncer.ApplyOptions{})
		var applyErr *syncer.ApplyError
		assert.ErrorAs(t, err, &applyErr)
		assert.Equal(t, 0, applyErr.RecordIndex)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestApplyEmptyBatch(t *testing.T) {
	db, mock := setupMockDB(t)
	a, _ := New(MySQL, db, nil)

	n, err := a.Apply(context.Background(), nil, ordersMapping(), syncer.ApplyOptions{})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyChunksLongRuns(t *testing.T) {
	db, mock := setupMockDB(t)
	a, _ := New(MySQL, db, nil)

	batch := make(syncer.Batch, 0, maxUpsertRows+1)
	for i := 0; i < maxUpsertRows+1; i++ {
		batch = append(batch, insertRec(int64(i), "x"))
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `orders`").WillReturnResult(sqlmock.NewResult(0, int64(maxUpsertRows)))
	mock.ExpectExec("INSERT INTO `orders`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := a.Apply(context.Background(), batch, ordersMapping(), syncer.ApplyOptions{OnConflict: syncer.ConflictUpdate})
	assert.NoError(t, err)
	assert.Equal(t, int64(maxUpsertRows+1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The sqlite-backed tests run the full statement path against a real engine:
// DDL inference, multi-row upserts, conflict policies, deletes, and reads.
func setupSQLiteDB(t *testing.T) *gorm.DB {
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open sqlite db: %v", err)
	}
	return db
}

func TestApplyEndToEnd(t *testing.T) {
	db := setupSQLiteDB(t)
	a, err := New(SQLite, db, nil)
	assert.NoError(t, err)

	mapping := syncer.TableMapping{
		SourceTable: "orders",
		Columns:     []string{"id", "status", "total"},
		PrimaryKey:  []string{"id"},
	}
	rec := func(id int64, status string, total float64) syncer.ChangeRecord {
		return syncer.ChangeRecord{
			Table:  "orders",
			Op:     syncer.OpInsert,
			NewRow: map[string]any{"id": id, "status": status, "total": total},
		}
	}
	opts := syncer.ApplyOptions{OnConflict: syncer.ConflictUpdate, CreateIfNotExists: true}
	ctx := context.Background()

	// First apply creates the table from the batch's row shapes.
	n, err := a.Apply(ctx, syncer.Batch{rec(1, "new", 9.5), rec(2, "paid", 3.25)}, mapping, opts)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var count int64
	assert.NoError(t, db.Raw("SELECT COUNT(*) FROM orders").Scan(&count).Error)
	assert.Equal(t, int64(2), count)

	// Re-applying the same batch is idempotent.
	_, err = a.Apply(ctx, syncer.Batch{rec(1, "new", 9.5), rec(2, "paid", 3.25)}, mapping, opts)
	assert.NoError(t, err)
	assert.NoError(t, db.Raw("SELECT COUNT(*) FROM orders").Scan(&count).Error)
	assert.Equal(t, int64(2), count)

	// Updates rewrite the non-key columns.
	update := syncer.ChangeRecord{
		Table:  "orders",
		Op:     syncer.OpUpdate,
		OldRow: map[string]any{"id": int64(2), "status": "paid", "total": 3.25},
		NewRow: map[string]any{"id": int64(2), "status": "shipped", "total": 3.25},
	}
	_, err = a.Apply(ctx, syncer.Batch{update}, mapping, opts)
	assert.NoError(t, err)

	var status string
	assert.NoError(t, db.Raw("SELECT status FROM orders WHERE id = 2").Scan(&status).Error)
	assert.Equal(t, "shipped", status)

	// Ignore policy leaves existing rows untouched.
	_, err = a.Apply(ctx, syncer.Batch{rec(2, "reverted", 0)}, mapping,
		syncer.ApplyOptions{OnConflict: syncer.ConflictIgnore})
	assert.NoError(t, err)
	assert.NoError(t, db.Raw("SELECT status FROM orders WHERE id = 2").Scan(&status).Error)
	assert.Equal(t, "shipped", status)

	// Deletes remove by primary key.
	del := syncer.ChangeRecord{
		Table:  "orders",
		Op:     syncer.OpDelete,
		OldRow: map[string]any{"id": int64(1), "status": "new", "total": 9.5},
	}
	_, err = a.Apply(ctx, syncer.Batch{del}, mapping, opts)
	assert.NoError(t, err)
	assert.NoError(t, db.Raw("SELECT COUNT(*) FROM orders").Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplyCoercesDocuments(t *testing.T) {
	db := setupSQLiteDB(t)
	a, _ := New(SQLite, db, nil)

	mapping := syncer.TableMapping{
		SourceTable: "events",
		Columns:     []string{"id", "tags"},
		PrimaryKey:  []string{"id"},
	}
	batch := syncer.Batch{{
		Table:  "events",
		Op:     syncer.OpInsert,
		NewRow: map[string]any{"id": int64(1), "tags": []string{"a", "b"}},
	}}

	_, err := a.Apply(context.Background(), batch, mapping,
		syncer.ApplyOptions{OnConflict: syncer.ConflictUpdate, CreateIfNotExists: true})
	assert.NoError(t, err)

	var tags string
	assert.NoError(t, db.Raw("SELECT tags FROM events WHERE id = 1").Scan(&tags).Error)
	assert.Equal(t, `["a","b"]`, tags)
}

func TestReadRows(t *testing.T) {
	db := setupSQLiteDB(t)
	assert.NoError(t, db.Exec("CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT)").Error)
	assert.NoError(t, db.Exec("INSERT INTO orders VALUES (1, 'new'), (2, 'paid')").Error)

	a, _ := New(SQLite, db, nil)
	reader, ok := a.(syncer.RowReader)
	assert.True(t, ok, "dialect adapters must support reading rows back")

	iter, err := reader.ReadRows(context.Background(), ordersMapping())
	assert.NoError(t, err)
	defer iter.Close()

	var got []syncer.ChangeRecord
	for iter.Next() {
		got = append(got, iter.Record())
	}
	assert.NoError(t, iter.Err())
	assert.Len(t, got, 2)
	for _, rec := range got {
		assert.Equal(t, syncer.OpInsert, rec.Op)
		assert.NotEmpty(t, rec.Fingerprint)
		assert.Nil(t, rec.OldRow)
	}
	assert.Equal(t, "new", got[0].NewRow["status"])

	t.Run("missing table", func(t *testing.T) {
		missing := syncer.TableMapping{SourceTable: "ghosts", Columns: []string{"id"}, PrimaryKey: []string{"id"}}
		_, err := reader.ReadRows(context.Background(), missing)
		var schemaErr *syncer.SchemaMismatchError
		assert.ErrorAs(t, err, &schemaErr)
	})
}

func TestApplyCreatesMissingTableOnce(t *testing.T) {
	db := setupSQLiteDB(t)
	a, _ := New(SQLite, db, nil)

	mapping := ordersMapping()
	opts := syncer.ApplyOptions{OnConflict: syncer.ConflictUpdate, CreateIfNotExists: true}
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := a.Apply(ctx, syncer.Batch{insertRec(int64(i), fmt.Sprintf("s%d", i))}, mapping, opts)
		assert.NoError(t, err)
	}

	var count int64
	assert.NoError(t, db.Raw("SELECT COUNT(*) FROM orders").Scan(&count).Error)
	assert.Equal(t, int64(3), count)
}
