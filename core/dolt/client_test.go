package dolt

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

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

func TestResolveCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("empty ref resolves head", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT dolt_hashof(?)")).
			WithArgs("HEAD").
			WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow("abc123def456"))

		hash, err := c.ResolveCommit(ctx, "")
		assert.NoError(t, err)
		assert.Equal(t, "abc123def456", hash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("branch ref", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT dolt_hashof(?)")).
			WithArgs("feature/pricing").
			WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow("fff000"))

		hash, err := c.ResolveCommit(ctx, "feature/pricing")
		assert.NoError(t, err)
		assert.Equal(t, "fff000", hash)
	})

	t.Run("unknown ref is fatal", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT dolt_hashof(?)")).
			WithArgs("nope").
			WillReturnError(errors.New("branch not found: nope"))

		_, err := c.ResolveCommit(ctx, "nope")
		var refErr *syncer.RefNotFoundError
		assert.ErrorAs(t, err, &refErr)
		assert.Equal(t, "nope", refErr.Ref)
		assert.True(t, syncer.IsFatal(err))
	})

	t.Run("null hash", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT dolt_hashof(?)")).
			WithArgs("HEAD").
			WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow(nil))

		_, err := c.ResolveCommit(ctx, "")
		var refErr *syncer.RefNotFoundError
		assert.ErrorAs(t, err, &refErr)
	})
}

func TestCommitsBetween(t *testing.T) {
	ctx := context.Background()

	t.Run("reverses log order", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		// dolt_log reports newest first.
		mock.ExpectQuery(regexp.QuoteMeta("SELECT commit_hash, date, message FROM dolt_log(?)")).
			WithArgs("aaa..ccc").
			WillReturnRows(sqlmock.NewRows([]string{"commit_hash", "date", "message"}).
				AddRow("ccc", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), "third").
				AddRow("bbb", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "second"))

		commits, err := c.CommitsBetween(ctx, "aaa", "ccc")
		assert.NoError(t, err)
		assert.Len(t, commits, 2)
		assert.Equal(t, "bbb", commits[0].Hash)
		assert.Equal(t, "second", commits[0].Message)
		assert.Equal(t, "ccc", commits[1].Hash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty range", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT commit_hash, date, message FROM dolt_log(?)")).
			WithArgs("aaa..aaa").
			WillReturnRows(sqlmock.NewRows([]string{"commit_hash", "date", "message"}))

		commits, err := c.CommitsBetween(ctx, "aaa", "aaa")
		assert.NoError(t, err)
		assert.Empty(t, commits)
	})
}

func TestCommitChanges(t *testing.T) {
	ctx := context.Background()

	t.Run("creates commit", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		mock.ExpectExec(regexp.QuoteMeta("CALL DOLT_ADD(?)")).
			WithArgs("orders").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("CALL DOLT_COMMIT('--skip-empty', '-m', ?)")).
			WithArgs("sync orders").
			WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow("newhead"))

		hash, err := c.CommitChanges(ctx, "sync orders", []string{"orders"})
		assert.NoError(t, err)
		assert.Equal(t, "newhead", hash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing staged returns current head", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		mock.ExpectExec(regexp.QuoteMeta("CALL DOLT_ADD(?)")).
			WithArgs("orders").
			WillReturnResult(sqlmock.NewResult(0, 0))
		// --skip-empty answers with no rows when there is nothing to commit.
		mock.ExpectQuery(regexp.QuoteMeta("CALL DOLT_COMMIT('--skip-empty', '-m', ?)")).
			WithArgs("sync orders").
			WillReturnRows(sqlmock.NewRows([]string{"hash"}))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT dolt_hashof(?)")).
			WithArgs("HEAD").
			WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow("samehead"))

		hash, err := c.CommitChanges(ctx, "sync orders", []string{"orders"})
		assert.NoError(t, err)
		assert.Equal(t, "samehead", hash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTableColumns(t *testing.T) {
	ctx := context.Background()

	t.Run("lowercases column names", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders` AS OF 'abc123' LIMIT 0")).
			WillReturnRows(sqlmock.NewRows([]string{"ID", "Status", "total"}))

		cols, err := c.TableColumns(ctx, "orders", "abc123")
		assert.NoError(t, err)
		assert.Equal(t, []string{"id", "status", "total"}, cols)
	})

	t.Run("empty ref reads head", func(t *testing.T) {
		db, mock := setupMockDB(t)
		c := NewClient(db, nil)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders` AS OF 'HEAD' LIMIT 0")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		cols, err := c.TableColumns(ctx, "orders", "")
		assert.NoError(t, err)
		assert.Equal(t, []string{"id"}, cols)
	})

	t.Run("rejects unsafe refs", func(t *testing.T) {
		db, _ := setupMockDB(t)
		c := NewClient(db, nil)

		_, err := c.TableColumns(ctx, "orders", "x'; DROP TABLE orders")
		var refErr *syncer.RefNotFoundError
		assert.ErrorAs(t, err, &refErr)
	})
}
