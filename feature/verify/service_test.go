package verify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"doltsync/core/database"
	"doltsync/core/dialect"
	"doltsync/core/fingerprint"
	"doltsync/core/syncer"
	"doltsync/feature/verify"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sliceIter replays a fixed record slice as a RecordIterator.
type sliceIter struct {
	recs []syncer.ChangeRecord
	i    int
}

func (s *sliceIter) Next() bool {
	if s.i >= len(s.recs) {
		return false
	}
	s.i++
	return true
}

func (s *sliceIter) Record() syncer.ChangeRecord { return s.recs[s.i-1] }
func (s *sliceIter) Err() error                  { return nil }
func (s *sliceIter) Close() error                { return nil }

// fakeSource serves one head commit and a fixed snapshot per table.
type fakeSource struct {
	mu        sync.Mutex
	head      string
	columns   map[string][]string
	rows      map[string][]syncer.ChangeRecord
	snapCalls int
}

func (f *fakeSource) ResolveCommit(ctx context.Context, ref string) (string, error) {
	if ref == "" || ref == "HEAD" {
		return f.head, nil
	}
	return "", &syncer.RefNotFoundError{Ref: ref}
}

func (f *fakeSource) CommitsBetween(ctx context.Context, from, to string) ([]syncer.Commit, error) {
	return nil, nil
}

func (f *fakeSource) DiffRows(ctx context.Context, mapping syncer.TableMapping, from, to string) (syncer.RecordIterator, error) {
	return &sliceIter{}, nil
}

func (f *fakeSource) SnapshotRows(ctx context.Context, mapping syncer.TableMapping, at string) (syncer.RecordIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapCalls++
	return &sliceIter{recs: f.rows[mapping.SourceTable]}, nil
}

func (f *fakeSource) CommitChanges(ctx context.Context, message string, tables []string) (string, error) {
	return f.head, nil
}

func (f *fakeSource) TableColumns(ctx context.Context, table, at string) ([]string, error) {
	cols, ok := f.columns[table]
	if !ok {
		return nil, &syncer.SchemaMismatchError{Table: table, Detail: "table not found"}
	}
	return cols, nil
}

func orderRecord(id int64, status string) syncer.ChangeRecord {
	row := map[string]any{"id": id, "status": status}
	return syncer.ChangeRecord{
		Table:       "orders",
		Op:          syncer.OpInsert,
		Fingerprint: fingerprint.Fingerprint(row, []string{"id"}),
		NewRow:      row,
	}
}

func openSQLite(t *testing.T) *gorm.DB {
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	assert.NoError(t, err)
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	// A shared in-memory sqlite db needs a single connection.
	sqlDB.SetMaxOpenConns(1)
	return db
}

// setupService wires the service over a fake Dolt source and a real sqlite
// target behind the dialect adapter, with a second sqlite standing in for the
// Dolt connection's schema queries.
func setupService(t *testing.T, source *fakeSource, ttl time.Duration) (*verify.Service, *gorm.DB) {
	doltDB := openSQLite(t)
	assert.NoError(t, doltDB.Exec("CREATE TABLE orders (id INTEGER, status TEXT, PRIMARY KEY (id))").Error)

	targetDB := openSQLite(t)
	assert.NoError(t, targetDB.Exec("CREATE TABLE orders (id INTEGER, status TEXT, PRIMARY KEY (id))").Error)

	target, err := dialect.New(dialect.SQLite, targetDB, zap.NewNop())
	assert.NoError(t, err)

	return verify.NewService(source, target, doltDB, targetDB, ttl, zap.NewNop()), targetDB
}

func newOrdersSource(recs ...syncer.ChangeRecord) *fakeSource {
	return &fakeSource{
		head:    "c9",
		columns: map[string][]string{"orders": {"id", "status"}},
		rows:    map[string][]syncer.ChangeRecord{"orders": recs},
	}
}

func TestCheckInSync(t *testing.T) {
	source := newOrdersSource(orderRecord(1, "new"), orderRecord(2, "paid"))
	svc, targetDB := setupService(t, source, 0)
	assert.NoError(t, targetDB.Exec("INSERT INTO orders (id, status) VALUES (1, 'new'), (2, 'paid')").Error)

	report, err := svc.Check(context.Background(), "orders", "")
	assert.NoError(t, err)
	assert.True(t, report.InSync)
	assert.Equal(t, "c9", report.Commit)
	assert.Equal(t, 2, report.SourceRows)
	assert.Equal(t, 2, report.TargetRows)
	assert.Zero(t, report.Missing)
	assert.Zero(t, report.Extra)
	assert.Zero(t, report.Mismatched)
	assert.Empty(t, report.Samples.Missing)
}

func TestCheckFindsDrift(t *testing.T) {
	source := newOrdersSource(orderRecord(1, "new"), orderRecord(2, "paid"), orderRecord(3, "shipped"))
	svc, targetDB := setupService(t, source, 0)
	// 1 is missing, 3 drifted, 4 exists only on the target.
	assert.NoError(t, targetDB.Exec("INSERT INTO orders (id, status) VALUES (2, 'paid'), (3, 'cancelled'), (4, 'new')").Error)

	report, err := svc.Check(context.Background(), "orders", "")
	assert.NoError(t, err)
	assert.False(t, report.InSync)
	assert.Equal(t, 3, report.SourceRows)
	assert.Equal(t, 3, report.TargetRows)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 1, report.Extra)
	assert.Equal(t, 1, report.Mismatched)
	assert.Equal(t, []string{"id=1"}, report.Samples.Missing)
	assert.Equal(t, []string{"id=4"}, report.Samples.Extra)
	assert.Equal(t, []string{"id=3"}, report.Samples.Mismatched)
}

func TestCheckTargetTableMissing(t *testing.T) {
	source := &fakeSource{
		head:    "c9",
		columns: map[string][]string{"payments": {"id", "amount"}},
	}
	// The Dolt side has the table; the target side never created it.
	doltDB := openSQLite(t)
	assert.NoError(t, doltDB.Exec("CREATE TABLE payments (id INTEGER, amount REAL, PRIMARY KEY (id))").Error)

	targetDB := openSQLite(t)
	target, err := dialect.New(dialect.SQLite, targetDB, zap.NewNop())
	assert.NoError(t, err)
	svc := verify.NewService(source, target, doltDB, targetDB, 0, zap.NewNop())

	report, err := svc.Check(context.Background(), "payments", "")
	assert.NoError(t, err)
	assert.True(t, report.TargetMissing)
	assert.False(t, report.InSync)
	assert.Zero(t, report.SourceRows)
}

func TestCheckMissingColumns(t *testing.T) {
	source := newOrdersSource(orderRecord(1, "new"))
	doltDB := openSQLite(t)
	assert.NoError(t, doltDB.Exec("CREATE TABLE orders (id INTEGER, status TEXT, PRIMARY KEY (id))").Error)

	targetDB := openSQLite(t)
	assert.NoError(t, targetDB.Exec("CREATE TABLE orders (id INTEGER, PRIMARY KEY (id))").Error)
	target, err := dialect.New(dialect.SQLite, targetDB, zap.NewNop())
	assert.NoError(t, err)
	svc := verify.NewService(source, target, doltDB, targetDB, 0, zap.NewNop())

	report, err := svc.Check(context.Background(), "orders", "")
	assert.NoError(t, err)
	assert.Equal(t, []string{"status"}, report.MissingColumns)
	assert.False(t, report.InSync)
	assert.Zero(t, report.SourceRows)
}

func TestCheckTargetTableOverride(t *testing.T) {
	source := newOrdersSource(orderRecord(1, "new"))
	svc, targetDB := setupService(t, source, 0)
	assert.NoError(t, targetDB.Exec("CREATE TABLE orders_mirror (id INTEGER, status TEXT, PRIMARY KEY (id))").Error)
	assert.NoError(t, targetDB.Exec("INSERT INTO orders_mirror (id, status) VALUES (1, 'new')").Error)

	report, err := svc.Check(context.Background(), "orders", "orders_mirror")
	assert.NoError(t, err)
	assert.Equal(t, "orders_mirror", report.TargetTable)
	assert.True(t, report.InSync)
}

func TestCheckUnknownTable(t *testing.T) {
	source := newOrdersSource()
	svc, _ := setupService(t, source, 0)

	_, err := svc.Check(context.Background(), "ghosts", "")
	assert.Error(t, err)
	assert.True(t, syncer.IsFatal(err))
}

func TestCheckCachesWithinTTL(t *testing.T) {
	source := newOrdersSource(orderRecord(1, "new"))
	svc, targetDB := setupService(t, source, time.Minute)
	assert.NoError(t, targetDB.Exec("INSERT INTO orders (id, status) VALUES (1, 'new')").Error)

	first, err := svc.Check(context.Background(), "orders", "")
	assert.NoError(t, err)
	second, err := svc.Check(context.Background(), "orders", "")
	assert.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, source.snapCalls)

	// A different target name is a different cache key.
	assert.NoError(t, targetDB.Exec("CREATE TABLE orders_mirror (id INTEGER, status TEXT, PRIMARY KEY (id))").Error)
	assert.NoError(t, targetDB.Exec("INSERT INTO orders_mirror (id, status) VALUES (1, 'new')").Error)
	_, err = svc.Check(context.Background(), "orders", "orders_mirror")
	assert.NoError(t, err)
	assert.Equal(t, 2, source.snapCalls)
}

func TestCheckExpiredTTLRescans(t *testing.T) {
	source := newOrdersSource(orderRecord(1, "new"))
	svc, targetDB := setupService(t, source, 10*time.Millisecond)
	assert.NoError(t, targetDB.Exec("INSERT INTO orders (id, status) VALUES (1, 'new')").Error)

	_, err := svc.Check(context.Background(), "orders", "")
	assert.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = svc.Check(context.Background(), "orders", "")
	assert.NoError(t, err)
	assert.Equal(t, 2, source.snapCalls)
}

func TestCheckZeroTTLDisablesCache(t *testing.T) {
	source := newOrdersSource(orderRecord(1, "new"))
	svc, targetDB := setupService(t, source, 0)
	assert.NoError(t, targetDB.Exec("INSERT INTO orders (id, status) VALUES (1, 'new')").Error)

	_, err := svc.Check(context.Background(), "orders", "")
	assert.NoError(t, err)
	_, err = svc.Check(context.Background(), "orders", "")
	assert.NoError(t, err)
	assert.Equal(t, 2, source.snapCalls)
}
