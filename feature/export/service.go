package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"doltsync/core/coerce"
	"doltsync/core/database"
	"doltsync/core/storage"
	"doltsync/core/syncer"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExportResult reports one uploaded snapshot.
type ExportResult struct {
	Table  string `json:"table"`
	Commit string `json:"commit"`
	Object string `json:"object"`
	Rows   int    `json:"rows"`
	Bytes  int64  `json:"bytes"`
}

// ImportResult reports one snapshot applied back to the target database.
type ImportResult struct {
	Table       string `json:"table"`
	Object      string `json:"object"`
	RowsApplied int64  `json:"rows_applied"`
	Batches     int    `json:"batches"`
}

// Snapshot describes one stored snapshot object.
type Snapshot struct {
	Object   string    `json:"object"`
	Commit   string    `json:"commit"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Service exports table snapshots as CSV objects and imports them back.
// Snapshots are immutable by construction: the object name embeds the commit
// the table was read at, so re-exporting the same commit overwrites an
// identical object.
type Service struct {
	source   syncer.Source
	target   syncer.Adapter
	doltDB   *gorm.DB
	client   storage.Client
	bucket   string
	defaults syncer.Config
	logger   *zap.Logger
}

// NewService creates a new export service.
func NewService(source syncer.Source, target syncer.Adapter, doltDB *gorm.DB, client storage.Client, bucket string, defaults syncer.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:   source,
		target:   target,
		doltDB:   doltDB,
		client:   client,
		bucket:   bucket,
		defaults: defaults,
		logger:   logger,
	}
}

// Export reads the table as of ref (the head when empty) and uploads it as
// <table>/<commit>.csv. The first CSV row is the column header; empty fields
// denote NULL, matching Dolt's own CSV conventions.
func (s *Service) Export(ctx context.Context, table, ref string) (*ExportResult, error) {
	commit, err := s.source.ResolveCommit(ctx, ref)
	if err != nil {
		return nil, err
	}
	mapping, err := s.resolveMapping(ctx, table, commit)
	if err != nil {
		return nil, err
	}

	iter, err := s.source.SnapshotRows(ctx, mapping, commit)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(mapping.Columns); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	rows := 0
	fields := make([]string, len(mapping.Columns))
	for iter.Next() {
		row := iter.Record().Row()
		for i, col := range mapping.Columns {
			fields[i] = renderField(row[col])
		}
		if err := w.Write(fields); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
		rows++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	object := objectName(table, commit)
	size := int64(buf.Len())
	_, err = s.client.PutObject(ctx, s.bucket, object, &buf, size, minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload snapshot %s: %w", object, err)
	}

	s.logger.Info("Exported snapshot",
		zap.String("table", table),
		zap.String("commit", commit),
		zap.String("object", object),
		zap.Int("rows", rows),
	)
	return &ExportResult{Table: table, Commit: commit, Object: object, Rows: rows, Bytes: size}, nil
}

// Import downloads a snapshot object and applies its rows to the target
// database as inserts, honoring the conflict policy. All values arrive as
// text; the adapters rely on the database's own type coercion, and row
// identity is unaffected because fingerprints canonicalize text forms.
func (s *Service) Import(ctx context.Context, table, object string, onConflict syncer.OnConflict) (*ImportResult, error) {
	if object == "" {
		return nil, fmt.Errorf("import needs an object name")
	}
	if !strings.HasPrefix(object, table+"/") {
		return nil, fmt.Errorf("object %s does not belong to table %s", object, table)
	}

	rc, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot %s: %w", object, err)
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header of %s: %w", object, err)
	}

	pk, err := database.GetPrimaryKeyColumns(s.doltDB, table)
	if err != nil {
		return nil, err
	}
	mapping := syncer.TableMapping{SourceTable: table, Columns: header, PrimaryKey: pk}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	batchSize := s.defaults.BatchSize
	if batchSize <= 0 {
		batchSize = syncer.DefaultBatchSize
	}
	if onConflict == "" {
		onConflict = syncer.OnConflict(s.defaults.OnConflict)
	}
	opts := syncer.ApplyOptions{
		OnConflict:        onConflict,
		CreateIfNotExists: s.defaults.CreateIfNotExists,
	}

	res := &ImportResult{Table: table, Object: object}
	var batch syncer.Batch
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.target.Apply(ctx, batch, mapping, opts)
		res.RowsApplied += n
		if err != nil {
			return err
		}
		res.Batches++
		batch = nil
		return nil
	}

	for {
		fields, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return res, fmt.Errorf("failed to read csv row of %s: %w", object, err)
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			if fields[i] == "" {
				row[col] = nil
			} else {
				row[col] = fields[i]
			}
		}
		batch = append(batch, syncer.ChangeRecord{
			Table:  table,
			Op:     syncer.OpInsert,
			NewRow: row,
		})
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	s.logger.Info("Imported snapshot",
		zap.String("table", table),
		zap.String("object", object),
		zap.Int64("rows_applied", res.RowsApplied),
	)
	return res, nil
}

// Snapshots lists the stored snapshots of a table, newest first.
func (s *Service) Snapshots(ctx context.Context, table string) ([]Snapshot, error) {
	var snaps []Snapshot
	prefix := table + "/"
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list snapshots of %s: %w", table, info.Err)
		}
		if !strings.HasSuffix(info.Key, ".csv") {
			continue
		}
		snaps = append(snaps, Snapshot{
			Object:   info.Key,
			Commit:   strings.TrimSuffix(strings.TrimPrefix(info.Key, prefix), ".csv"),
			Size:     info.Size,
			Modified: info.LastModified,
		})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Modified.After(snaps[j].Modified) })
	return snaps, nil
}

// Remove deletes one snapshot object of a table.
func (s *Service) Remove(ctx context.Context, table, object string) error {
	if !strings.HasPrefix(object, table+"/") {
		return fmt.Errorf("object %s does not belong to table %s", object, table)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove snapshot %s: %w", object, err)
	}
	return nil
}

// RemoveAll deletes every stored snapshot of a table and returns the count.
func (s *Service) RemoveAll(ctx context.Context, table string) (int, error) {
	snaps, err := s.Snapshots(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(snaps))
	for _, snap := range snaps {
		objectsCh <- minio.ObjectInfo{Key: snap.Object}
	}
	close(objectsCh)

	for rmErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rmErr.Err != nil {
			return 0, fmt.Errorf("failed to remove snapshot %s: %w", rmErr.ObjectName, rmErr.Err)
		}
	}

	s.logger.Info("Removed snapshots", zap.String("table", table), zap.Int("count", len(snaps)))
	return len(snaps), nil
}

func (s *Service) resolveMapping(ctx context.Context, table, at string) (syncer.TableMapping, error) {
	cols, err := s.source.TableColumns(ctx, table, at)
	if err != nil {
		return syncer.TableMapping{}, err
	}
	pk, err := database.GetPrimaryKeyColumns(s.doltDB, table)
	if err != nil {
		return syncer.TableMapping{}, err
	}
	m := syncer.TableMapping{SourceTable: table, Columns: cols, PrimaryKey: pk}
	if err := m.Validate(); err != nil {
		return syncer.TableMapping{}, err
	}
	return m, nil
}

// ensureBucket creates the snapshot bucket on first use.
func (s *Service) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("Created snapshot bucket", zap.String("bucket", s.bucket))
	return nil
}

func objectName(table, commit string) string {
	return fmt.Sprintf("%s/%s.csv", table, commit)
}

// renderField formats one value as a CSV field. Empty fields read back as
// NULL, so the encoding is lossy for genuinely empty strings; values without
// a text form are coerced the same way the sync adapters coerce them.
func renderField(v any) string {
	if encoded, rewritten := coerce.EncodeValue(v); rewritten {
		return encoded.(string)
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		if coerce.IsDateOnly(x) {
			return coerce.EncodeDate(x)
		}
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", x)
	}
}
