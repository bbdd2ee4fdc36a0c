package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"doltsync/core/coerce"
	"doltsync/core/fingerprint"

	"go.uber.org/zap"
)

// Engine drives the sync pipeline for one job at a time:
//
//	INIT → RESOLVE_RANGE → EXTRACT → BATCH_APPLY (loop) → ADVANCE_CURSOR → DONE
//
// Each job is a single-threaded sequential pipeline; running independent
// jobs concurrently is safe as long as their cursor keys differ (see
// RunMany).
type Engine struct {
	source Source
	target Adapter
	// dolt is the write side on the Dolt connection, used by reverse
	// jobs. Nil disables the ToDolt direction.
	dolt  Adapter
	store CursorStore
	log   *zap.Logger
}

// NewEngine wires an engine from its collaborators. The dolt adapter may be
// nil when reverse sync is not needed.
func NewEngine(source Source, target Adapter, dolt Adapter, store CursorStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{source: source, target: target, dolt: dolt, store: store, log: log}
}

// step is one durable unit of forward progress: the diff between two
// adjacent commits, or a full snapshot for a first sync. The cursor advances
// to boundary only after every batch of the step committed.
type step struct {
	from     string
	boundary string
	full     bool
}

// Run executes one sync job and reports the outcome. On failure the
// returned result still carries the rows applied and the cursor position
// reached before the halt, so callers can resume safely; the engine never
// retries on its own.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if err := req.normalize(); err != nil {
		return nil, err
	}

	res := &Result{Table: req.Mapping.SourceTable, Direction: req.Direction}
	log := e.log.With(
		zap.String("table", req.Mapping.SourceTable),
		zap.String("target", req.TargetID),
		zap.String("direction", string(req.Direction)),
	)

	var err error
	if req.Direction == ToDolt {
		err = e.runToDolt(ctx, req, res, log)
	} else {
		err = e.runToTarget(ctx, req, res, log)
	}

	res.Duration = time.Since(started)
	if err != nil {
		log.Error("Sync failed",
			zap.Int64("rows_applied", res.RowsApplied),
			zap.String("cursor", res.CursorAdvancedTo),
			zap.Error(err),
		)
		return res, err
	}

	log.Info("Sync finished",
		zap.Int64("rows_applied", res.RowsApplied),
		zap.Int("batches", res.Batches),
		zap.String("commit", res.FinalCommit),
		zap.Bool("up_to_date", res.UpToDate),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// runToTarget replays Dolt commits onto the target RDBMS.
func (e *Engine) runToTarget(ctx context.Context, req Request, res *Result, log *zap.Logger) error {
	key := req.Key()

	// RESOLVE_RANGE
	to, err := e.source.ResolveCommit(ctx, req.ToRef)
	if err != nil {
		return err
	}
	res.FinalCommit = to

	cur, found, err := e.store.Get(ctx, key)
	if err != nil {
		return err
	}

	var steps []step
	if !found {
		// No cursor: full sync from the table's creation point,
		// expressed as a snapshot of the table as of the to-commit.
		steps = []step{{boundary: to, full: true}}
		log.Info("No cursor found, running full sync", zap.String("to", to))
	} else {
		res.CursorAdvancedTo = cur.LastCommit
		if cur.LastCommit == to {
			res.UpToDate = true
			return nil
		}
		commits, err := e.source.CommitsBetween(ctx, cur.LastCommit, to)
		if err != nil {
			return err
		}
		prev := cur.LastCommit
		for _, c := range commits {
			steps = append(steps, step{from: prev, boundary: c.Hash})
			prev = c.Hash
		}
		if len(steps) == 0 {
			// to is not ahead of the cursor (e.g. an explicit sync
			// to an older commit). Replay the direct diff.
			steps = []step{{from: cur.LastCommit, boundary: to}}
		}
		log.Info("Resolved sync range",
			zap.String("from", cur.LastCommit),
			zap.String("to", to),
			zap.Int("steps", len(steps)),
		)
	}

	// EXTRACT → BATCH_APPLY loop, one commit step at a time. Advancing
	// after every step makes each commit a durable resume point.
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.applyStep(ctx, req, st, res); err != nil {
			return err
		}
		// ADVANCE_CURSOR
		if !req.DryRun {
			if err := e.store.Advance(ctx, key, st.boundary); err != nil {
				return err
			}
			res.CursorAdvancedTo = st.boundary
		}
		log.Debug("Step applied",
			zap.String("boundary", st.boundary),
			zap.Int64("rows_applied", res.RowsApplied),
		)
	}
	return nil
}

// applyStep extracts one step's records and applies them in bounded
// batches, each in its own target transaction.
func (e *Engine) applyStep(ctx context.Context, req Request, st step, res *Result) error {
	var (
		iter RecordIterator
		err  error
	)
	if st.full {
		iter, err = e.source.SnapshotRows(ctx, req.Mapping, st.boundary)
	} else {
		iter, err = e.source.DiffRows(ctx, req.Mapping, st.from, st.boundary)
	}
	if err != nil {
		return err
	}
	defer iter.Close()

	opts := ApplyOptions{OnConflict: req.OnConflict, CreateIfNotExists: req.CreateIfNotExists}
	var batch Batch
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		// Cancellation between batches is always safe: the cursor
		// marks the resume point.
		if err := ctx.Err(); err != nil {
			return err
		}
		if req.DryRun {
			res.RowsApplied += int64(len(batch))
		} else {
			n, err := e.target.Apply(ctx, batch, req.Mapping, opts)
			res.RowsApplied += n
			if err != nil {
				return err
			}
		}
		res.Batches++
		batch = nil
		return nil
	}

	for iter.Next() {
		batch = append(batch, iter.Record())
		if len(batch) >= req.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return flush()
}

// runToDolt computes a snapshot diff between the target table and the Dolt
// head, applies it on the Dolt side, and commits the applied changes.
func (e *Engine) runToDolt(ctx context.Context, req Request, res *Result, log *zap.Logger) error {
	if e.dolt == nil {
		return fmt.Errorf("reverse sync requires a Dolt-side adapter")
	}
	reader, ok := e.target.(RowReader)
	if !ok {
		return fmt.Errorf("target adapter %s cannot read rows back, reverse sync unsupported", e.target.Name())
	}
	key := req.Key()

	// RESOLVE_RANGE: reverse jobs always diff against the current head.
	head, err := e.source.ResolveCommit(ctx, "")
	if err != nil {
		return err
	}
	res.FinalCommit = head
	if cur, found, err := e.store.Get(ctx, key); err != nil {
		return err
	} else if found {
		res.CursorAdvancedTo = cur.LastCommit
	}

	// EXTRACT: index the Dolt rows once, then stream the target rows and
	// classify each against the index.
	snap, err := e.source.SnapshotRows(ctx, req.Mapping, head)
	if err != nil {
		return err
	}
	idx, err := BuildIndex(snap, req.Mapping)
	if err != nil {
		return err
	}
	log.Info("Indexed source rows", zap.String("head", head), zap.Int("rows", len(idx)))

	writeMapping := req.Mapping.Reverse()
	opts := ApplyOptions{OnConflict: req.OnConflict, CreateIfNotExists: req.CreateIfNotExists}
	message := req.CommitMessage
	if message == "" {
		message = fmt.Sprintf("doltsync: %s from %s", req.Mapping.SourceTable, req.TargetID)
	}

	var batch Batch
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if req.DryRun {
			res.RowsApplied += int64(len(batch))
			res.Batches++
			batch = nil
			return nil
		}
		n, err := e.dolt.Apply(ctx, batch, writeMapping, opts)
		res.RowsApplied += n
		if err != nil {
			return err
		}
		res.Batches++
		batch = nil
		// The commit closes over exactly this batch; advancing after
		// it makes the batch durable on both sides.
		commit, err := e.source.CommitChanges(ctx, message, []string{req.Mapping.SourceTable})
		if err != nil {
			return err
		}
		if err := e.store.Advance(ctx, key, commit); err != nil {
			return err
		}
		res.CursorAdvancedTo = commit
		res.FinalCommit = commit
		return nil
	}

	it, err := reader.ReadRows(ctx, req.Mapping)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		rec := it.Record()
		raw := rec.Row()
		// Classification runs on the raw values so text forms coming
		// back from the target compare against Dolt's text forms;
		// decoding (when opted in) only rewrites rows actually applied.
		fp := rec.Fingerprint
		if fp == "" {
			fp = fingerprint.Fingerprint(raw, req.Mapping.PrimaryKey)
		}
		entry, exists := idx[fp]
		if !exists {
			batch = append(batch, ChangeRecord{
				Table:       req.Mapping.SourceTable,
				Op:          OpInsert,
				Fingerprint: fp,
				NewRow:      e.decodeRow(req, raw),
			})
		} else {
			if entry.Digest != fingerprint.RowDigest(raw, req.Mapping.Columns) {
				batch = append(batch, ChangeRecord{
					Table:       req.Mapping.SourceTable,
					Op:          OpUpdate,
					Fingerprint: fp,
					OldRow:      entry.Row,
					NewRow:      e.decodeRow(req, raw),
				})
			}
			delete(idx, fp)
		}
		if len(batch) >= req.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	// Rows left in the index exist on Dolt but not on the target anymore.
	// Sorted for deterministic batch order.
	remaining := make([]string, 0, len(idx))
	for fp := range idx {
		remaining = append(remaining, fp)
	}
	sort.Strings(remaining)
	for _, fp := range remaining {
		batch = append(batch, ChangeRecord{
			Table:       req.Mapping.SourceTable,
			Op:          OpDelete,
			Fingerprint: fp,
			OldRow:      idx[fp].Row,
		})
		if len(batch) >= req.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	// Nothing to apply: the head already reflects the target state, so
	// record it as the verified sync point.
	if res.Batches == 0 && !req.DryRun {
		if err := e.store.Advance(ctx, key, head); err != nil {
			return err
		}
		res.CursorAdvancedTo = head
	}
	return nil
}

func (e *Engine) decodeRow(req Request, row map[string]any) map[string]any {
	if !req.DecodeCoerced {
		return row
	}
	return coerce.DecodeRow(row)
}
