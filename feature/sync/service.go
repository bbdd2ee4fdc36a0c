package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"doltsync/core/database"
	"doltsync/core/syncer"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CursorAdmin is the cursor store surface this feature needs beyond what the
// engine itself uses: listing and resetting cursors on operator request.
type CursorAdmin interface {
	List(ctx context.Context) ([]syncer.Cursor, error)
	Reset(ctx context.Context, key syncer.CursorKey) error
}

// JobConflictError reports a request for a cursor key that already has a job
// in flight. Requests are rejected rather than queued; the caller retries
// once the running job finishes.
type JobConflictError struct {
	Key syncer.CursorKey
}

func (e *JobConflictError) Error() string {
	return fmt.Sprintf("a sync job for %s is already running", e.Key)
}

// Params carries the knobs of one sync job as supplied by an HTTP body or
// CLI flags. Zero values fall back to the configured defaults.
type Params struct {
	Table       string `json:"table"`
	TargetTable string `json:"target_table"`
	// Columns and PrimaryKey override schema discovery when set.
	Columns       []string `json:"columns"`
	PrimaryKey    []string `json:"primary_key"`
	Direction     string   `json:"direction"`
	ToRef         string   `json:"to"`
	BatchSize     int      `json:"batch_size"`
	OnConflict    string   `json:"on_conflict"`
	Create        *bool    `json:"create_if_not_exists"`
	Decode        *bool    `json:"decode_coerced"`
	DryRun        bool     `json:"dry_run"`
	CommitMessage string   `json:"commit_message"`
}

// AllParams describes a whole-database run: the shared job knobs plus the
// table list and a concurrency cap.
type AllParams struct {
	Params
	Tables []string `json:"tables"`
	// Limit caps concurrent table jobs; zero runs them all at once.
	Limit int `json:"limit"`
}

// Service runs sync jobs against one configured target. It owns the job
// registry: at most one job is in flight per cursor key at any time, so two
// callers can never move the same cursor concurrently.
type Service struct {
	engine   *syncer.Engine
	source   syncer.Source
	doltDB   *gorm.DB
	store    CursorAdmin
	targetID string
	defaults syncer.Config
	logger   *zap.Logger

	mu   sync.Mutex
	jobs map[syncer.CursorKey]struct{}
}

// NewService creates a new sync service.
func NewService(engine *syncer.Engine, source syncer.Source, doltDB *gorm.DB, store CursorAdmin, targetID string, defaults syncer.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:   engine,
		source:   source,
		doltDB:   doltDB,
		store:    store,
		targetID: targetID,
		defaults: defaults,
		logger:   logger,
		jobs:     make(map[syncer.CursorKey]struct{}),
	}
}

// Sync runs one table job. The job holds its cursor key for the duration of
// the run; a second request for the same key is rejected with a
// JobConflictError instead of queuing behind it.
func (s *Service) Sync(ctx context.Context, p Params) (*syncer.Result, error) {
	mapping, err := s.ResolveMapping(ctx, p)
	if err != nil {
		return nil, err
	}
	req := s.buildRequest(mapping, p)

	if err := s.acquire(req.Key()); err != nil {
		return nil, err
	}
	defer s.release(req.Key())

	return s.engine.Run(ctx, req)
}

// SyncAll fans a whole-database run out through the engine, at most p.Limit
// tables at a time. The table list comes from the request, falling back to
// the configured default list. All cursor keys are acquired up front so a
// conflicting single-table job cannot start mid-run.
func (s *Service) SyncAll(ctx context.Context, p AllParams) ([]syncer.RunOutcome, error) {
	tables := p.Tables
	if len(tables) == 0 {
		tables = s.defaults.TableList()
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables requested and sync.tables is not configured")
	}

	reqs := make([]syncer.Request, 0, len(tables))
	held := make([]syncer.CursorKey, 0, len(tables))
	releaseAll := func() {
		for _, k := range held {
			s.release(k)
		}
	}

	for _, table := range tables {
		tp := p.Params
		tp.Table = table
		// Column overrides are single-table concerns.
		tp.TargetTable = ""
		tp.Columns = nil
		tp.PrimaryKey = nil

		mapping, err := s.ResolveMapping(ctx, tp)
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("failed to resolve mapping for %s: %w", table, err)
		}
		req := s.buildRequest(mapping, tp)
		if err := s.acquire(req.Key()); err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, req.Key())
		reqs = append(reqs, req)
	}
	defer releaseAll()

	return s.engine.RunMany(ctx, reqs, p.Limit), nil
}

// ResolveMapping builds the table mapping for a job. Explicit column lists
// win; otherwise the schema is discovered from the Dolt side, which holds the
// schema of record for both directions.
func (s *Service) ResolveMapping(ctx context.Context, p Params) (syncer.TableMapping, error) {
	m := syncer.TableMapping{
		SourceTable: p.Table,
		TargetTable: p.TargetTable,
		Columns:     p.Columns,
		PrimaryKey:  p.PrimaryKey,
	}
	if len(m.Columns) == 0 {
		cols, err := s.source.TableColumns(ctx, p.Table, "")
		if err != nil {
			return syncer.TableMapping{}, err
		}
		m.Columns = cols
	}
	if len(m.PrimaryKey) == 0 {
		pk, err := database.GetPrimaryKeyColumns(s.doltDB, p.Table)
		if err != nil {
			return syncer.TableMapping{}, err
		}
		m.PrimaryKey = pk
	}
	if err := m.Validate(); err != nil {
		return syncer.TableMapping{}, err
	}
	return m, nil
}

// Cursors lists all persisted sync cursors.
func (s *Service) Cursors(ctx context.Context) ([]syncer.Cursor, error) {
	return s.store.List(ctx)
}

// ResetCursor deletes the cursor for a key, forcing the next sync of that key
// to run from the table's creation point. Rejected while a job holds the key.
func (s *Service) ResetCursor(ctx context.Context, key syncer.CursorKey) error {
	if key.Table == "" {
		return fmt.Errorf("cursor reset needs a table name")
	}
	if key.TargetID == "" {
		key.TargetID = s.targetID
	}
	if key.Direction == "" {
		key.Direction = syncer.ToTarget
	}

	if err := s.acquire(key); err != nil {
		return err
	}
	defer s.release(key)

	s.logger.Info("Resetting cursor", zap.String("key", key.String()))
	return s.store.Reset(ctx, key)
}

// Running lists the cursor keys with jobs currently in flight, sorted.
func (s *Service) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.jobs))
	for k := range s.jobs {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}

// buildRequest merges the configured defaults under the per-job parameters.
func (s *Service) buildRequest(mapping syncer.TableMapping, p Params) syncer.Request {
	req := syncer.Request{
		Mapping:           mapping,
		Direction:         syncer.Direction(p.Direction),
		TargetID:          s.targetID,
		ToRef:             p.ToRef,
		BatchSize:         p.BatchSize,
		OnConflict:        syncer.OnConflict(p.OnConflict),
		CreateIfNotExists: s.defaults.CreateIfNotExists,
		DecodeCoerced:     s.defaults.DecodeCoerced,
		DryRun:            p.DryRun,
		CommitMessage:     p.CommitMessage,
	}
	if req.Direction == "" {
		req.Direction = syncer.ToTarget
	}
	if req.BatchSize <= 0 {
		req.BatchSize = s.defaults.BatchSize
	}
	if req.OnConflict == "" {
		req.OnConflict = syncer.OnConflict(s.defaults.OnConflict)
	}
	if req.CommitMessage == "" {
		req.CommitMessage = s.defaults.CommitMessage
	}
	if p.Create != nil {
		req.CreateIfNotExists = *p.Create
	}
	if p.Decode != nil {
		req.DecodeCoerced = *p.Decode
	}
	return req
}

// acquire registers a job under its cursor key, rejecting duplicates.
func (s *Service) acquire(key syncer.CursorKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.jobs[key]; running {
		return &JobConflictError{Key: key}
	}
	s.jobs[key] = struct{}{}
	return nil
}

func (s *Service) release(key syncer.CursorKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, key)
}
