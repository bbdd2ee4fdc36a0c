package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"doltsync/core/syncer"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Client talks to a Dolt server over a MySQL-protocol connection. It
// implements syncer.Source.
type Client struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewClient wraps an open Dolt connection.
func NewClient(db *gorm.DB, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{db: db, log: log}
}

// DB exposes the underlying connection, so callers can build a Dolt-side
// dialect adapter or cursor store over the same handle.
func (c *Client) DB() *gorm.DB { return c.db }

// ResolveCommit resolves a ref to a commit hash via dolt_hashof. An empty
// ref resolves the current head.
func (c *Client) ResolveCommit(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		ref = "HEAD"
	}

	var hash sql.NullString
	row := c.db.WithContext(ctx).Raw("SELECT dolt_hashof(?)", ref).Row()
	if err := row.Scan(&hash); err != nil {
		return "", c.classify(err, "", ref)
	}
	if !hash.Valid || hash.String == "" {
		return "", &syncer.RefNotFoundError{Ref: ref}
	}
	return hash.String, nil
}

// CommitsBetween lists the commits reachable from to but not from from,
// oldest first. dolt_log reports newest first; the order is reversed here so
// the engine can replay history forward.
func (c *Client) CommitsBetween(ctx context.Context, from, to string) ([]syncer.Commit, error) {
	rng := fmt.Sprintf("%s..%s", from, to)

	var rows []struct {
		CommitHash string
		Date       sql.NullTime
		Message    string
	}
	err := c.db.WithContext(ctx).
		Raw("SELECT commit_hash, date, message FROM dolt_log(?)", rng).
		Scan(&rows).Error
	if err != nil {
		return nil, c.classify(err, "", rng)
	}

	commits := make([]syncer.Commit, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		commits = append(commits, syncer.Commit{
			Hash:    rows[i].CommitHash,
			Date:    rows[i].Date.Time,
			Message: rows[i].Message,
		})
	}
	return commits, nil
}

// CommitChanges stages the given tables and creates a commit over them,
// returning the new head. With nothing to commit the current head is
// returned unchanged.
func (c *Client) CommitChanges(ctx context.Context, message string, tables []string) (string, error) {
	for _, table := range tables {
		if err := c.db.WithContext(ctx).Exec("CALL DOLT_ADD(?)", table).Error; err != nil {
			return "", c.classify(err, table, "")
		}
	}

	// --skip-empty answers with an empty result set when the staged
	// tables carry no changes.
	var hash sql.NullString
	row := c.db.WithContext(ctx).Raw("CALL DOLT_COMMIT('--skip-empty', '-m', ?)", message).Row()
	err := row.Scan(&hash)
	switch {
	case err == nil && hash.Valid && hash.String != "":
		c.log.Debug("Created commit", zap.String("commit", hash.String), zap.Strings("tables", tables))
		return hash.String, nil
	case err == nil || errors.Is(err, sql.ErrNoRows):
		return c.ResolveCommit(ctx, "")
	default:
		return "", c.classify(err, "", "")
	}
}

// TableColumns returns the table's column names as of a commit, lowercased.
func (c *Client) TableColumns(ctx context.Context, table, at string) ([]string, error) {
	if err := validateRef(at); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM `%s` AS OF '%s' LIMIT 0", table, atOrHead(at))

	rows, err := c.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, c.classify(err, table, at)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = strings.ToLower(col)
	}
	return out, nil
}

// classify maps driver errors onto the sync error taxonomy. Dolt reports
// bad refs and missing tables/columns as plain MySQL errors, so the mapping
// is textual.
func (c *Client) classify(err error, table, ref string) error {
	if syncer.IsConnectionFailure(err) {
		return &syncer.ConnectionError{System: "dolt", Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unknown column") || strings.Contains(msg, "column not found"):
		return &syncer.SchemaMismatchError{Table: table, Err: err}
	case strings.Contains(msg, "table not found") || strings.Contains(msg, "table") && strings.Contains(msg, "doesn't exist"):
		return &syncer.SchemaMismatchError{Table: table, Err: err}
	case strings.Contains(msg, "not found") ||
		strings.Contains(msg, "invalid ref") ||
		strings.Contains(msg, "could not resolve") ||
		strings.Contains(msg, "unknown ref"):
		return &syncer.RefNotFoundError{Ref: ref, Err: err}
	default:
		return fmt.Errorf("dolt query failed: %w", err)
	}
}

// validateRef rejects refs that cannot be inlined into an AS OF clause.
// Resolved hashes and branch names are plain tokens; anything else is a
// caller bug, not an escaping problem to solve.
func validateRef(ref string) error {
	if strings.ContainsAny(ref, "'\"`\\ \t\n;") {
		return &syncer.RefNotFoundError{Ref: ref}
	}
	return nil
}

func atOrHead(at string) string {
	if at == "" {
		return "HEAD"
	}
	return at
}
