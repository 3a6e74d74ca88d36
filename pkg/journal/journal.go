// Package journal is an append-only SQLite log of pipeline runs.
// The controller writes to it; nothing in the pipeline reads it back.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"promptarchitect/pkg/logx"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// ErrNotFound is returned by Get for an unknown run.
var ErrNotFound = errors.New("run not found")

// Entry is one journaled run.
type Entry struct {
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	TotalScore *int       `json:"total_score,omitempty"`
	ID         string     `json:"id"`
	Objective  string     `json:"objective"`
	Target     string     `json:"target"`
	Model      string     `json:"model"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Techniques []string   `json:"techniques"`
}

// Journal stores run entries in SQLite.
type Journal struct {
	db     *sql.DB
	logger *logx.Logger
	path   string
}

// Open opens (creating if needed) the journal database at path and brings its schema up to date.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	j := &Journal{db: db, path: path, logger: logx.NewLogger("journal")}
	j.logger.Info("📦 Run journal opened: %s", path)
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

// RunStarted records a new run in the running state.
func (j *Journal) RunStarted(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, objective, target, techniques, model, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Objective, e.Target, strings.Join(e.Techniques, ","), e.Model, StatusRunning,
		e.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record run start %s: %w", e.ID, err)
	}
	return nil
}

// RunFinished records the outcome of a run previously passed to RunStarted.
func (j *Journal) RunFinished(ctx context.Context, e Entry) error {
	finished := time.Now().UTC()
	if e.FinishedAt != nil {
		finished = e.FinishedAt.UTC()
	}

	var score sql.NullInt64
	if e.TotalScore != nil {
		score = sql.NullInt64{Int64: int64(*e.TotalScore), Valid: true}
	}
	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	res, err := j.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, total_score = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		e.Status, score, errText, finished.Format(time.RFC3339Nano), e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish %s: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to record run finish %s: %w", e.ID, ErrNotFound)
	}
	return nil
}

// List returns the most recent runs, newest first. A non-positive limit uses DefaultListLimit.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, objective, target, techniques, model, status, total_score, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return entries, nil
}

// Get returns a single run.
func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, objective, target, techniques, model, status, total_score, error, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e          Entry
		techniques string
		score      sql.NullInt64
		errText    sql.NullString
		started    string
		finished   sql.NullString
	)
	if err := s.Scan(&e.ID, &e.Objective, &e.Target, &techniques, &e.Model, &e.Status,
		&score, &errText, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("failed to scan run: %w", err)
	}

	if techniques != "" {
		e.Techniques = strings.Split(techniques, ",")
	}
	if score.Valid {
		v := int(score.Int64)
		e.TotalScore = &v
	}
	e.Error = errText.String

	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	e.StartedAt = t
	if finished.Valid {
		ft, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid finished_at %q: %w", finished.String, err)
		}
		e.FinishedAt = &ft
	}
	return e, nil
}
