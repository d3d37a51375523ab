package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/shipway/internal/core/release"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultListLimit = 20

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the journal database and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations applies embedded SQL migrations.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Mapping
// =============================================================================

type runRow struct {
	ID         string  `db:"id"`
	Project    string  `db:"project"`
	Service    string  `db:"service"`
	Region     string  `db:"region"`
	VersionTag string  `db:"version_tag"`
	ImageRef   string  `db:"image_ref"`
	State      string  `db:"state"`
	FailedStep string  `db:"failed_step"`
	Error      string  `db:"error"`
	URL        string  `db:"url"`
	StartedAt  string  `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
}

func toRow(rec *RunRecord) *runRow {
	row := &runRow{
		ID:         rec.ID,
		Project:    rec.Project,
		Service:    rec.Service,
		Region:     rec.Region,
		VersionTag: rec.VersionTag,
		ImageRef:   rec.ImageRef,
		State:      string(rec.State),
		FailedStep: rec.FailedStep,
		Error:      rec.Error,
		URL:        rec.URL,
		StartedAt:  rec.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.FinishedAt != nil {
		s := rec.FinishedAt.UTC().Format(time.RFC3339Nano)
		row.FinishedAt = &s
	}
	return row
}

func fromRow(row *runRow) (*RunRecord, error) {
	started, err := time.Parse(time.RFC3339Nano, row.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("bad started_at %q: %w", row.StartedAt, err)
	}
	rec := &RunRecord{
		ID:         row.ID,
		Project:    row.Project,
		Service:    row.Service,
		Region:     row.Region,
		VersionTag: row.VersionTag,
		ImageRef:   row.ImageRef,
		State:      release.State(row.State),
		FailedStep: row.FailedStep,
		Error:      row.Error,
		URL:        row.URL,
		StartedAt:  started,
	}
	if row.FinishedAt != nil {
		finished, err := time.Parse(time.RFC3339Nano, *row.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("bad finished_at %q: %w", *row.FinishedAt, err)
		}
		rec.FinishedAt = &finished
	}
	return rec, nil
}

// =============================================================================
// Run Operations
// =============================================================================

// CreateRun inserts a run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, rec *RunRecord) error {
	const q = `
		INSERT INTO runs (id, project, service, region, version_tag, image_ref,
		                  state, failed_step, error, url, started_at, finished_at)
		VALUES (:id, :project, :service, :region, :version_tag, :image_ref,
		        :state, :failed_step, :error, :url, :started_at, :finished_at)`

	if _, err := s.db.NamedExecContext(ctx, q, toRow(rec)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateRun", rec.ID, "duplicate run id", ErrDuplicateID)
		}
		return NewStoreError("CreateRun", rec.ID, err.Error(), err)
	}
	return nil
}

// UpdateRun overwrites the mutable fields of a run record.
func (s *SQLiteStore) UpdateRun(ctx context.Context, rec *RunRecord) error {
	const q = `
		UPDATE runs
		SET state = :state, failed_step = :failed_step, error = :error,
		    url = :url, finished_at = :finished_at
		WHERE id = :id`

	res, err := s.db.NamedExecContext(ctx, q, toRow(rec))
	if err != nil {
		return NewStoreError("UpdateRun", rec.ID, err.Error(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewStoreError("UpdateRun", rec.ID, "no such run", ErrNotFound)
	}
	return nil
}

// GetRun fetches a run record by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError("GetRun", id, "no such run", ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("GetRun", id, err.Error(), err)
	}
	return fromRow(&row)
}

// ListRuns returns run records, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var rows []runRow
	var err error
	if opts.Service != "" {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM runs WHERE service = ? ORDER BY started_at DESC LIMIT ?`,
			opts.Service, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, NewStoreError("ListRuns", "", err.Error(), err)
	}

	records := make([]RunRecord, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			return nil, NewStoreError("ListRuns", rows[i].ID, err.Error(), err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

// LatestResolved returns the most recent successful run for a service.
func (s *SQLiteStore) LatestResolved(ctx context.Context, service string) (*RunRecord, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM runs WHERE service = ? AND state = ? ORDER BY started_at DESC LIMIT 1`,
		service, string(release.StateResolved))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError("LatestResolved", "", "no resolved run for "+service, ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("LatestResolved", "", err.Error(), err)
	}
	return fromRow(&row)
}
