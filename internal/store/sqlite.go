package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// SQLiteOptions tunes the relational backend's connection pool.
type SQLiteOptions struct {
	// MaxConns bounds concurrent connection checkouts.
	MaxConns int
	// CheckoutTimeout bounds how long a caller blocks waiting for a
	// connection before failing with ErrPoolExhausted.
	CheckoutTimeout time.Duration
}

// DefaultSQLiteOptions returns the pool settings used when none are given.
func DefaultSQLiteOptions() SQLiteOptions {
	return SQLiteOptions{
		MaxConns:        10,
		CheckoutTimeout: 5 * time.Second,
	}
}

// SQLiteStore implements the Store interface using SQLite. Nested project
// fields are stored as JSON text columns; every multi-field mutation runs
// in one transaction with rollback on any failure.
type SQLiteStore struct {
	db      *sql.DB
	sem     *semaphore.Weighted
	timeout time.Duration
	now     func() time.Time
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open(DriverName, sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite storage instance and applies any
// pending schema migrations.
func NewSQLiteStore(dbPath string, opts SQLiteOptions) (*SQLiteStore, error) {
	if opts.MaxConns < 1 {
		opts.MaxConns = DefaultSQLiteOptions().MaxConns
	}
	if opts.CheckoutTimeout <= 0 {
		opts.CheckoutTimeout = DefaultSQLiteOptions().CheckoutTimeout
	}

	db, err := openDatabase(dbPath, opts.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %s", ErrBackendUnavailable, err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		sem:     semaphore.NewWeighted(int64(opts.MaxConns)),
		timeout: opts.CheckoutTimeout,
		now:     time.Now,
	}, nil
}

// Kind identifies the backend for response metadata.
func (s *SQLiteStore) Kind() string { return "sqlite" }

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// acquire checks out a pool slot, blocking up to the checkout timeout.
// The returned release function must be called exactly once.
func (s *SQLiteStore) acquire(ctx context.Context) (func(), error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: checkout timed out after %s", ErrPoolExhausted, s.timeout)
	}
	return func() { s.sem.Release(1) }, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const projectColumns = `name, current_goal, completed_features, current_issues,
	next_steps, current_state, key_files, context_anchors, conversation_history,
	created_at, updated_at`

// scanProject decodes one projects row, including its JSON columns.
func scanProject(row interface{ Scan(...interface{}) error }) (*types.Project, error) {
	var (
		p        types.Project
		features string
		issues   string
		steps    string
		state    string
		keyFiles string
		anchors  string
		history  string
	)
	err := row.Scan(&p.Name, &p.CurrentGoal, &features, &issues, &steps,
		&state, &keyFiles, &anchors, &history, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, dec := range []struct {
		raw  string
		into interface{}
	}{
		{features, &p.CompletedFeatures},
		{issues, &p.CurrentIssues},
		{steps, &p.NextSteps},
		{state, &p.CurrentState},
		{keyFiles, &p.KeyFiles},
		{anchors, &p.ContextAnchors},
		{history, &p.ConversationHistory},
	} {
		if err := json.Unmarshal([]byte(dec.raw), dec.into); err != nil {
			return nil, fmt.Errorf("failed to decode project %q: %w", p.Name, err)
		}
	}
	// A hand-edited row can hold JSON null in a collection column.
	normalize(&p)
	return &p, nil
}

// encodeProject marshals the JSON columns for an INSERT or UPDATE.
func encodeProject(p *types.Project) ([]interface{}, error) {
	cols := make([]interface{}, 0, 7)
	for _, v := range []interface{}{
		p.CompletedFeatures, p.CurrentIssues, p.NextSteps,
		p.CurrentState, p.KeyFiles, p.ContextAnchors, p.ConversationHistory,
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode project %q: %w", p.Name, err)
		}
		cols = append(cols, string(b))
	}
	return cols, nil
}

func (s *SQLiteStore) getWithQuerier(ctx context.Context, q querier, name string) (*types.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE name = ?`
	p, err := scanProject(q.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) writeWithQuerier(ctx context.Context, q querier, p *types.Project) error {
	jsonCols, err := encodeProject(p)
	if err != nil {
		return err
	}
	query := `
		UPDATE projects
		SET current_goal = ?, completed_features = ?, current_issues = ?,
		    next_steps = ?, current_state = ?, key_files = ?,
		    context_anchors = ?, conversation_history = ?, updated_at = ?
		WHERE name = ?
	`
	args := append([]interface{}{p.CurrentGoal}, jsonCols...)
	args = append(args, p.UpdatedAt, p.Name)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// Create makes a new empty project row.
func (s *SQLiteStore) Create(ctx context.Context, name string) (*types.Project, error) {
	if err := types.ValidateName(name); err != nil {
		return nil, validationErr(err)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	p := types.NewProject(name, s.now().UTC())
	jsonCols, err := encodeProject(p)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO projects (name, current_goal, completed_features, current_issues,
			next_steps, current_state, key_files, context_anchors,
			conversation_history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	args := append([]interface{}{p.Name, p.CurrentGoal}, jsonCols...)
	args = append(args, p.CreatedAt, p.UpdatedAt)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// Get returns the project, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, name string) (*types.Project, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.getWithQuerier(ctx, s.db, name)
}

// List returns all projects sorted by name.
func (s *SQLiteStore) List(ctx context.Context) ([]*types.Project, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// mutate loads the project inside a transaction, applies fn, and writes the
// result back. Either everything commits or nothing does.
func (s *SQLiteStore) mutate(ctx context.Context, name string, fn func(*types.Project) error) (*types.Project, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %s", ErrBackendUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := s.getWithQuerier(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := s.writeWithQuerier(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return p, nil
}

// Update applies a partial update in one transaction.
func (s *SQLiteStore) Update(ctx context.Context, name string, fields types.UpdateFields) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyUpdate(p, fields, s.now().UTC())
	})
}

// AppendFeature records a completed feature.
func (s *SQLiteStore) AppendFeature(ctx context.Context, name, feature string) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyFeature(p, feature, s.now().UTC())
	})
}

// AppendIssue tracks a new or refreshed issue.
func (s *SQLiteStore) AppendIssue(ctx context.Context, name string, issue types.Issue) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyIssue(p, issue, s.now().UTC())
	})
}

// ResolveIssue marks a matching open issue as resolved.
func (s *SQLiteStore) ResolveIssue(ctx context.Context, name, problemMatch string) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyResolveIssue(p, problemMatch, s.now().UTC())
	})
}

// AppendAnchor adds or replaces a context anchor by key.
func (s *SQLiteStore) AppendAnchor(ctx context.Context, name string, anchor types.ContextAnchor) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyAnchor(p, anchor, s.now().UTC())
	})
}

// AppendKeyFile tracks a key file, replacing the entry for its path.
func (s *SQLiteStore) AppendKeyFile(ctx context.Context, name string, kf types.KeyFile) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyKeyFile(p, kf, s.now().UTC())
	})
}

// AppendStep adds a next step.
func (s *SQLiteStore) AppendStep(ctx context.Context, name, step string) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyStep(p, step, s.now().UTC())
	})
}

// AppendInteraction records a conversation exchange.
func (s *SQLiteStore) AppendInteraction(ctx context.Context, name string, rec types.Interaction) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyInteraction(p, rec, s.now().UTC())
	})
}

// isUniqueViolation detects a UNIQUE constraint failure from either driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
