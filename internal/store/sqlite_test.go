package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), DefaultSQLiteOptions())
	require.NoError(t, err)
	require.NotNil(t, s)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLiteStore(t *testing.T) {
	s := setupTestDB(t)
	assert.Equal(t, "sqlite", s.Kind())
}

func TestSQLiteCreate(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	p, err := s.Create(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)
	assert.NotNil(t, p.CompletedFeatures)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = s.Create(ctx, "demo")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSQLiteCreate_InvalidName(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.Create(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.Create(context.Background(), "a/b")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSQLiteGet(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	got, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLiteGet_NotFound(t *testing.T) {
	s := setupTestDB(t)
	_, err := s.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteList_SortedByName(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.Create(ctx, name)
		require.NoError(t, err)
	}

	projects, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, "alpha", projects[0].Name)
	assert.Equal(t, "mid", projects[1].Name)
	assert.Equal(t, "zeta", projects[2].Name)
}

func TestSQLiteUpdate_RoundTripsNestedFields(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	goal := "ship the cache layer"
	anchors := []types.ContextAnchor{
		{Key: "db", Value: "sqlite", Description: "storage backend", Priority: types.PriorityHigh},
	}
	updated, err := s.Update(ctx, "demo", types.UpdateFields{
		CurrentGoal:    &goal,
		CurrentState:   map[string]any{"phase": "beta"},
		ContextAnchors: &anchors,
	})
	require.NoError(t, err)
	assert.Equal(t, goal, updated.CurrentGoal)

	got, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, goal, got.CurrentGoal)
	assert.Equal(t, "beta", got.CurrentState["phase"])
	require.Len(t, got.ContextAnchors, 1)
	assert.Equal(t, "db", got.ContextAnchors[0].Key)
}

func TestSQLiteUpdate_NotFound(t *testing.T) {
	s := setupTestDB(t)
	goal := "x"
	_, err := s.Update(context.Background(), "missing", types.UpdateFields{CurrentGoal: &goal})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUpdate_RollbackOnValidationError(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	goal := "good goal"
	badAnchors := []types.ContextAnchor{{Key: "", Priority: 1}}
	_, err = s.Update(ctx, "demo", types.UpdateFields{
		CurrentGoal:    &goal,
		ContextAnchors: &badAnchors,
	})
	require.ErrorIs(t, err, ErrValidation)

	// Nothing committed: the goal field did not partially apply.
	got, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Empty(t, got.CurrentGoal)
}

func TestSQLiteIssueLifecycle(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	_, err = s.AppendIssue(ctx, "demo", types.Issue{Problem: "bug", Location: "api.go"})
	require.NoError(t, err)

	p, err := s.ResolveIssue(ctx, "demo", "bug")
	require.NoError(t, err)
	assert.Empty(t, p.OpenIssues())
	require.Len(t, p.CurrentIssues, 1)
	assert.True(t, p.CurrentIssues[0].Resolved)

	_, err = s.ResolveIssue(ctx, "demo", "bug")
	assert.ErrorIs(t, err, ErrIssueNotFound)
}

func TestSQLiteAppendOps(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	_, err = s.AppendFeature(ctx, "demo", "auth")
	require.NoError(t, err)
	_, err = s.AppendStep(ctx, "demo", "add cache")
	require.NoError(t, err)
	_, err = s.AppendKeyFile(ctx, "demo", types.KeyFile{Path: "internal/api/server.go", Description: "route table"})
	require.NoError(t, err)
	p, err := s.AppendInteraction(ctx, "demo", types.Interaction{Role: "user", Content: "status?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"auth"}, p.CompletedFeatures)
	assert.Equal(t, []string{"add cache"}, p.NextSteps)
	require.Len(t, p.ConversationHistory, 1)

	got, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, got.KeyFiles, 1)
	assert.Equal(t, "internal/api/server.go", got.KeyFiles[0].Path)
}

func TestSQLiteUpdatedAtMonotonic(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	// Force the store clock backwards; updated_at must not move back.
	first, err := s.AppendFeature(ctx, "demo", "one")
	require.NoError(t, err)

	s.now = func() time.Time { return first.UpdatedAt.Add(-time.Hour) }
	second, err := s.AppendFeature(ctx, "demo", "two")
	require.NoError(t, err)

	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}

func TestSQLitePoolExhausted(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pool.db")
	s, err := NewSQLiteStore(dbPath, SQLiteOptions{MaxConns: 1, CheckoutTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()

	// Hold the only pool slot.
	release, err := s.acquire(ctx)
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = s.Get(ctx, "anything")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrPoolExhausted)
	// Bounded wait, not an indefinite hang.
	assert.Less(t, elapsed, time.Second)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestSQLiteConcurrentMutations(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			_, err := s.AppendStep(ctx, "demo", string(rune('a'+n)))
			done <- err
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}

	p, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, p.NextSteps, 10)
}
