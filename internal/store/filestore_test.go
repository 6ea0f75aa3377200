package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

func setupFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFileStoreCreateGet(t *testing.T) {
	s := setupFileStore(t)
	ctx := context.Background()

	p, err := s.Create(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)

	got, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Name)
	assert.NotNil(t, got.CurrentState)

	_, err = s.Create(ctx, "demo")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestFileStoreGet_NotFound(t *testing.T) {
	s := setupFileStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCreate_InvalidName(t *testing.T) {
	s := setupFileStore(t)
	_, err := s.Create(context.Background(), "../escape")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFileStoreList(t *testing.T) {
	s := setupFileStore(t)
	ctx := context.Background()

	for _, name := range []string{"beta", "alpha"} {
		_, err := s.Create(ctx, name)
		require.NoError(t, err)
	}

	projects, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "alpha", projects[0].Name)
	assert.Equal(t, "beta", projects[1].Name)
}

func TestFileStoreUpdate(t *testing.T) {
	s := setupFileStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	goal := "wire the broadcaster"
	p, err := s.Update(ctx, "demo", types.UpdateFields{CurrentGoal: &goal})
	require.NoError(t, err)
	assert.Equal(t, goal, p.CurrentGoal)

	got, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, goal, got.CurrentGoal)
}

func TestFileStoreWritesStatusSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Create(ctx, "demo")
	require.NoError(t, err)
	goal := "document everything"
	_, err = s.Update(ctx, "demo", types.UpdateFields{CurrentGoal: &goal})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "demo_STATUS.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# demo - Project Status")
	assert.Contains(t, string(data), "document everything")
}

func TestFileStoreNoTempFilesLeftBehind(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Create(ctx, "demo")
	require.NoError(t, err)
	_, err = s.AppendFeature(ctx, "demo", "auth")
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

// Concurrent writers to the same project must never produce a document
// that fails to parse: the per-project lock serializes writes and the
// rename keeps partial writes invisible.
func TestFileStoreConcurrentWritersNeverCorrupt(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Create(ctx, "demo")
	require.NoError(t, err)

	const writers = 8
	const writesPerWriter = 20

	stop := make(chan struct{})
	readerDone := make(chan error, 1)

	// Reader hammering the raw document while writers churn.
	go func() {
		for {
			select {
			case <-stop:
				readerDone <- nil
				return
			default:
			}
			data, err := os.ReadFile(filepath.Join(root, "demo.json"))
			if err != nil {
				continue
			}
			var p types.Project
			if err := json.Unmarshal(data, &p); err != nil {
				readerDone <- fmt.Errorf("parsed corrupt document: %w", err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < writesPerWriter; i++ {
				_, err := s.AppendStep(ctx, "demo", fmt.Sprintf("step-%d-%d", w, i))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	require.NoError(t, <-readerDone)

	p, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, p.NextSteps, writers*writesPerWriter)
}

// A hand-edited document may carry null where a collection belongs; the
// store must repair it on read so later mutations don't blow up.
func TestFileStoreHandEditedNullCollections(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	doc := `{
		"name": "demo",
		"current_state": null,
		"completed_features": null,
		"next_steps": null,
		"created_at": "2026-01-01T00:00:00Z",
		"updated_at": "2026-01-01T00:00:00Z"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "demo.json"), []byte(doc), 0o644))

	got, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.NotNil(t, got.CurrentState)
	assert.NotNil(t, got.CompletedFeatures)
	assert.NotNil(t, got.KeyFiles)

	p, err := s.Update(ctx, "demo", types.UpdateFields{
		CurrentState: map[string]any{"phase": "beta"},
	})
	require.NoError(t, err)
	assert.Equal(t, "beta", p.CurrentState["phase"])

	p, err = s.AppendStep(ctx, "demo", "re-check the document")
	require.NoError(t, err)
	assert.Equal(t, []string{"re-check the document"}, p.NextSteps)
}

func TestFileStoreKeyFiles(t *testing.T) {
	s := setupFileStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	p, err := s.AppendKeyFile(ctx, "demo", types.KeyFile{Path: "cmd/main.go", Description: "entry point"})
	require.NoError(t, err)
	require.Len(t, p.KeyFiles, 1)

	// Re-adding the same path refreshes the description in place.
	p, err = s.AppendKeyFile(ctx, "demo", types.KeyFile{Path: "cmd/main.go", Description: "startup wiring"})
	require.NoError(t, err)
	require.Len(t, p.KeyFiles, 1)
	assert.Equal(t, "startup wiring", p.KeyFiles[0].Description)

	_, err = s.AppendKeyFile(ctx, "demo", types.KeyFile{Path: "  "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFileStoreIssueLifecycle(t *testing.T) {
	s := setupFileStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	_, err = s.AppendIssue(ctx, "demo", types.Issue{Problem: "bug"})
	require.NoError(t, err)

	p, err := s.ResolveIssue(ctx, "demo", "bug")
	require.NoError(t, err)
	assert.Empty(t, p.OpenIssues())
}

func TestFileStoreContextCanceled(t *testing.T) {
	s := setupFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "demo")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStoreUpdatedAtMonotonic(t *testing.T) {
	s := setupFileStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "demo")
	require.NoError(t, err)

	first, err := s.AppendFeature(ctx, "demo", "one")
	require.NoError(t, err)

	s.now = func() time.Time { return first.UpdatedAt.Add(-time.Hour) }
	second, err := s.AppendFeature(ctx, "demo", "two")
	require.NoError(t, err)

	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}
