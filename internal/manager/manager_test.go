package manager

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/ctxtrack-mcp/internal/broadcast"
	"github.com/dshills/ctxtrack-mcp/internal/cache"
	"github.com/dshills/ctxtrack-mcp/internal/store"
	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingStore wraps a Store and counts Get/List hits so tests can tell
// cache hits from backend reads.
type countingStore struct {
	store.Store
	mu    sync.Mutex
	gets  int
	lists int
}

func (s *countingStore) Get(ctx context.Context, name string) (*types.Project, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.Store.Get(ctx, name)
}

func (s *countingStore) List(ctx context.Context) ([]*types.Project, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	return s.Store.List(ctx)
}

func (s *countingStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func setupManager(t *testing.T) (*Manager, *countingStore, *fakeClock) {
	t.Helper()

	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	cs := &countingStore{Store: fs}

	clk := newFakeClock()
	c, err := cache.New(cache.Options{
		TTL:           30 * time.Second,
		SweepInterval: 60 * time.Second,
		Now:           clk.Now,
	})
	require.NoError(t, err)

	m := New(cs, c, broadcast.New(8, zap.NewNop()), zap.NewNop())
	t.Cleanup(func() { _ = m.Close() })
	return m, cs, clk
}

func TestGetProjectServedFromCache(t *testing.T) {
	m, cs, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.SetGoal(ctx, "demo", "ship it")
	require.NoError(t, err)

	first, err := m.GetProject(ctx, "demo")
	require.NoError(t, err)
	second, err := m.GetProject(ctx, "demo")
	require.NoError(t, err)

	assert.Equal(t, first.CurrentGoal, second.CurrentGoal)
	assert.Equal(t, 1, cs.getCount(), "second read should be a cache hit")
}

// A read issued after a mutation returns must observe the new state even
// when a pre-mutation snapshot is still inside its TTL.
func TestReadAfterWriteWithinTTL(t *testing.T) {
	m, _, clk := setupManager(t)
	ctx := context.Background()

	_, err := m.SetGoal(ctx, "demo", "first goal")
	require.NoError(t, err)

	p, err := m.GetProject(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "first goal", p.CurrentGoal)

	clk.Advance(time.Second) // well inside the 30s TTL

	_, err = m.CompleteFeature(ctx, "demo", "auth")
	require.NoError(t, err)

	p, err = m.GetProject(ctx, "demo")
	require.NoError(t, err)
	assert.Contains(t, p.CompletedFeatures, "auth")
}

func TestListProjectsInvalidatedByAnyMutation(t *testing.T) {
	m, cs, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.SetGoal(ctx, "alpha", "a")
	require.NoError(t, err)

	projects, err := m.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	_, err = m.SetGoal(ctx, "beta", "b")
	require.NoError(t, err)

	projects, err = m.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2)
	assert.Equal(t, 2, cs.lists)
}

func TestMutationCreatesProjectOnFirstUse(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.GetProject(ctx, "fresh")
	assert.ErrorIs(t, err, store.ErrNotFound)

	p, err := m.AddStep(ctx, "fresh", "write the readme")
	require.NoError(t, err)
	assert.Equal(t, []string{"write the readme"}, p.NextSteps)
}

func TestResolveIssueDoesNotCreateProject(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.ResolveIssue(ctx, "ghost", "anything")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = m.GetProject(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIssueLifecycleEvents(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.SetGoal(ctx, "demo", "stability")
	require.NoError(t, err)

	sub := m.Subscribe("alice", "demo")
	defer m.Unsubscribe(sub)
	<-sub.Events() // user_joined

	_, err = m.AddIssue(ctx, "demo", types.Issue{Problem: "flaky test"})
	require.NoError(t, err)
	evt := <-sub.Events()
	assert.Equal(t, broadcast.EventContextUpdated, evt.Type)
	assert.Equal(t, "flaky test", evt.Data["issue"])

	p, err := m.ResolveIssue(ctx, "demo", "flaky")
	require.NoError(t, err)
	assert.Empty(t, p.OpenIssues())

	evt = <-sub.Events()
	assert.Equal(t, broadcast.EventIssueResolved, evt.Type)
}

func TestSetGoalPublishesGoalChanged(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	sub := m.Subscribe("alice", "")
	defer m.Unsubscribe(sub)
	<-sub.Events() // user_joined

	_, err := m.SetGoal(ctx, "demo", "ship v2")
	require.NoError(t, err)

	evt := <-sub.Events()
	assert.Equal(t, broadcast.EventGoalChanged, evt.Type)
	assert.Equal(t, "ship v2", evt.Data["goal"])
	assert.Equal(t, "demo", evt.Project)
}

func TestSetStateValueMerges(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.SetStateValue(ctx, "demo", "phase", "alpha")
	require.NoError(t, err)
	p, err := m.SetStateValue(ctx, "demo", "build", "green")
	require.NoError(t, err)

	assert.Equal(t, "alpha", p.CurrentState["phase"])
	assert.Equal(t, "green", p.CurrentState["build"])
}

func TestAddAnchorUpserts(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.AddAnchor(ctx, "demo", types.ContextAnchor{
		Key: "db", Value: "sqlite", Priority: types.PriorityHigh,
	})
	require.NoError(t, err)
	p, err := m.AddAnchor(ctx, "demo", types.ContextAnchor{
		Key: "db", Value: "postgres", Priority: types.PriorityHigh,
	})
	require.NoError(t, err)

	require.Len(t, p.ContextAnchors, 1)
	assert.Equal(t, "postgres", p.ContextAnchors[0].Value)
}

// Cached snapshots must be isolated from callers: mutating a returned
// project must not leak into subsequent reads.
func TestGetProjectReturnsIsolatedCopy(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.AddStep(ctx, "demo", "step one")
	require.NoError(t, err)

	p, err := m.GetProject(ctx, "demo")
	require.NoError(t, err)
	p.NextSteps[0] = "tampered"
	p.CurrentState["rogue"] = true

	again, err := m.GetProject(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "step one", again.NextSteps[0])
	assert.NotContains(t, again.CurrentState, "rogue")
}

func TestSummary(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.SetGoal(ctx, "demo", "ship the tracker")
	require.NoError(t, err)
	_, err = m.CompleteFeature(ctx, "demo", "storage layer")
	require.NoError(t, err)
	_, err = m.AddIssue(ctx, "demo", types.Issue{Problem: "slow queries"})
	require.NoError(t, err)

	summary, err := m.Summary(ctx, "demo")
	require.NoError(t, err)
	assert.Contains(t, summary, "Project: demo")
	assert.Contains(t, summary, "ship the tracker")
	assert.Contains(t, summary, "Open issues: 1")
	assert.Contains(t, summary, "slow queries")
}

func TestExportFormats(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.SetGoal(ctx, "demo", "document everything")
	require.NoError(t, err)

	data, contentType, err := m.Export(ctx, "demo", FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	var p types.Project
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "demo", p.Name)

	data, contentType, err = m.Export(ctx, "demo", FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, contentType, "text/markdown")
	assert.Contains(t, string(data), "# demo - Project Status")

	data, _, err = m.Export(ctx, "demo", FormatSummary)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Project: demo")

	_, _, err = m.Export(ctx, "demo", "xml")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestTrackerCounts(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.SetGoal(ctx, "demo", "a")
	require.NoError(t, err)
	_, err = m.AddStep(ctx, "demo", "b")
	require.NoError(t, err)

	assert.Equal(t, uint64(2), m.Tracker().Count("demo"))
	assert.Equal(t, uint64(2), m.Tracker().Total())
}
