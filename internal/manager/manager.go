package manager

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dshills/ctxtrack-mcp/internal/broadcast"
	"github.com/dshills/ctxtrack-mcp/internal/cache"
	"github.com/dshills/ctxtrack-mcp/internal/store"
	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// Cache key operations. Reads cache under these; the Tracker's project
// scan removes them on mutation.
const (
	opGetProject   = "get_project"
	opListProjects = "list_projects"
)

// Manager orchestrates the store, the TTL cache, the invalidation tracker,
// and the update broadcaster behind one handle. Both the HTTP and MCP
// surfaces operate exclusively through it.
//
// Every mutation follows the same pipeline: store write, synchronous cache
// invalidation, then a broadcast event. Reads are served from the cache
// and fall through to the store on miss or expiry.
type Manager struct {
	store   store.Store
	cache   *cache.Cache
	tracker *Tracker
	bcast   *broadcast.Broadcaster
	logger  *zap.Logger
}

// New wires a Manager over its collaborators.
func New(s store.Store, c *cache.Cache, b *broadcast.Broadcaster, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   s,
		cache:   c,
		tracker: NewTracker(c, logger),
		bcast:   b,
		logger:  logger,
	}
}

// BackendKind reports the active storage backend for response metadata.
func (m *Manager) BackendKind() string { return m.store.Kind() }

// CacheStats exposes cache counters for the health endpoint.
func (m *Manager) CacheStats() cache.Stats { return m.cache.Stats() }

// BroadcastStats exposes broadcaster counters for the health endpoint.
func (m *Manager) BroadcastStats() broadcast.ConnectionStats { return m.bcast.Stats() }

// Tracker exposes the invalidation tracker, mainly for tests and health.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// Subscribe registers a live-update consumer.
func (m *Manager) Subscribe(userID, project string) *broadcast.Subscriber {
	return m.bcast.Subscribe(userID, project)
}

// Unsubscribe removes a live-update consumer.
func (m *Manager) Unsubscribe(sub *broadcast.Subscriber) {
	m.bcast.Unsubscribe(sub.ID)
}

// Close releases the store and drops all subscribers.
func (m *Manager) Close() error {
	m.bcast.Close()
	return m.store.Close()
}

// GetProject returns the named project, served from cache within the TTL.
// The returned snapshot is the caller's to keep; cached copies are never
// handed out directly.
func (m *Manager) GetProject(ctx context.Context, name string) (*types.Project, error) {
	v, err := m.cache.GetOrLoad(ctx, cache.Key(opGetProject, name), func(ctx context.Context) (any, error) {
		return m.store.Get(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Project).Clone(), nil
}

// ListProjects returns all projects sorted by name, served from cache
// within the TTL.
func (m *Manager) ListProjects(ctx context.Context) ([]*types.Project, error) {
	v, err := m.cache.GetOrLoad(ctx, cache.Key(opListProjects), func(ctx context.Context) (any, error) {
		return m.store.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	cached := v.([]*types.Project)
	projects := make([]*types.Project, len(cached))
	for i, p := range cached {
		projects[i] = p.Clone()
	}
	return projects, nil
}

// mutated runs the post-write half of the mutation pipeline: invalidate,
// then broadcast. Invalidation is synchronous so a read issued after this
// returns can never see the pre-mutation snapshot from this cache.
func (m *Manager) mutated(p *types.Project, evt broadcast.EventType, data map[string]any) {
	m.tracker.Invalidated(p.Name)
	m.bcast.Publish(broadcast.Event{
		Type:      evt,
		Project:   p.Name,
		Data:      data,
		Timestamp: p.UpdatedAt,
	})
}

// ensureThen runs op, creating the project on first use when it does not
// exist yet. Mutations behave like the MCP tools: touching an unknown
// project brings it into existence.
func (m *Manager) ensureThen(ctx context.Context, name string, op func(context.Context) (*types.Project, error)) (*types.Project, error) {
	p, err := op(ctx)
	if !errors.Is(err, store.ErrNotFound) {
		return p, err
	}
	if _, cerr := m.store.Create(ctx, name); cerr != nil && !errors.Is(cerr, store.ErrAlreadyExists) {
		return nil, cerr
	}
	m.logger.Info("project created on first use", zap.String("project", name))
	return op(ctx)
}

// UpdateProject applies a partial update, creating the project when it
// does not exist yet.
func (m *Manager) UpdateProject(ctx context.Context, name string, fields types.UpdateFields) (*types.Project, error) {
	p, err := m.ensureThen(ctx, name, func(ctx context.Context) (*types.Project, error) {
		return m.store.Update(ctx, name, fields)
	})
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventContextUpdated, nil)
	return p, nil
}

// SetGoal replaces the project's current goal.
func (m *Manager) SetGoal(ctx context.Context, name, goal string) (*types.Project, error) {
	p, err := m.ensureThen(ctx, name, func(ctx context.Context) (*types.Project, error) {
		return m.store.Update(ctx, name, types.UpdateFields{CurrentGoal: &goal})
	})
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventGoalChanged, map[string]any{"goal": goal})
	return p, nil
}

// CompleteFeature records a completed feature.
func (m *Manager) CompleteFeature(ctx context.Context, name, feature string) (*types.Project, error) {
	p, err := m.ensureThen(ctx, name, func(ctx context.Context) (*types.Project, error) {
		return m.store.AppendFeature(ctx, name, feature)
	})
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventFeatureCompleted, map[string]any{"feature": feature})
	return p, nil
}

// AddIssue tracks a new or refreshed issue.
func (m *Manager) AddIssue(ctx context.Context, name string, issue types.Issue) (*types.Project, error) {
	p, err := m.ensureThen(ctx, name, func(ctx context.Context) (*types.Project, error) {
		return m.store.AppendIssue(ctx, name, issue)
	})
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventContextUpdated, map[string]any{"issue": issue.Problem})
	return p, nil
}

// ResolveIssue marks a matching open issue as resolved. Unlike the other
// mutations this never creates the project: resolving against an unknown
// project is an error, not a first touch.
func (m *Manager) ResolveIssue(ctx context.Context, name, problemMatch string) (*types.Project, error) {
	p, err := m.store.ResolveIssue(ctx, name, problemMatch)
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventIssueResolved, map[string]any{"problem": problemMatch})
	return p, nil
}

// AddStep adds a next step.
func (m *Manager) AddStep(ctx context.Context, name, step string) (*types.Project, error) {
	p, err := m.ensureThen(ctx, name, func(ctx context.Context) (*types.Project, error) {
		return m.store.AppendStep(ctx, name, step)
	})
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventContextUpdated, map[string]any{"step": step})
	return p, nil
}

// SetStateValue merges one key into the project's freeform state map.
func (m *Manager) SetStateValue(ctx context.Context, name, key string, value any) (*types.Project, error) {
	p, err := m.ensureThen(ctx, name, func(ctx context.Context) (*types.Project, error) {
		return m.store.Update(ctx, name, types.UpdateFields{CurrentState: map[string]any{key: value}})
	})
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventContextUpdated, map[string]any{"state_key": key})
	return p, nil
}

// AddKeyFile tracks a file worth keeping in view, replacing the entry for
// an already-tracked path.
func (m *Manager) AddKeyFile(ctx context.Context, name string, kf types.KeyFile) (*types.Project, error) {
	p, err := m.ensureThen(ctx, name, func(ctx context.Context) (*types.Project, error) {
		return m.store.AppendKeyFile(ctx, name, kf)
	})
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventContextUpdated, map[string]any{"key_file": kf.Path})
	return p, nil
}

// AddAnchor adds or replaces a context anchor by key.
func (m *Manager) AddAnchor(ctx context.Context, name string, anchor types.ContextAnchor) (*types.Project, error) {
	p, err := m.ensureThen(ctx, name, func(ctx context.Context) (*types.Project, error) {
		return m.store.AppendAnchor(ctx, name, anchor)
	})
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventContextUpdated, map[string]any{"anchor": anchor.Key})
	return p, nil
}

// AddInteraction records a conversation exchange.
func (m *Manager) AddInteraction(ctx context.Context, name string, rec types.Interaction) (*types.Project, error) {
	p, err := m.ensureThen(ctx, name, func(ctx context.Context) (*types.Project, error) {
		return m.store.AppendInteraction(ctx, name, rec)
	})
	if err != nil {
		return nil, err
	}
	m.mutated(p, broadcast.EventContextUpdated, nil)
	return p, nil
}
