package store

import (
	"context"

	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// Store defines the capability interface for persisting project context.
// Two interchangeable implementations exist: SQLiteStore (relational) and
// FileStore (one JSON document per project). The backend is selected at
// startup via configuration.
//
// All multi-field writes are atomic: transactional in the relational
// variant, whole-document replace-via-rename in the file variant. Mutations
// return the post-mutation snapshot so callers can invalidate caches and
// broadcast without a second read.
type Store interface {
	// Create makes a new empty project. Fails with ErrAlreadyExists if the
	// name is taken and ErrValidation if the name is malformed.
	Create(ctx context.Context, name string) (*types.Project, error)

	// Get returns the project, or ErrNotFound.
	Get(ctx context.Context, name string) (*types.Project, error)

	// List returns all projects sorted by name.
	List(ctx context.Context) ([]*types.Project, error)

	// Update applies a partial update. Nil fields are untouched;
	// CurrentState entries merge into the existing map.
	Update(ctx context.Context, name string, fields types.UpdateFields) (*types.Project, error)

	// AppendFeature records a completed feature (duplicates are ignored).
	AppendFeature(ctx context.Context, name, feature string) (*types.Project, error)

	// AppendIssue tracks a new issue, or refreshes the open issue with the
	// same problem text. A resolved issue is never reopened; a recurring
	// problem is appended as a new issue.
	AppendIssue(ctx context.Context, name string, issue types.Issue) (*types.Project, error)

	// ResolveIssue marks the first open issue matching problemMatch as
	// resolved. Fails with ErrIssueNotFound when nothing matches.
	ResolveIssue(ctx context.Context, name, problemMatch string) (*types.Project, error)

	// AppendAnchor adds a context anchor, replacing any existing anchor
	// with the same key.
	AppendAnchor(ctx context.Context, name string, anchor types.ContextAnchor) (*types.Project, error)

	// AppendKeyFile tracks a file worth keeping in view, replacing the
	// entry for an already-tracked path.
	AppendKeyFile(ctx context.Context, name string, kf types.KeyFile) (*types.Project, error)

	// AppendStep adds a next step (duplicates are ignored).
	AppendStep(ctx context.Context, name, step string) (*types.Project, error)

	// AppendInteraction records a conversation exchange.
	AppendInteraction(ctx context.Context, name string, rec types.Interaction) (*types.Project, error)

	// Kind identifies the backend ("sqlite" or "file") for response metadata.
	Kind() string

	// Close releases backend resources.
	Close() error
}
