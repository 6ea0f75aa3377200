package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

const (
	docSuffix    = ".json"
	statusSuffix = "_STATUS.md"
)

// FileStore implements the Store interface with one JSON document per
// project under a root directory. Reads and writes are whole-document;
// writes for a given project are serialized by a per-project exclusive
// lock, and durability comes from write-to-temp-then-rename, so a partial
// write is never externally visible.
//
// A human-readable <name>_STATUS.md is rendered beside each document on
// every write. It is a best-effort convenience; failures there never fail
// the mutation.
type FileStore struct {
	root string
	now  func() time.Time

	mu sync.Mutex // guards locks
	// locks holds one mutex per project, retained for the life of the
	// store: projects are never deleted, so the map only grows with the
	// set of tracked projects.
	locks map[string]*sync.Mutex
}

// NewFileStore creates the root directory if needed and returns the store.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create storage root: %s", ErrBackendUnavailable, err)
	}
	return &FileStore{
		root:  root,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Kind identifies the backend for response metadata.
func (s *FileStore) Kind() string { return "file" }

// Close is a no-op; documents are flushed on every write.
func (s *FileStore) Close() error { return nil }

// projectLock returns the exclusive write lock for one project.
func (s *FileStore) projectLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *FileStore) docPath(name string) string {
	return filepath.Join(s.root, name+docSuffix)
}

// readDoc loads and decodes one project document.
func (s *FileStore) readDoc(name string) (*types.Project, error) {
	data, err := os.ReadFile(s.docPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read project document: %s", ErrBackendUnavailable, err)
	}
	var p types.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode project %q: %w", name, err)
	}
	normalize(&p)
	return &p, nil
}

// normalize initializes any collection a hand-edited document left null,
// so mutations can always append or assign without a nil check.
func normalize(p *types.Project) {
	if p.CompletedFeatures == nil {
		p.CompletedFeatures = []string{}
	}
	if p.CurrentIssues == nil {
		p.CurrentIssues = []types.Issue{}
	}
	if p.NextSteps == nil {
		p.NextSteps = []string{}
	}
	if p.CurrentState == nil {
		p.CurrentState = map[string]any{}
	}
	if p.KeyFiles == nil {
		p.KeyFiles = []types.KeyFile{}
	}
	if p.ContextAnchors == nil {
		p.ContextAnchors = []types.ContextAnchor{}
	}
	if p.ConversationHistory == nil {
		p.ConversationHistory = []types.Interaction{}
	}
}

// writeDoc persists the document atomically: marshal, write to a temp file
// in the same directory, fsync, then rename over the target.
func (s *FileStore) writeDoc(p *types.Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode project %q: %w", p.Name, err)
	}

	tmp, err := os.CreateTemp(s.root, p.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %s", ErrBackendUnavailable, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write project document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync project document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.docPath(p.Name)); err != nil {
		return fmt.Errorf("failed to replace project document: %w", err)
	}

	// Markdown sidecar for humans; never fatal.
	statusPath := filepath.Join(s.root, p.Name+statusSuffix)
	_ = os.WriteFile(statusPath, []byte(RenderMarkdown(p)), 0o644)

	return nil
}

// Create makes a new empty project document.
func (s *FileStore) Create(ctx context.Context, name string) (*types.Project, error) {
	if err := types.ValidateName(name); err != nil {
		return nil, validationErr(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := s.projectLock(name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(s.docPath(name)); err == nil {
		return nil, ErrAlreadyExists
	}

	p := types.NewProject(name, s.now().UTC())
	if err := s.writeDoc(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the project, or ErrNotFound. Reads take no lock: the rename
// on the write path guarantees a reader always sees a complete document.
func (s *FileStore) Get(ctx context.Context, name string) (*types.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readDoc(name)
}

// List returns all projects sorted by name.
func (s *FileStore) List(ctx context.Context) ([]*types.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read storage root: %s", ErrBackendUnavailable, err)
	}

	var projects []*types.Project
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), docSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), docSuffix)
		p, err := s.readDoc(name)
		if err != nil {
			// A temp file may have been swept up or a doc removed
			// between ReadDir and the read; skip rather than fail.
			continue
		}
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// mutate serializes the read-modify-write cycle under the project's lock.
func (s *FileStore) mutate(ctx context.Context, name string, fn func(*types.Project) error) (*types.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := s.projectLock(name)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.readDoc(name)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := s.writeDoc(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update applies a partial update as one atomic document replace.
func (s *FileStore) Update(ctx context.Context, name string, fields types.UpdateFields) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyUpdate(p, fields, s.now().UTC())
	})
}

// AppendFeature records a completed feature.
func (s *FileStore) AppendFeature(ctx context.Context, name, feature string) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyFeature(p, feature, s.now().UTC())
	})
}

// AppendIssue tracks a new or refreshed issue.
func (s *FileStore) AppendIssue(ctx context.Context, name string, issue types.Issue) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyIssue(p, issue, s.now().UTC())
	})
}

// ResolveIssue marks a matching open issue as resolved.
func (s *FileStore) ResolveIssue(ctx context.Context, name, problemMatch string) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyResolveIssue(p, problemMatch, s.now().UTC())
	})
}

// AppendAnchor adds or replaces a context anchor by key.
func (s *FileStore) AppendAnchor(ctx context.Context, name string, anchor types.ContextAnchor) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyAnchor(p, anchor, s.now().UTC())
	})
}

// AppendKeyFile tracks a key file, replacing the entry for its path.
func (s *FileStore) AppendKeyFile(ctx context.Context, name string, kf types.KeyFile) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyKeyFile(p, kf, s.now().UTC())
	})
}

// AppendStep adds a next step.
func (s *FileStore) AppendStep(ctx context.Context, name, step string) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyStep(p, step, s.now().UTC())
	})
}

// AppendInteraction records a conversation exchange.
func (s *FileStore) AppendInteraction(ctx context.Context, name string, rec types.Interaction) (*types.Project, error) {
	return s.mutate(ctx, name, func(p *types.Project) error {
		return applyInteraction(p, rec, s.now().UTC())
	})
}
