package types

import "time"

// Priority levels for context anchors
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// Issue is a tracked problem on a project. Resolution is one-way: once
// Resolved is set it never transitions back to open.
type Issue struct {
	Problem    string     `json:"problem"`
	Location   string     `json:"location,omitempty"`
	RootCause  string     `json:"root_cause,omitempty"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ContextAnchor is a prioritized key-value note that should be kept in
// front of the conversation for its project.
type ContextAnchor struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

// KeyFile is a file worth keeping in view for a project, with an optional
// note on why it matters.
type KeyFile struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Interaction is one recorded exchange in a project's conversation history.
type Interaction struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Project is the unit of tracked state: one named project with its goal,
// completed features, open issues, planned steps, freeform state, anchors,
// and conversation history.
type Project struct {
	Name                string          `json:"name"`
	CurrentGoal         string          `json:"current_goal,omitempty"`
	CompletedFeatures   []string        `json:"completed_features"`
	CurrentIssues       []Issue         `json:"current_issues"`
	NextSteps           []string        `json:"next_steps"`
	CurrentState        map[string]any  `json:"current_state"`
	KeyFiles            []KeyFile       `json:"key_files"`
	ContextAnchors      []ContextAnchor `json:"context_anchors"`
	ConversationHistory []Interaction   `json:"conversation_history"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewProject returns an empty project with all collections initialized so
// the JSON form never contains nulls.
func NewProject(name string, now time.Time) *Project {
	return &Project{
		Name:                name,
		CompletedFeatures:   []string{},
		CurrentIssues:       []Issue{},
		NextSteps:           []string{},
		CurrentState:        map[string]any{},
		KeyFiles:            []KeyFile{},
		ContextAnchors:      []ContextAnchor{},
		ConversationHistory: []Interaction{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// OpenIssues returns the issues not yet resolved, in creation order.
func (p *Project) OpenIssues() []Issue {
	open := make([]Issue, 0, len(p.CurrentIssues))
	for _, iss := range p.CurrentIssues {
		if !iss.Resolved {
			open = append(open, iss)
		}
	}
	return open
}

// Clone returns a deep copy. Cached snapshots are shared between readers,
// so anything that mutates a project must work on a copy.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.CompletedFeatures = append([]string(nil), p.CompletedFeatures...)
	cp.NextSteps = append([]string(nil), p.NextSteps...)
	cp.CurrentIssues = append([]Issue(nil), p.CurrentIssues...)
	cp.KeyFiles = append([]KeyFile(nil), p.KeyFiles...)
	cp.ContextAnchors = append([]ContextAnchor(nil), p.ContextAnchors...)
	cp.ConversationHistory = append([]Interaction(nil), p.ConversationHistory...)
	cp.CurrentState = make(map[string]any, len(p.CurrentState))
	for k, v := range p.CurrentState {
		cp.CurrentState[k] = v
	}
	return &cp
}

// UpdateFields carries a partial update. Nil pointer fields are left
// untouched; CurrentState entries are merged into the existing map.
type UpdateFields struct {
	CurrentGoal       *string          `json:"current_goal,omitempty"`
	CompletedFeatures *[]string        `json:"completed_features,omitempty"`
	CurrentIssues     *[]Issue         `json:"current_issues,omitempty"`
	NextSteps         *[]string        `json:"next_steps,omitempty"`
	CurrentState      map[string]any   `json:"current_state,omitempty"`
	KeyFiles          *[]KeyFile       `json:"key_files,omitempty"`
	ContextAnchors    *[]ContextAnchor `json:"context_anchors,omitempty"`
}

// Empty reports whether the update carries no changes at all.
func (u *UpdateFields) Empty() bool {
	return u.CurrentGoal == nil &&
		u.CompletedFeatures == nil &&
		u.CurrentIssues == nil &&
		u.NextSteps == nil &&
		len(u.CurrentState) == 0 &&
		u.KeyFiles == nil &&
		u.ContextAnchors == nil
}
