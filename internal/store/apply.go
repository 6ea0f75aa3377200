package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// The functions in this file mutate an in-memory project document. Both
// backends run them inside their own atomicity envelope (transaction or
// per-project file lock), so the rules live in exactly one place.

// touch advances UpdatedAt, never letting it go backwards even when the
// caller's clock is behind the stored timestamp (last-write-wins updates
// must not regress the timestamp).
func touch(p *types.Project, now time.Time) {
	if now.After(p.UpdatedAt) {
		p.UpdatedAt = now
	}
}

func validationErr(err error) error {
	return fmt.Errorf("%w: %s", ErrValidation, err)
}

func applyUpdate(p *types.Project, fields types.UpdateFields, now time.Time) error {
	if fields.CurrentGoal != nil {
		p.CurrentGoal = *fields.CurrentGoal
	}
	if fields.CompletedFeatures != nil {
		p.CompletedFeatures = append([]string{}, *fields.CompletedFeatures...)
	}
	if fields.CurrentIssues != nil {
		for i := range *fields.CurrentIssues {
			if err := (*fields.CurrentIssues)[i].Validate(); err != nil {
				return validationErr(err)
			}
		}
		p.CurrentIssues = append([]types.Issue{}, *fields.CurrentIssues...)
	}
	if fields.NextSteps != nil {
		p.NextSteps = append([]string{}, *fields.NextSteps...)
	}
	for k, v := range fields.CurrentState {
		p.CurrentState[k] = v
	}
	if fields.KeyFiles != nil {
		for i := range *fields.KeyFiles {
			if err := (*fields.KeyFiles)[i].Validate(); err != nil {
				return validationErr(err)
			}
		}
		p.KeyFiles = append([]types.KeyFile{}, *fields.KeyFiles...)
	}
	if fields.ContextAnchors != nil {
		for i := range *fields.ContextAnchors {
			if err := (*fields.ContextAnchors)[i].Validate(); err != nil {
				return validationErr(err)
			}
		}
		p.ContextAnchors = append([]types.ContextAnchor{}, *fields.ContextAnchors...)
	}
	touch(p, now)
	return nil
}

func applyFeature(p *types.Project, feature string, now time.Time) error {
	if strings.TrimSpace(feature) == "" {
		return validationErr(types.ErrEmptyFeature)
	}
	for _, f := range p.CompletedFeatures {
		if f == feature {
			return nil
		}
	}
	p.CompletedFeatures = append(p.CompletedFeatures, feature)
	touch(p, now)
	return nil
}

func applyIssue(p *types.Project, issue types.Issue, now time.Time) error {
	if err := issue.Validate(); err != nil {
		return validationErr(err)
	}
	issue.Resolved = false
	issue.ResolvedAt = nil
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	// Refresh an existing open issue in place. Resolved issues stay
	// resolved; a recurring problem becomes a new entry.
	for i := range p.CurrentIssues {
		if p.CurrentIssues[i].Problem == issue.Problem && !p.CurrentIssues[i].Resolved {
			p.CurrentIssues[i].Location = issue.Location
			p.CurrentIssues[i].RootCause = issue.RootCause
			touch(p, now)
			return nil
		}
	}
	p.CurrentIssues = append(p.CurrentIssues, issue)
	touch(p, now)
	return nil
}

func applyResolveIssue(p *types.Project, problemMatch string, now time.Time) error {
	if strings.TrimSpace(problemMatch) == "" {
		return validationErr(types.ErrEmptyProblem)
	}
	idx := -1
	for i := range p.CurrentIssues {
		if p.CurrentIssues[i].Resolved {
			continue
		}
		if p.CurrentIssues[i].Problem == problemMatch {
			idx = i
			break
		}
		if idx < 0 && strings.Contains(
			strings.ToLower(p.CurrentIssues[i].Problem), strings.ToLower(problemMatch)) {
			idx = i
		}
	}
	if idx < 0 {
		return ErrIssueNotFound
	}
	resolvedAt := now
	p.CurrentIssues[idx].Resolved = true
	p.CurrentIssues[idx].ResolvedAt = &resolvedAt
	touch(p, now)
	return nil
}

func applyAnchor(p *types.Project, anchor types.ContextAnchor, now time.Time) error {
	if err := anchor.Validate(); err != nil {
		return validationErr(err)
	}
	if anchor.CreatedAt.IsZero() {
		anchor.CreatedAt = now
	}
	// Upsert by key: a re-anchored key replaces its value and priority but
	// keeps the original creation time.
	for i := range p.ContextAnchors {
		if p.ContextAnchors[i].Key == anchor.Key {
			anchor.CreatedAt = p.ContextAnchors[i].CreatedAt
			p.ContextAnchors[i] = anchor
			touch(p, now)
			return nil
		}
	}
	p.ContextAnchors = append(p.ContextAnchors, anchor)
	touch(p, now)
	return nil
}

func applyKeyFile(p *types.Project, kf types.KeyFile, now time.Time) error {
	if err := kf.Validate(); err != nil {
		return validationErr(err)
	}
	// Upsert by path: re-adding a tracked file refreshes its description.
	for i := range p.KeyFiles {
		if p.KeyFiles[i].Path == kf.Path {
			p.KeyFiles[i] = kf
			touch(p, now)
			return nil
		}
	}
	p.KeyFiles = append(p.KeyFiles, kf)
	touch(p, now)
	return nil
}

func applyStep(p *types.Project, step string, now time.Time) error {
	if strings.TrimSpace(step) == "" {
		return validationErr(types.ErrEmptyStep)
	}
	for _, s := range p.NextSteps {
		if s == step {
			return nil
		}
	}
	p.NextSteps = append(p.NextSteps, step)
	touch(p, now)
	return nil
}

func applyInteraction(p *types.Project, rec types.Interaction, now time.Time) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	p.ConversationHistory = append(p.ConversationHistory, rec)
	touch(p, now)
	return nil
}
