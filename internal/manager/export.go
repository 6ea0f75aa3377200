package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/ctxtrack-mcp/internal/store"
	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatSummary  = "summary"
	FormatMarkdown = "markdown"
)

// Summary returns a concise plain-text summary of the project, the form
// used by the context_summary tool and the summary export format.
func (m *Manager) Summary(ctx context.Context, name string) (string, error) {
	p, err := m.GetProject(ctx, name)
	if err != nil {
		return "", err
	}
	return renderSummary(p), nil
}

// Export renders the project in the requested format and returns the body
// with its content type. Unknown formats fail with ErrValidation.
func (m *Manager) Export(ctx context.Context, name, format string) ([]byte, string, error) {
	p, err := m.GetProject(ctx, name)
	if err != nil {
		return nil, "", err
	}

	switch format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode project %q: %w", name, err)
		}
		return data, "application/json", nil
	case FormatSummary:
		return []byte(renderSummary(p)), "text/plain; charset=utf-8", nil
	case FormatMarkdown:
		return []byte(store.RenderMarkdown(p)), "text/markdown; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("%w: unsupported export format %q", store.ErrValidation, format)
	}
}

func renderSummary(p *types.Project) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Project: %s\n", p.Name)
	goal := p.CurrentGoal
	if goal == "" {
		goal = "(not set)"
	}
	fmt.Fprintf(&b, "Goal: %s\n", goal)

	fmt.Fprintf(&b, "Completed: %d feature(s)", len(p.CompletedFeatures))
	if n := len(p.CompletedFeatures); n > 0 {
		fmt.Fprintf(&b, " (latest: %s)", p.CompletedFeatures[n-1])
	}
	b.WriteString("\n")

	open := p.OpenIssues()
	fmt.Fprintf(&b, "Open issues: %d\n", len(open))
	for _, iss := range open {
		fmt.Fprintf(&b, "  - %s\n", iss.Problem)
	}

	if len(p.NextSteps) > 0 {
		b.WriteString("Next steps:\n")
		steps := p.NextSteps
		if len(steps) > 3 {
			steps = steps[:3]
		}
		for i, step := range steps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
		if extra := len(p.NextSteps) - 3; extra > 0 {
			fmt.Fprintf(&b, "  (+%d more)\n", extra)
		}
	}

	if len(p.KeyFiles) > 0 {
		fmt.Fprintf(&b, "Key files: %d\n", len(p.KeyFiles))
	}
	if len(p.ContextAnchors) > 0 {
		fmt.Fprintf(&b, "Anchors: %d\n", len(p.ContextAnchors))
	}

	fmt.Fprintf(&b, "Last updated: %s\n", p.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}
