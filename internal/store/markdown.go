package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// RenderMarkdown produces the human-readable status document: the file
// backend writes it as a sidecar next to each project document, and the
// markdown export format reuses it.
func RenderMarkdown(p *types.Project) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s - Project Status\n\n", p.Name)
	fmt.Fprintf(&b, "## Current Goal\n\n%s\n\n", orUnset(p.CurrentGoal))

	if len(p.CompletedFeatures) > 0 {
		b.WriteString("## Completed Features\n\n")
		for _, f := range p.CompletedFeatures {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	if open := p.OpenIssues(); len(open) > 0 {
		b.WriteString("## Current Issues\n\n")
		for _, iss := range open {
			fmt.Fprintf(&b, "- **%s**\n", iss.Problem)
			if iss.Location != "" {
				fmt.Fprintf(&b, "  - Location: %s\n", iss.Location)
			}
			if iss.RootCause != "" {
				fmt.Fprintf(&b, "  - Root Cause: %s\n", iss.RootCause)
			}
		}
		b.WriteString("\n")
	}

	if len(p.NextSteps) > 0 {
		b.WriteString("## Next Steps\n\n")
		for i, step := range p.NextSteps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
		b.WriteString("\n")
	}

	if len(p.CurrentState) > 0 {
		b.WriteString("## Current State\n\n")
		keys := make([]string, 0, len(p.CurrentState))
		for k := range p.CurrentState {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- **%s**: %v\n", k, p.CurrentState[k])
		}
		b.WriteString("\n")
	}

	if len(p.KeyFiles) > 0 {
		b.WriteString("## Key Files\n\n")
		for _, kf := range p.KeyFiles {
			if kf.Description != "" {
				fmt.Fprintf(&b, "- `%s` - %s\n", kf.Path, kf.Description)
			} else {
				fmt.Fprintf(&b, "- `%s`\n", kf.Path)
			}
		}
		b.WriteString("\n")
	}

	if len(p.ContextAnchors) > 0 {
		b.WriteString("## Context Anchors\n\n")
		anchors := append([]types.ContextAnchor(nil), p.ContextAnchors...)
		sort.SliceStable(anchors, func(i, j int) bool {
			return anchors[i].Priority < anchors[j].Priority
		})
		for _, a := range anchors {
			fmt.Fprintf(&b, "- **%s**: %s\n", a.Key, a.Value)
			if a.Description != "" {
				fmt.Fprintf(&b, "  - %s\n", a.Description)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\n*Last Updated: %s*\n", p.UpdatedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

func orUnset(s string) string {
	if s == "" {
		return "_not set_"
	}
	return s
}
