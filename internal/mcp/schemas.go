package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// projectProperty is the shared project name parameter.
func projectProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Project name (created on first write if it does not exist)",
	}
}

// getContextTool returns the tool definition for get_context
func getContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_context",
		Description: "Get the full tracked context for a project: goal, features, issues, steps, state, and anchors",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
			},
			Required: []string{"project"},
		},
	}
}

// listProjectsTool returns the tool definition for list_projects
func listProjectsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_projects",
		Description: "List all tracked projects with a one-line summary each",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// updateContextTool returns the tool definition for update_context
func updateContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_context",
		Description: "Apply a partial update to a project's context; omitted fields are left untouched",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
				"current_goal": map[string]interface{}{
					"type":        "string",
					"description": "Replace the current goal",
				},
				"next_steps": map[string]interface{}{
					"type":        "array",
					"description": "Replace the next steps list",
					"items":       map[string]interface{}{"type": "string"},
				},
				"current_state": map[string]interface{}{
					"type":        "object",
					"description": "Key-value entries merged into the freeform state map",
				},
			},
			Required: []string{"project"},
		},
	}
}

// setGoalTool returns the tool definition for set_goal
func setGoalTool() mcp.Tool {
	return mcp.Tool{
		Name:        "set_goal",
		Description: "Set the project's current goal",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
				"goal": map[string]interface{}{
					"type":        "string",
					"description": "The goal being worked toward",
				},
			},
			Required: []string{"project", "goal"},
		},
	}
}

// completeFeatureTool returns the tool definition for complete_feature
func completeFeatureTool() mcp.Tool {
	return mcp.Tool{
		Name:        "complete_feature",
		Description: "Record a completed feature (duplicates are ignored)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
				"feature": map[string]interface{}{
					"type":        "string",
					"description": "Short description of the completed feature",
				},
			},
			Required: []string{"project", "feature"},
		},
	}
}

// addIssueTool returns the tool definition for add_issue
func addIssueTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_issue",
		Description: "Track a problem on the project; re-adding an open problem refreshes its details",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
				"problem": map[string]interface{}{
					"type":        "string",
					"description": "What is wrong",
				},
				"location": map[string]interface{}{
					"type":        "string",
					"description": "Where the problem lives (file, component)",
				},
				"root_cause": map[string]interface{}{
					"type":        "string",
					"description": "Root cause, if known",
				},
			},
			Required: []string{"project", "problem"},
		},
	}
}

// resolveIssueTool returns the tool definition for resolve_issue
func resolveIssueTool() mcp.Tool {
	return mcp.Tool{
		Name:        "resolve_issue",
		Description: "Mark an open issue as resolved; matches exact problem text first, then substring",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
				"problem": map[string]interface{}{
					"type":        "string",
					"description": "Problem text (or a distinctive fragment of it)",
				},
			},
			Required: []string{"project", "problem"},
		},
	}
}

// addNextStepTool returns the tool definition for add_next_step
func addNextStepTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_next_step",
		Description: "Add a planned next step (duplicates are ignored)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
				"step": map[string]interface{}{
					"type":        "string",
					"description": "The planned step",
				},
			},
			Required: []string{"project", "step"},
		},
	}
}

// addKeyFileTool returns the tool definition for add_key_file
func addKeyFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_key_file",
		Description: "Track a file worth keeping in view; re-adding a path refreshes its description",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File path relative to the project root",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Why this file matters",
				},
			},
			Required: []string{"project", "path"},
		},
	}
}

// addContextAnchorTool returns the tool definition for add_context_anchor
func addContextAnchorTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_context_anchor",
		Description: "Pin a key decision or constraint; an existing key is replaced",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
				"key": map[string]interface{}{
					"type":        "string",
					"description": "Anchor key (e.g. 'database', 'auth-strategy')",
				},
				"value": map[string]interface{}{
					"type":        "string",
					"description": "The decision or constraint to remember",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Optional longer explanation",
				},
				"priority": map[string]interface{}{
					"type":        "integer",
					"description": "1 = high, 2 = medium, 3 = low",
					"default":     2,
					"minimum":     1,
					"maximum":     3,
				},
			},
			Required: []string{"project", "key", "value"},
		},
	}
}

// searchContextTool returns the tool definition for search_context
func searchContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_context",
		Description: "Search across all projects' goals, features, open issues, and next steps",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-text query; results score by word overlap",
				},
				"fields": map[string]interface{}{
					"type":        "array",
					"description": "Restrict the search to these fields",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"current_goal", "completed_features", "current_issues", "next_steps"},
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getAnalyticsTool returns the tool definition for get_analytics
func getAnalyticsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_analytics",
		Description: "Get health score, completion percentage, and insights for one project, or an overview of all",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project name; omit for the cross-project overview",
				},
			},
		},
	}
}

// contextSummaryTool returns the tool definition for context_summary
func contextSummaryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "context_summary",
		Description: "Get a concise plain-text summary of a project's context",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
			},
			Required: []string{"project"},
		},
	}
}
