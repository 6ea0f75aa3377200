package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/ctxtrack-mcp/internal/store"
	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Named project does not exist
	ErrorCodeBackendUnavailable = -32002 // Storage backend down or pool exhausted
	ErrorCodeIssueNotFound      = -32003 // No open issue matches
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleGetContext handles the get_context tool invocation
func (s *Server) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}

	p, err := s.mgr.GetProject(ctx, project)
	if err != nil {
		return nil, storeError("failed to get context", err)
	}

	return jsonResult(p)
}

// handleListProjects handles the list_projects tool invocation
func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.mgr.ListProjects(ctx)
	if err != nil {
		return nil, storeError("failed to list projects", err)
	}

	rows := make([]map[string]interface{}, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, map[string]interface{}{
			"name":               p.Name,
			"current_goal":       p.CurrentGoal,
			"completed_features": len(p.CompletedFeatures),
			"open_issues":        len(p.OpenIssues()),
			"next_steps":         len(p.NextSteps),
			"updated_at":         p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return jsonResult(map[string]interface{}{
		"projects": rows,
		"count":    len(rows),
	})
}

// handleUpdateContext handles the update_context tool invocation
func (s *Server) handleUpdateContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}

	var fields types.UpdateFields
	if goal, ok := args["current_goal"].(string); ok {
		fields.CurrentGoal = &goal
	}
	if rawSteps, ok := args["next_steps"].([]interface{}); ok {
		steps := make([]string, 0, len(rawSteps))
		for _, v := range rawSteps {
			step, ok := v.(string)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, "next_steps entries must be strings", nil)
			}
			steps = append(steps, step)
		}
		fields.NextSteps = &steps
	}
	if state, ok := args["current_state"].(map[string]interface{}); ok {
		fields.CurrentState = state
	}
	if fields.Empty() {
		return nil, newMCPError(ErrorCodeInvalidParams, "update carries no changes", nil)
	}

	p, err := s.mgr.UpdateProject(ctx, project, fields)
	if err != nil {
		return nil, storeError("failed to update context", err)
	}
	return jsonResult(p)
}

// handleSetGoal handles the set_goal tool invocation
func (s *Server) handleSetGoal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}
	goal, err := requiredString(args, "goal")
	if err != nil {
		return nil, err
	}

	p, err := s.mgr.SetGoal(ctx, project, goal)
	if err != nil {
		return nil, storeError("failed to set goal", err)
	}
	return jsonResult(map[string]interface{}{
		"project":      p.Name,
		"current_goal": p.CurrentGoal,
	})
}

// handleCompleteFeature handles the complete_feature tool invocation
func (s *Server) handleCompleteFeature(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}
	feature, err := requiredString(args, "feature")
	if err != nil {
		return nil, err
	}

	p, err := s.mgr.CompleteFeature(ctx, project, feature)
	if err != nil {
		return nil, storeError("failed to record feature", err)
	}
	return jsonResult(map[string]interface{}{
		"project":            p.Name,
		"completed_features": p.CompletedFeatures,
	})
}

// handleAddIssue handles the add_issue tool invocation
func (s *Server) handleAddIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}
	problem, err := requiredString(args, "problem")
	if err != nil {
		return nil, err
	}

	p, err := s.mgr.AddIssue(ctx, project, types.Issue{
		Problem:   problem,
		Location:  getStringDefault(args, "location", ""),
		RootCause: getStringDefault(args, "root_cause", ""),
	})
	if err != nil {
		return nil, storeError("failed to add issue", err)
	}
	return jsonResult(map[string]interface{}{
		"project":     p.Name,
		"open_issues": p.OpenIssues(),
	})
}

// handleResolveIssue handles the resolve_issue tool invocation
func (s *Server) handleResolveIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}
	problem, err := requiredString(args, "problem")
	if err != nil {
		return nil, err
	}

	p, err := s.mgr.ResolveIssue(ctx, project, problem)
	if err != nil {
		return nil, storeError("failed to resolve issue", err)
	}
	return jsonResult(map[string]interface{}{
		"project":     p.Name,
		"resolved":    problem,
		"open_issues": p.OpenIssues(),
	})
}

// handleAddNextStep handles the add_next_step tool invocation
func (s *Server) handleAddNextStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}
	step, err := requiredString(args, "step")
	if err != nil {
		return nil, err
	}

	p, err := s.mgr.AddStep(ctx, project, step)
	if err != nil {
		return nil, storeError("failed to add step", err)
	}
	return jsonResult(map[string]interface{}{
		"project":    p.Name,
		"next_steps": p.NextSteps,
	})
}

// handleAddKeyFile handles the add_key_file tool invocation
func (s *Server) handleAddKeyFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}
	path, err := requiredString(args, "path")
	if err != nil {
		return nil, err
	}

	p, err := s.mgr.AddKeyFile(ctx, project, types.KeyFile{
		Path:        path,
		Description: getStringDefault(args, "description", ""),
	})
	if err != nil {
		return nil, storeError("failed to add key file", err)
	}
	return jsonResult(map[string]interface{}{
		"project":   p.Name,
		"key_files": p.KeyFiles,
	})
}

// handleAddContextAnchor handles the add_context_anchor tool invocation
func (s *Server) handleAddContextAnchor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}
	key, err := requiredString(args, "key")
	if err != nil {
		return nil, err
	}
	value, err := requiredString(args, "value")
	if err != nil {
		return nil, err
	}

	p, err := s.mgr.AddAnchor(ctx, project, types.ContextAnchor{
		Key:         key,
		Value:       value,
		Description: getStringDefault(args, "description", ""),
		Priority:    getIntDefault(args, "priority", types.PriorityMedium),
	})
	if err != nil {
		return nil, storeError("failed to add anchor", err)
	}
	return jsonResult(map[string]interface{}{
		"project": p.Name,
		"anchors": p.ContextAnchors,
	})
}

// handleSearchContext handles the search_context tool invocation
func (s *Server) handleSearchContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	var fields []string
	if rawFields, ok := args["fields"].([]interface{}); ok {
		for _, v := range rawFields {
			field, ok := v.(string)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, "fields entries must be strings", nil)
			}
			fields = append(fields, field)
		}
	}

	results, err := s.searcher.SearchFields(ctx, query, fields, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return jsonResult(map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// handleGetAnalytics handles the get_analytics tool invocation
func (s *Server) handleGetAnalytics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	project := getStringDefault(args, "project", "")
	if project == "" {
		overview, err := s.analytics.Overview(ctx)
		if err != nil {
			return nil, storeError("failed to compute overview", err)
		}
		return jsonResult(overview)
	}

	report, found, err := s.analytics.ProjectReport(ctx, project)
	if err != nil {
		return nil, storeError("failed to compute analytics", err)
	}
	if !found {
		return nil, newMCPError(ErrorCodeProjectNotFound, "project not found", map[string]interface{}{
			"project": project,
		})
	}
	return jsonResult(report)
}

// handleContextSummary handles the context_summary tool invocation
func (s *Server) handleContextSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := requiredString(args, "project")
	if err != nil {
		return nil, err
	}

	summary, err := s.mgr.Summary(ctx, project)
	if err != nil {
		return nil, storeError("failed to summarize context", err)
	}
	return mcp.NewToolResultText(summary), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// storeError maps a store error onto the matching MCP error code.
func storeError(message string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newMCPError(ErrorCodeProjectNotFound, message, map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, store.ErrIssueNotFound):
		return newMCPError(ErrorCodeIssueNotFound, message, map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, store.ErrValidation):
		return newMCPError(ErrorCodeInvalidParams, message, map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, store.ErrPoolExhausted), errors.Is(err, store.ErrBackendUnavailable):
		return newMCPError(ErrorCodeBackendUnavailable, message, map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, message, map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// jsonResult renders any value as an indented-JSON tool result.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to encode result", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(string(data)), nil
}

// requiredString extracts a mandatory string parameter.
func requiredString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if args == nil {
		return defaultValue
	}
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
