// Package mcp implements the Model Context Protocol (MCP) server for
// ctxtrack.
//
// The server exposes the project context tracker to AI coding assistants
// over JSON-RPC 2.0 on stdio:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Tools:
//   - get_context / list_projects: read tracked state
//   - update_context, set_goal, complete_feature, add_issue,
//     resolve_issue, add_next_step, add_key_file, add_context_anchor:
//     mutate state
//   - search_context: token-overlap search across projects
//   - get_analytics: health score, completion, and insights
//   - context_summary: concise plain-text summary
//
// All tools run through the same manager as the HTTP API, so writes made
// here invalidate the shared cache and fan out to WebSocket subscribers.
//
// Mutating tools create the named project on first use; only
// resolve_issue requires it to exist already.
package mcp
