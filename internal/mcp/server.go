package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/ctxtrack-mcp/internal/analytics"
	"github.com/dshills/ctxtrack-mcp/internal/manager"
	"github.com/dshills/ctxtrack-mcp/internal/search"
)

const (
	// ServerName is the MCP server name
	ServerName = "ctxtrack-mcp"
	// ServerVersion is the current server version
	ServerVersion = "2.0.0"
)

// Server wraps the MCP stdio server with application dependencies. All
// tool handlers operate through the shared manager, so MCP clients and
// HTTP clients observe the same state, cache, and events.
type Server struct {
	mcp       *server.MCPServer
	mgr       *manager.Manager
	searcher  *search.Engine
	analytics *analytics.Engine
	logger    *zap.Logger
}

// NewServer creates a new MCP server instance over a wired manager.
func NewServer(mgr *manager.Manager, searcher *search.Engine, an *analytics.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion),
		mgr:       mgr,
		searcher:  searcher,
		analytics: an,
		logger:    logger,
	}

	s.registerTools()

	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting mcp server",
		zap.String("name", ServerName),
		zap.String("version", ServerVersion))
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools.
func (s *Server) registerTools() {
	s.mcp.AddTool(getContextTool(), s.handleGetContext)
	s.mcp.AddTool(listProjectsTool(), s.handleListProjects)
	s.mcp.AddTool(updateContextTool(), s.handleUpdateContext)
	s.mcp.AddTool(setGoalTool(), s.handleSetGoal)
	s.mcp.AddTool(completeFeatureTool(), s.handleCompleteFeature)
	s.mcp.AddTool(addIssueTool(), s.handleAddIssue)
	s.mcp.AddTool(resolveIssueTool(), s.handleResolveIssue)
	s.mcp.AddTool(addNextStepTool(), s.handleAddNextStep)
	s.mcp.AddTool(addKeyFileTool(), s.handleAddKeyFile)
	s.mcp.AddTool(addContextAnchorTool(), s.handleAddContextAnchor)
	s.mcp.AddTool(searchContextTool(), s.handleSearchContext)
	s.mcp.AddTool(getAnalyticsTool(), s.handleGetAnalytics)
	s.mcp.AddTool(contextSummaryTool(), s.handleContextSummary)
}
