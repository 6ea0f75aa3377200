package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dshills/ctxtrack-mcp/internal/broadcast"
	"github.com/dshills/ctxtrack-mcp/internal/cache"
	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// HealthData is the payload for GET /health.
type HealthData struct {
	Status    string                    `json:"status"`
	Backend   string                    `json:"backend"`
	Cache     cache.Stats               `json:"cache"`
	Broadcast broadcast.ConnectionStats `json:"broadcast"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return s.ok(c, "", HealthData{
		Status:    "ok",
		Backend:   s.mgr.BackendKind(),
		Cache:     s.mgr.CacheStats(),
		Broadcast: s.mgr.BroadcastStats(),
	})
}

// ProjectSummary is the per-project row in GET /projects.
type ProjectSummary struct {
	Name              string    `json:"name"`
	CurrentGoal       string    `json:"current_goal,omitempty"`
	CompletedFeatures int       `json:"completed_features"`
	OpenIssues        int       `json:"open_issues"`
	NextSteps         int       `json:"next_steps"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (s *Server) handleListProjects(c echo.Context) error {
	projects, err := s.mgr.ListProjects(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}

	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, ProjectSummary{
			Name:              p.Name,
			CurrentGoal:       p.CurrentGoal,
			CompletedFeatures: len(p.CompletedFeatures),
			OpenIssues:        len(p.OpenIssues()),
			NextSteps:         len(p.NextSteps),
			UpdatedAt:         p.UpdatedAt,
		})
	}
	return s.ok(c, "", summaries)
}

// projectView is the full project payload; current_issues carries only
// open issues, resolved ones are historical detail reachable via export.
type projectView struct {
	Name                string                `json:"name"`
	CurrentGoal         string                `json:"current_goal,omitempty"`
	CompletedFeatures   []string              `json:"completed_features"`
	CurrentIssues       []types.Issue         `json:"current_issues"`
	NextSteps           []string              `json:"next_steps"`
	CurrentState        map[string]any        `json:"current_state"`
	KeyFiles            []types.KeyFile       `json:"key_files"`
	ContextAnchors      []types.ContextAnchor `json:"context_anchors"`
	ConversationHistory []types.Interaction   `json:"conversation_history"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

func viewOf(p *types.Project) projectView {
	return projectView{
		Name:                p.Name,
		CurrentGoal:         p.CurrentGoal,
		CompletedFeatures:   p.CompletedFeatures,
		CurrentIssues:       p.OpenIssues(),
		NextSteps:           p.NextSteps,
		CurrentState:        p.CurrentState,
		KeyFiles:            p.KeyFiles,
		ContextAnchors:      p.ContextAnchors,
		ConversationHistory: p.ConversationHistory,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func (s *Server) handleGetProject(c echo.Context) error {
	p, err := s.mgr.GetProject(c.Request().Context(), c.Param("name"))
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "", viewOf(p))
}

func (s *Server) handleExport(c echo.Context) error {
	format := c.QueryParam("format")
	data, contentType, err := s.mgr.Export(c.Request().Context(), c.Param("name"), format)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func (s *Server) handleUpdate(c echo.Context) error {
	var fields types.UpdateFields
	if err := c.Bind(&fields); err != nil {
		return s.failMsg(c, http.StatusBadRequest, "invalid request body")
	}
	if fields.Empty() {
		return s.failMsg(c, http.StatusBadRequest, "update carries no changes")
	}

	p, err := s.mgr.UpdateProject(c.Request().Context(), c.Param("name"), fields)
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "context updated", viewOf(p))
}

func (s *Server) handleSetGoal(c echo.Context) error {
	var req struct {
		Goal string `json:"goal"`
	}
	if err := c.Bind(&req); err != nil {
		return s.failMsg(c, http.StatusBadRequest, "invalid request body")
	}

	p, err := s.mgr.SetGoal(c.Request().Context(), c.Param("name"), req.Goal)
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "goal set", viewOf(p))
}

func (s *Server) handleCompleteFeature(c echo.Context) error {
	var req struct {
		Feature string `json:"feature"`
	}
	if err := c.Bind(&req); err != nil {
		return s.failMsg(c, http.StatusBadRequest, "invalid request body")
	}

	p, err := s.mgr.CompleteFeature(c.Request().Context(), c.Param("name"), req.Feature)
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "feature recorded", viewOf(p))
}

func (s *Server) handleAddIssue(c echo.Context) error {
	var req struct {
		Problem   string `json:"problem"`
		Location  string `json:"location"`
		RootCause string `json:"root_cause"`
	}
	if err := c.Bind(&req); err != nil {
		return s.failMsg(c, http.StatusBadRequest, "invalid request body")
	}

	p, err := s.mgr.AddIssue(c.Request().Context(), c.Param("name"), types.Issue{
		Problem:   req.Problem,
		Location:  req.Location,
		RootCause: req.RootCause,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "issue recorded", viewOf(p))
}

func (s *Server) handleResolveIssue(c echo.Context) error {
	var req struct {
		Problem string `json:"problem"`
	}
	if err := c.Bind(&req); err != nil {
		return s.failMsg(c, http.StatusBadRequest, "invalid request body")
	}

	p, err := s.mgr.ResolveIssue(c.Request().Context(), c.Param("name"), req.Problem)
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "issue resolved", viewOf(p))
}

func (s *Server) handleAddStep(c echo.Context) error {
	var req struct {
		Step string `json:"step"`
	}
	if err := c.Bind(&req); err != nil {
		return s.failMsg(c, http.StatusBadRequest, "invalid request body")
	}

	p, err := s.mgr.AddStep(c.Request().Context(), c.Param("name"), req.Step)
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "step recorded", viewOf(p))
}

func (s *Server) handleAddKeyFile(c echo.Context) error {
	var req struct {
		Path        string `json:"path"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return s.failMsg(c, http.StatusBadRequest, "invalid request body")
	}

	p, err := s.mgr.AddKeyFile(c.Request().Context(), c.Param("name"), types.KeyFile{
		Path:        req.Path,
		Description: req.Description,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "key file recorded", viewOf(p))
}

func (s *Server) handleAddAnchor(c echo.Context) error {
	var req struct {
		Key         string `json:"key"`
		Value       string `json:"value"`
		Description string `json:"description"`
		Priority    int    `json:"priority"`
	}
	if err := c.Bind(&req); err != nil {
		return s.failMsg(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Priority == 0 {
		req.Priority = types.PriorityMedium
	}

	p, err := s.mgr.AddAnchor(c.Request().Context(), c.Param("name"), types.ContextAnchor{
		Key:         req.Key,
		Value:       req.Value,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "anchor recorded", viewOf(p))
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		// q is accepted as a shorthand alias.
		query = c.QueryParam("q")
	}
	if query == "" {
		return s.failMsg(c, http.StatusBadRequest, "query parameter is required")
	}

	var fields []string
	if raw := c.QueryParam("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return s.failMsg(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	results, err := s.searcher.SearchFields(c.Request().Context(), query, fields, limit)
	if err != nil {
		return s.failMsg(c, http.StatusBadRequest, err.Error())
	}
	return s.ok(c, "", results)
}

func (s *Server) handleSearchAdvanced(c echo.Context) error {
	var req struct {
		Query  string   `json:"query"`
		Fields []string `json:"fields"`
		Limit  int      `json:"limit"`
	}
	if err := c.Bind(&req); err != nil {
		return s.failMsg(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return s.failMsg(c, http.StatusBadRequest, "query is required")
	}

	results, err := s.searcher.SearchFields(c.Request().Context(), req.Query, req.Fields, req.Limit)
	if err != nil {
		return s.failMsg(c, http.StatusBadRequest, err.Error())
	}
	return s.ok(c, "", results)
}

func (s *Server) handleProjectAnalytics(c echo.Context) error {
	name := c.Param("name")
	report, found, err := s.analytics.ProjectReport(c.Request().Context(), name)
	if err != nil {
		return s.fail(c, err)
	}
	if !found {
		return s.failMsg(c, http.StatusNotFound, "project not found: "+name)
	}
	return s.ok(c, "", report)
}

func (s *Server) handleAnalyticsOverview(c echo.Context) error {
	overview, err := s.analytics.Overview(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, "", overview)
}
