package analytics

import (
	"context"
	"time"

	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// Health score penalties. The score starts at 100 and loses points for
// open issues, a missing goal, and missing anchors, clamped to [0,100].
const (
	penaltyPerOpenIssue = 10
	penaltyNoGoal       = 20
	penaltyNoAnchors    = 10
)

// staleAfter is how long without a write before a project is flagged stale.
const staleAfter = 7 * 24 * time.Hour

// ProjectReport is the full analytics view of one project.
type ProjectReport struct {
	Project              string   `json:"project"`
	CompletionPercentage float64  `json:"completion_percentage"`
	HealthScore          int      `json:"health_score"`
	CompletedFeatures    int      `json:"completed_features"`
	OpenIssues           int      `json:"open_issues"`
	ResolvedIssues       int      `json:"resolved_issues"`
	NextSteps            int      `json:"next_steps"`
	Anchors              int      `json:"anchors"`
	AgeDays              int      `json:"age_days"`
	DaysSinceUpdate      int      `json:"days_since_update"`
	Insights             []string `json:"insights"`
}

// Overview aggregates analytics across every project.
type Overview struct {
	TotalProjects     int     `json:"total_projects"`
	TotalOpenIssues   int     `json:"total_open_issues"`
	TotalFeatures     int     `json:"total_features"`
	AverageHealth     float64 `json:"average_health"`
	AverageCompletion float64 `json:"average_completion"`
	MostHealthy       string  `json:"most_healthy,omitempty"`
	LeastHealthy      string  `json:"least_healthy,omitempty"`
}

// Loader supplies project snapshots, normally the manager's cached list.
type Loader func(ctx context.Context) ([]*types.Project, error)

// Engine computes rule-based analytics over project snapshots. There is no
// model here: scores and insights are fixed formulas so the output is
// stable and explainable.
type Engine struct {
	load Loader
	now  func() time.Time
}

// New creates an Engine over the given snapshot loader.
func New(load Loader) *Engine {
	return &Engine{load: load, now: time.Now}
}

// CompletionPercentage is completed work over total tracked work:
// completed / (completed + open issues + next steps) * 100. A project
// with nothing tracked reports 0, not a division error.
func CompletionPercentage(p *types.Project) float64 {
	completed := len(p.CompletedFeatures)
	total := completed + len(p.OpenIssues()) + len(p.NextSteps)
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// HealthScore rates a project 0-100.
func HealthScore(p *types.Project) int {
	score := 100
	score -= penaltyPerOpenIssue * len(p.OpenIssues())
	if p.CurrentGoal == "" {
		score -= penaltyNoGoal
	}
	if len(p.ContextAnchors) == 0 {
		score -= penaltyNoAnchors
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Insights returns the rule-based observations for a project. Each rule
// contributes one fixed string when its threshold trips.
func (e *Engine) Insights(p *types.Project) []string {
	var insights []string
	if p.CurrentGoal == "" {
		insights = append(insights, "No current goal set - consider defining what you're working toward")
	}
	if len(p.ContextAnchors) == 0 {
		insights = append(insights, "No context anchors - key decisions and constraints may get lost")
	}
	if open := len(p.OpenIssues()); open >= 3 {
		insights = append(insights, "3 or more open issues - consider resolving some before taking on new work")
	}
	if len(p.NextSteps) == 0 {
		insights = append(insights, "No next steps recorded - the path forward is undocumented")
	}
	if e.now().Sub(p.UpdatedAt) > staleAfter {
		insights = append(insights, "No updates in over a week - this project may be stale")
	}
	return insights
}

// Report builds the full analytics view for one project snapshot.
func (e *Engine) Report(p *types.Project) ProjectReport {
	now := e.now()
	return ProjectReport{
		Project:              p.Name,
		CompletionPercentage: CompletionPercentage(p),
		HealthScore:          HealthScore(p),
		CompletedFeatures:    len(p.CompletedFeatures),
		OpenIssues:           len(p.OpenIssues()),
		ResolvedIssues:       len(p.CurrentIssues) - len(p.OpenIssues()),
		NextSteps:            len(p.NextSteps),
		Anchors:              len(p.ContextAnchors),
		AgeDays:              int(now.Sub(p.CreatedAt).Hours() / 24),
		DaysSinceUpdate:      int(now.Sub(p.UpdatedAt).Hours() / 24),
		Insights:             e.Insights(p),
	}
}

// ProjectReport loads one project's snapshot set and reports on the named
// project; the loader decides whether that read is cached.
func (e *Engine) ProjectReport(ctx context.Context, name string) (ProjectReport, bool, error) {
	projects, err := e.load(ctx)
	if err != nil {
		return ProjectReport{}, false, err
	}
	for _, p := range projects {
		if p.Name == name {
			return e.Report(p), true, nil
		}
	}
	return ProjectReport{}, false, nil
}

// Overview aggregates analytics across all projects.
func (e *Engine) Overview(ctx context.Context) (Overview, error) {
	projects, err := e.load(ctx)
	if err != nil {
		return Overview{}, err
	}

	ov := Overview{TotalProjects: len(projects)}
	if len(projects) == 0 {
		return ov, nil
	}

	var healthSum, completionSum float64
	bestScore, worstScore := -1, 101
	for _, p := range projects {
		health := HealthScore(p)
		healthSum += float64(health)
		completionSum += CompletionPercentage(p)
		ov.TotalOpenIssues += len(p.OpenIssues())
		ov.TotalFeatures += len(p.CompletedFeatures)
		if health > bestScore {
			bestScore, ov.MostHealthy = health, p.Name
		}
		if health < worstScore {
			worstScore, ov.LeastHealthy = health, p.Name
		}
	}
	ov.AverageHealth = healthSum / float64(len(projects))
	ov.AverageCompletion = completionSum / float64(len(projects))
	return ov, nil
}
