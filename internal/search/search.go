package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/ctxtrack-mcp/pkg/types"
)

// DefaultLimit caps result counts when the caller does not ask otherwise.
const DefaultLimit = 10

// Searchable field names.
const (
	FieldCurrentGoal       = "current_goal"
	FieldCompletedFeatures = "completed_features"
	FieldCurrentIssues     = "current_issues"
	FieldNextSteps         = "next_steps"
)

// defaultFields is the field set for basic search, in scan order.
var defaultFields = []string{
	FieldCurrentGoal,
	FieldCompletedFeatures,
	FieldCurrentIssues,
	FieldNextSteps,
}

// Result is one field-level match.
type Result struct {
	Project     string  `json:"project"`
	Field       string  `json:"field"`
	MatchedText string  `json:"matched_text"`
	Score       float64 `json:"score"`
}

// Loader supplies the project snapshots to scan. The manager's cached
// ListProjects is the production loader.
type Loader func(ctx context.Context) ([]*types.Project, error)

// Engine scores projects against free-text queries by token overlap.
// Scoring is deliberately simple: the fraction of query tokens present in
// the candidate text. No stemming, no ranking model.
type Engine struct {
	load         Loader
	defaultLimit int
}

// New creates an Engine over the given snapshot loader.
func New(load Loader, defaultLimit int) *Engine {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Engine{load: load, defaultLimit: defaultLimit}
}

// Search runs a basic query across the default fields.
func (e *Engine) Search(ctx context.Context, query string) ([]Result, error) {
	return e.SearchFields(ctx, query, nil, 0)
}

// SearchFields runs an advanced query restricted to the named fields.
// Empty fields means the default set; limit <= 0 means the default limit.
// Unknown field names fail rather than silently matching nothing.
func (e *Engine) SearchFields(ctx context.Context, query string, fields []string, limit int) ([]Result, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}
	if len(fields) == 0 {
		fields = defaultFields
	}
	for _, f := range fields {
		if !validField(f) {
			return nil, fmt.Errorf("unknown search field %q", f)
		}
	}
	if limit <= 0 {
		limit = e.defaultLimit
	}

	projects, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, p := range projects {
		for _, field := range fields {
			for _, text := range fieldTexts(p, field) {
				score := overlapScore(queryTokens, tokenize(text))
				if score <= 0 {
					continue
				}
				results = append(results, Result{
					Project:     p.Name,
					Field:       field,
					MatchedText: text,
					Score:       score,
				})
			}
		}
	}

	// Score descending, then project name ascending so equal scores order
	// deterministically.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Project < results[j].Project
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func validField(field string) bool {
	switch field {
	case FieldCurrentGoal, FieldCompletedFeatures, FieldCurrentIssues, FieldNextSteps:
		return true
	}
	return false
}

// fieldTexts extracts the candidate strings a field contributes.
func fieldTexts(p *types.Project, field string) []string {
	switch field {
	case FieldCurrentGoal:
		if p.CurrentGoal == "" {
			return nil
		}
		return []string{p.CurrentGoal}
	case FieldCompletedFeatures:
		return p.CompletedFeatures
	case FieldCurrentIssues:
		open := p.OpenIssues()
		texts := make([]string, 0, len(open))
		for _, iss := range open {
			texts = append(texts, iss.Problem)
		}
		return texts
	case FieldNextSteps:
		return p.NextSteps
	}
	return nil
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// overlapScore is |query ∩ candidate| / |query|, deduplicated on the
// query side so repeated query words do not inflate the score.
func overlapScore(queryTokens, candidateTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	candidate := make(map[string]struct{}, len(candidateTokens))
	for _, tok := range candidateTokens {
		candidate[tok] = struct{}{}
	}

	seen := make(map[string]struct{}, len(queryTokens))
	unique := 0
	matched := 0
	for _, tok := range queryTokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		unique++
		if _, ok := candidate[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(unique)
}
