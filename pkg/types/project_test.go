package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid", "demo", nil},
		{"valid with spaces", "my project", nil},
		{"empty", "", ErrEmptyName},
		{"whitespace only", "   ", ErrEmptyName},
		{"too long", string(make([]byte, 256)), ErrNameTooLong},
		{"forward slash", "a/b", ErrInvalidName},
		{"backslash", "a\\b", ErrInvalidName},
		{"dot", ".", ErrInvalidName},
		{"dotdot", "..", ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewProject(t *testing.T) {
	now := time.Now()
	p := NewProject("demo", now)

	assert.Equal(t, "demo", p.Name)
	assert.NotNil(t, p.CompletedFeatures)
	assert.NotNil(t, p.CurrentIssues)
	assert.NotNil(t, p.NextSteps)
	assert.NotNil(t, p.CurrentState)
	assert.NotNil(t, p.KeyFiles)
	assert.NotNil(t, p.ContextAnchors)
	assert.NotNil(t, p.ConversationHistory)
	assert.Equal(t, now, p.CreatedAt)
	assert.Equal(t, now, p.UpdatedAt)
}

func TestOpenIssues(t *testing.T) {
	p := NewProject("demo", time.Now())
	p.CurrentIssues = []Issue{
		{Problem: "a", Resolved: false},
		{Problem: "b", Resolved: true},
		{Problem: "c", Resolved: false},
	}

	open := p.OpenIssues()
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].Problem)
	assert.Equal(t, "c", open[1].Problem)
}

func TestClone_DeepCopy(t *testing.T) {
	p := NewProject("demo", time.Now())
	p.CompletedFeatures = []string{"auth"}
	p.CurrentState["phase"] = "beta"

	cp := p.Clone()
	cp.CompletedFeatures[0] = "changed"
	cp.CurrentState["phase"] = "released"
	cp.CurrentIssues = append(cp.CurrentIssues, Issue{Problem: "x"})

	assert.Equal(t, "auth", p.CompletedFeatures[0])
	assert.Equal(t, "beta", p.CurrentState["phase"])
	assert.Empty(t, p.CurrentIssues)
}

func TestUpdateFieldsEmpty(t *testing.T) {
	var u UpdateFields
	assert.True(t, u.Empty())

	goal := "ship it"
	u.CurrentGoal = &goal
	assert.False(t, u.Empty())
}

func TestKeyFileValidate(t *testing.T) {
	kf := KeyFile{Path: "cmd/main.go", Description: "entry point"}
	assert.NoError(t, kf.Validate())

	kf = KeyFile{Path: "  "}
	assert.ErrorIs(t, kf.Validate(), ErrEmptyFilePath)
}

func TestAnchorValidate(t *testing.T) {
	a := ContextAnchor{Key: "db", Value: "postgres", Priority: PriorityHigh}
	assert.NoError(t, a.Validate())

	a.Priority = 4
	assert.ErrorIs(t, a.Validate(), ErrInvalidPriority)

	a = ContextAnchor{Key: " ", Priority: PriorityLow}
	assert.ErrorIs(t, a.Validate(), ErrEmptyAnchorKey)
}
