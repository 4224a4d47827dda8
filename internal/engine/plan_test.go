package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-dev/gantry/internal/failover"
	"github.com/gantry-dev/gantry/internal/metrics"
	"github.com/gantry-dev/gantry/internal/model"
)

func TestParsePlanFull(t *testing.T) {
	plan, milestones, err := parsePlan(planText)
	require.NoError(t, err)

	assert.Equal(t, "add a health endpoint", plan.Title)
	assert.InDelta(t, 0.9, plan.Confidence, 0.001)
	assert.Contains(t, plan.Summary, "health handler")

	require.Len(t, milestones, 2)
	assert.Equal(t, "add handler", milestones[0].Name)
	assert.Equal(t, "implement the handler", milestones[0].Description)
	assert.Equal(t, []string{"internal/health/health.go"}, milestones[0].Targets.Create)
	assert.Equal(t, "register route", milestones[1].Name)
	assert.Equal(t, []string{"internal/server/server.go"}, milestones[1].Targets.Modify)
}

func TestParsePlanMissingTitle(t *testing.T) {
	_, _, err := parsePlan("## Milestone: only a milestone\n- description: x\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

func TestParsePlanMissingMilestones(t *testing.T) {
	_, _, err := parsePlan("# Plan: empty\n\nconfidence: 0.9\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Milestone")
}

func TestParsePlanUnnamedMilestone(t *testing.T) {
	_, _, err := parsePlan("# Plan: x\n\n## Milestone:\n- description: y\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}

func TestParsePlanMissingConfidenceDefaultsToFull(t *testing.T) {
	text := "# Plan: x\n\nsummary line\n\n## Milestone: only\n- description: y\n- create: [a.go]\n"
	plan, _, err := parsePlan(text)
	require.NoError(t, err)
	assert.Equal(t, 1.0, plan.Confidence)
}

func TestParsePlanIgnoresMalformedConfidence(t *testing.T) {
	text := "# Plan: x\n\nconfidence: very high\n\n## Milestone: only\n- description: y\n"
	plan, _, err := parsePlan(text)
	require.NoError(t, err)
	assert.Equal(t, 1.0, plan.Confidence)
}

func TestParsePlanInsideFence(t *testing.T) {
	fenced := "```markdown\n" + planText + "\n```"
	plan, milestones, err := parsePlan(fenced)
	require.NoError(t, err)
	assert.Equal(t, "add a health endpoint", plan.Title)
	assert.Len(t, milestones, 2)
}

func TestParsePlanDeleteTargetsAndQuoting(t *testing.T) {
	text := strings.Join([]string{
		"# Plan: prune the shim",
		"",
		"confidence: 0.75",
		"",
		"## Milestone: remove it",
		"- description: drop the compatibility shim",
		"- modify: [`cmd/main.go`, \"internal/app/app.go\"]",
		"- delete: [internal/shim/shim.go]",
	}, "\n")
	_, milestones, err := parsePlan(text)
	require.NoError(t, err)
	require.Len(t, milestones, 1)
	assert.Equal(t, []string{"cmd/main.go", "internal/app/app.go"}, milestones[0].Targets.Modify)
	assert.Equal(t, []string{"internal/shim/shim.go"}, milestones[0].Targets.Delete)
}

type downInvoker struct{}

func (downInvoker) Invoke(ctx context.Context, modelID, prompt string, timeout time.Duration) (*model.Output, error) {
	return nil, &model.InvokeError{Kind: model.KindProcessError, ModelID: modelID, Err: errors.New("model down")}
}

// The degraded planner template must stay parseable by this package's
// plan parser; a drift between the two bricks every degraded session.
func TestParsePlanAcceptsDegradedTemplate(t *testing.T) {
	ctrl := failover.New(downInvoker{}, failover.Config{
		Candidates:  map[failover.Role][]string{failover.RolePlanner: {"opus"}},
		Degradation: true,
	}, zerolog.Nop(), nil, metrics.New())

	res, err := ctrl.Execute(context.Background(), failover.RolePlanner, "anything", failover.Options{})
	require.NoError(t, err)
	require.True(t, res.Degraded)

	plan, milestones, err := parsePlan(res.Output)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, plan.Confidence, 0.001)
	assert.Len(t, milestones, 2)
	for _, ms := range milestones {
		assert.NotEmpty(t, ms.Name)
		assert.NotEmpty(t, ms.Description)
	}
}

func TestParseReviewVerdicts(t *testing.T) {
	v, err := parseReview(`{"approved": true, "confidence": 0.85, "summary": "fine"}`)
	require.NoError(t, err)
	assert.True(t, v.Approved)
	assert.InDelta(t, 0.85, v.Confidence, 0.001)
	assert.Equal(t, "fine", v.Summary)

	v, err = parseReview("```json\n{\"approved\": false, \"confidence\": 0.4, \"summary\": \"broken\"}\n```")
	require.NoError(t, err)
	assert.False(t, v.Approved)

	_, err = parseReview("LGTM!")
	require.Error(t, err)
}
