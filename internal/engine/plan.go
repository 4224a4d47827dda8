// plan.go implements the planning phase and the parser for the
// markdown plan format the planner role is prompted to produce.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gantry-dev/gantry/internal/failover"
	"github.com/gantry-dev/gantry/internal/fault"
	"github.com/gantry-dev/gantry/internal/session"
)

// handlePlanning turns the analysis into an ordered milestone list. The
// plan is produced once: a session that already carries one skips
// straight to implementing. A plan whose stated confidence falls below
// the configured threshold blocks the session instead of proceeding on
// shaky ground; degraded template plans are exempt, since they exist
// precisely to keep the pipeline moving when no model is available.
func (m *Machine) handlePlanning(ctx context.Context, s *session.Session) (session.Phase, error) {
	if s.Plan != nil {
		return session.PhaseImplementing, nil
	}

	prompt, err := buildPlanPrompt(planData{
		Idea:     m.cfg.Idea,
		Language: m.cfg.Language,
		Analysis: s.Analysis,
	})
	if err != nil {
		return "", err
	}
	res, err := m.deps.Exec.Execute(ctx, failover.RolePlanner, prompt, failover.Options{Timeout: m.cfg.InvokeTimeout})
	if err != nil {
		return "", err
	}

	plan, milestones, err := parsePlan(res.Output)
	if err != nil {
		return "", fault.New(fault.Transient, "parsing plan from %s: %v", res.ModelUsed, err)
	}

	if !res.Degraded && plan.Confidence < m.cfg.ConfidenceThreshold {
		s.BlockReason = fmt.Sprintf("plan confidence %.2f is below the %.2f threshold", plan.Confidence, m.cfg.ConfidenceThreshold)
		return session.PhaseBlocked, nil
	}

	s.Plan = &plan
	s.Milestones = append(s.Milestones, milestones...)
	s.DegradedMode = s.DegradedMode || res.Degraded
	m.deps.Logger.Info().
		Str("session", s.ID).
		Str("plan", plan.Title).
		Int("milestones", len(milestones)).
		Float64("confidence", plan.Confidence).
		Msg("plan accepted")
	return session.PhaseImplementing, nil
}

// parsePlan decodes the plan document:
//
//	# Plan: <title>
//
//	<free-form summary>
//
//	confidence: 0.85
//
//	## Milestone: <name>
//	- description: <one line>
//	- create: [path, path]
//	- modify: [path]
//	- delete: [path]
//
// A plan without a title or without milestones does not parse. A plan
// that states no confidence is taken at full confidence rather than
// rejected, since refusing to parse it would burn a retry on a usable
// plan.
func parsePlan(text string) (session.Plan, []session.Milestone, error) {
	plan := session.Plan{Confidence: 1.0}
	var milestones []session.Milestone
	var current *session.Milestone
	var summary []string

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, "# Plan:"):
			plan.Title = strings.TrimSpace(strings.TrimPrefix(line, "# Plan:"))

		case strings.HasPrefix(line, "## Milestone:"):
			name := strings.TrimSpace(strings.TrimPrefix(line, "## Milestone:"))
			if name == "" {
				return session.Plan{}, nil, fmt.Errorf("milestone %d has no name", len(milestones)+1)
			}
			milestones = append(milestones, session.Milestone{Name: name})
			current = &milestones[len(milestones)-1]

		case current == nil:
			if line != "" && !strings.HasPrefix(line, "#") && !strings.HasPrefix(strings.ToLower(line), "confidence:") {
				summary = append(summary, line)
			}
			if c, ok := parseConfidenceLine(line); ok {
				plan.Confidence = c
			}

		case strings.HasPrefix(line, "- description:"):
			current.Description = strings.TrimSpace(strings.TrimPrefix(line, "- description:"))

		case strings.HasPrefix(line, "- create:"):
			current.Targets.Create = parsePathList(strings.TrimPrefix(line, "- create:"))

		case strings.HasPrefix(line, "- modify:"):
			current.Targets.Modify = parsePathList(strings.TrimPrefix(line, "- modify:"))

		case strings.HasPrefix(line, "- delete:"):
			current.Targets.Delete = parsePathList(strings.TrimPrefix(line, "- delete:"))
		}
	}

	if plan.Title == "" {
		return session.Plan{}, nil, fmt.Errorf("no \"# Plan:\" title line")
	}
	if len(milestones) == 0 {
		return session.Plan{}, nil, fmt.Errorf("no \"## Milestone:\" sections")
	}
	plan.Summary = strings.Join(summary, " ")
	return plan, milestones, nil
}

// parseConfidenceLine reads a "confidence: 0.85" line.
func parseConfidenceLine(line string) (float64, bool) {
	rest, ok := cutPrefixFold(line, "confidence:")
	if !ok {
		return 0, false
	}
	c, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil || c < 0 || c > 1 {
		return 0, false
	}
	return c, true
}

// cutPrefixFold is strings.CutPrefix with ASCII case folding.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

// parsePathList splits "[a, b, c]" or "a, b, c" into paths.
func parsePathList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var paths []string
	for _, part := range strings.Split(s, ",") {
		p := strings.Trim(strings.TrimSpace(part), "`\"'")
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
