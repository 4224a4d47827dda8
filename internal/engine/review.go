// review.go implements the reviewing phase: the whole session diff is
// judged once by the reviewer role.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gantry-dev/gantry/internal/failover"
	"github.com/gantry-dev/gantry/internal/fault"
	"github.com/gantry-dev/gantry/internal/session"
)

// reviewVerdict is the JSON document the reviewer role must return.
type reviewVerdict struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// diffLimit bounds how much of the session diff goes into the review
// prompt. Past this point a model stops reading anyway.
const diffLimit = 64 * 1024

func (m *Machine) handleReviewing(ctx context.Context, s *session.Session) (session.Phase, error) {
	diff, err := m.deps.SC.Diff(s.InitialRevision)
	if err != nil {
		return "", err
	}

	planTitle := ""
	if s.Plan != nil {
		planTitle = s.Plan.Title
	}
	prompt, err := buildReviewPrompt(reviewData{
		Idea:      m.cfg.Idea,
		PlanTitle: planTitle,
		Diff:      truncate(diff, diffLimit),
	})
	if err != nil {
		return "", err
	}
	res, err := m.deps.Exec.Execute(ctx, failover.RoleReviewer, prompt, failover.Options{Timeout: m.cfg.InvokeTimeout})
	if err != nil {
		return "", err
	}

	verdict, err := parseReview(res.Output)
	if err != nil {
		return "", fault.New(fault.Transient, "parsing review from %s: %v", res.ModelUsed, err)
	}

	s.Review = verdict.Summary
	s.DegradedMode = s.DegradedMode || res.Degraded
	m.deps.Logger.Info().
		Str("session", s.ID).
		Bool("approved", verdict.Approved).
		Float64("confidence", verdict.Confidence).
		Msg("review returned")

	if !verdict.Approved {
		s.BlockReason = fmt.Sprintf("reviewer rejected the changes: %s", verdict.Summary)
		return session.PhaseBlocked, nil
	}
	if !res.Degraded && verdict.Confidence < m.cfg.ConfidenceThreshold {
		s.BlockReason = fmt.Sprintf("review confidence %.2f is below the %.2f threshold", verdict.Confidence, m.cfg.ConfidenceThreshold)
		return session.PhaseBlocked, nil
	}
	return session.PhaseTesting, nil
}

// parseReview decodes the reviewer's JSON verdict, tolerating a
// markdown fence around it.
func parseReview(text string) (reviewVerdict, error) {
	var verdict reviewVerdict
	if err := json.Unmarshal([]byte(stripFence(text)), &verdict); err != nil {
		return reviewVerdict{}, fmt.Errorf("not a review verdict: %w", err)
	}
	return verdict, nil
}

// stripFence removes a wrapping markdown code fence, if any.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	if _, rest, ok := strings.Cut(trimmed, "\n"); ok {
		trimmed = rest
	}
	if i := strings.LastIndex(trimmed, "```"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimSpace(trimmed)
}

// truncate cuts s at limit bytes, marking the cut.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[truncated]"
}
