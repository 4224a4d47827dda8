// phases.go holds the handlers for the phases that need no file on
// their own: initializing and analyzing.
package engine

import (
	"context"

	"github.com/gantry-dev/gantry/internal/failover"
	"github.com/gantry-dev/gantry/internal/session"
)

// handleInitializing captures the revision the session starts from.
// The reviewer later diffs against it, and a full-session rollback
// would reset to it.
func (m *Machine) handleInitializing(ctx context.Context, s *session.Session) (session.Phase, error) {
	rev, err := m.deps.SC.HeadRevision()
	if err != nil {
		return "", err
	}
	s.InitialRevision = rev
	m.deps.Logger.Info().
		Str("session", s.ID).
		Str("idea", s.IdeaID).
		Str("revision", rev).
		Msg("session initialized")
	return session.PhaseAnalyzing, nil
}

// handleAnalyzing asks the analyzer role to size up the idea against
// the project. The raw analysis text feeds the planner's prompt.
func (m *Machine) handleAnalyzing(ctx context.Context, s *session.Session) (session.Phase, error) {
	prompt, err := buildAnalyzePrompt(analyzeData{
		Idea:     m.cfg.Idea,
		Language: m.cfg.Language,
	})
	if err != nil {
		return "", err
	}
	res, err := m.deps.Exec.Execute(ctx, failover.RoleAnalyzer, prompt, failover.Options{Timeout: m.cfg.InvokeTimeout})
	if err != nil {
		return "", err
	}
	s.Analysis = res.Output
	s.DegradedMode = s.DegradedMode || res.Degraded
	return session.PhasePlanning, nil
}
