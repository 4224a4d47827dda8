// verify.go implements the testing phase: the configured pipeline runs
// step by step, with a coder repair attempt per failure while the retry
// budget lasts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gantry-dev/gantry/internal/fault"
	"github.com/gantry-dev/gantry/internal/git"
	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/session"
)

// repairOutputLimit bounds how much failing output goes into the
// repair prompt.
const repairOutputLimit = 16 * 1024

// handleTesting runs every pipeline step in order. The first failure
// surfaces as a transient error after an optional repair attempt, so
// the machine's retry loop re-runs the whole pipeline against the
// patched tree. A project with no pipeline completes immediately.
func (m *Machine) handleTesting(ctx context.Context, s *session.Session) (session.Phase, error) {
	if len(m.cfg.Pipeline) == 0 {
		m.deps.Logger.Info().Str("session", s.ID).Msg("no test pipeline configured, skipping verification")
		return session.PhaseCompleted, nil
	}

	for _, step := range m.cfg.Pipeline {
		out, err := m.runStep(ctx, m.cfg.Root, step)
		if err == nil {
			m.deps.Logger.Info().Str("session", s.ID).Str("step", step).Msg("test step passed")
			m.journalAppend(journal.Event{Event: journal.EventTestStep, Session: s.ID, Step: step})
			continue
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		m.deps.Logger.Warn().Str("session", s.ID).Str("step", step).Err(err).Msg("test step failed")
		m.journalAppend(journal.Event{
			Event:   journal.EventTestStep,
			Session: s.ID,
			Step:    step,
			Error:   err.Error(),
		})

		// Repair before surfacing the failure, so the retry that
		// follows re-runs the pipeline against the patched tree. Once
		// the budget is spent the failure routes straight to blocked.
		if s.RetryCount < s.MaxRetries {
			m.attemptRepair(ctx, s, step, out)
		}
		return "", fault.New(fault.Transient, "test step %q failed: %s", step, tail(out, 300))
	}
	return session.PhaseCompleted, nil
}

// attemptRepair asks the coder to fix the failing step and commits
// whatever it applied. Repair failures are logged and swallowed; the
// step failure itself is what drives the retry.
func (m *Machine) attemptRepair(ctx context.Context, s *session.Session, step, output string) {
	prompt, err := buildRepairPrompt(repairData{
		Idea:   m.cfg.Idea,
		Step:   step,
		Output: truncate(output, repairOutputLimit),
	})
	if err != nil {
		m.deps.Logger.Warn().Err(err).Msg("building repair prompt failed")
		return
	}
	applied, degraded, err := m.deps.Runner.Repair(ctx, prompt)
	if err != nil {
		m.deps.Logger.Warn().Str("step", step).Err(err).Msg("repair attempt failed")
		return
	}
	s.AddModifiedFiles(applied...)
	s.DegradedMode = s.DegradedMode || degraded

	if _, err := m.deps.SC.Commit(fmt.Sprintf("fix(gantry): address %q failure", step)); err != nil {
		if !errors.Is(err, git.ErrNoChanges) {
			m.deps.Logger.Warn().Err(err).Msg("committing repair failed")
		}
	}
	m.deps.Logger.Info().Str("step", step).Int("applied", len(applied)).Msg("repair applied")
}

// tail keeps the end of a command's output, where test runners put
// their verdicts.
func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
