// implement.go runs the implementing phase: one milestone per handler
// invocation, so the deadline check between invocations doubles as the
// between-milestones check.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/gantry-dev/gantry/internal/fault"
	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/session"
	"github.com/gantry-dev/gantry/internal/ticket"
)

// handleImplementing executes the next undone milestone. The head
// revision is captured before the fan-out; a rejected milestone resets
// the tree to it and surfaces a classified error so the retry budget
// governs how often a milestone may be re-attempted. Worker failures
// under resource pressure keep their class, which shrinks the worker
// count before the next attempt.
func (m *Machine) handleImplementing(ctx context.Context, s *session.Session) (session.Phase, error) {
	next := s.NextMilestone()
	if next == nil {
		return session.PhaseReviewing, nil
	}

	base, err := m.deps.SC.HeadRevision()
	if err != nil {
		return "", err
	}
	s.BaseRevision = base

	out, err := m.deps.Runner.Run(ctx, next, s.WorkerCount)
	if err != nil {
		return "", err
	}

	if out.ShouldRollback {
		if rerr := m.deps.SC.ResetHard(base); rerr != nil {
			return "", fmt.Errorf("rolling back milestone %q to %s: %w", next.Name, base, rerr)
		}
		m.journalAppend(journal.Event{
			Event:     journal.EventRollback,
			Session:   s.ID,
			Milestone: next.Name,
			Revision:  base,
		})
		class := fault.Transient
		if out.ResourcePressure {
			class = fault.Resource
		}
		return "", fault.New(class, "milestone %q rejected: %d workers failed, tree reset to %s",
			next.Name, out.FailedWorkerCount, base)
	}

	s.AddModifiedFiles(out.AppliedFiles...)
	s.DegradedMode = s.DegradedMode || out.Degraded
	s.BaseRevision = ""

	if out.PartialSuccess {
		m.filePartialTicket(ctx, s, next, out.FailedTargets)
	}

	if s.NextMilestone() == nil {
		return session.PhaseReviewing, nil
	}
	return session.PhaseImplementing, nil
}

// filePartialTicket records the failed subset of a partially-accepted
// milestone so a human can finish it. Best-effort, like all tickets.
func (m *Machine) filePartialTicket(ctx context.Context, s *session.Session, ms *session.Milestone, failedTargets []string) {
	if m.deps.Tracker == nil {
		return
	}
	body := fmt.Sprintf(
		"Milestone %q in session `%s` was accepted partially: the commit %s carries the successful workers' files, but these targets still need work:\n\n",
		ms.Name, s.ID, ms.CommitRevision,
	)
	for _, t := range failedTargets {
		body += "- `" + t + "`\n"
	}
	if len(failedTargets) == 0 {
		body += "(the failed workers had no concrete file targets; see the session journal)\n"
	}
	issue := ticket.Issue{
		Title:  fmt.Sprintf("partial milestone: %s", ms.Name),
		Body:   body,
		Labels: m.cfg.TicketLabels,
	}
	id, err := m.deps.Tracker.CreateIssue(ctx, issue)
	if err != nil {
		m.deps.Logger.Error().
			Err(err).
			Str("session", s.ID).
			Str("milestone", ms.Name).
			Strs("targets", failedTargets).
			Msg("ticket creation failed; the partial milestone has no tracking issue")
		return
	}
	m.deps.Logger.Info().Str("milestone", ms.Name).Str("issue", id).Msg("partial milestone ticket filed")
	m.journalAppend(journal.Event{
		Event:     journal.EventTicketCreated,
		Session:   s.ID,
		Milestone: ms.Name,
		Data:      map[string]interface{}{"issue": id, "targets": strings.Join(failedTargets, ", ")},
	})
}
