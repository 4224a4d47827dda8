// Package engine drives a session through its phase pipeline:
// initializing, analyzing, planning, implementing (once per milestone),
// reviewing, testing, completed.
//
// The machine is a plain interpreter over the phase enum: one handler
// per phase, each returning the next phase or an error. Errors never
// abort the process; they are classified and routed. Transient and
// resource faults retry the same phase with exponential backoff until
// the retry budget runs out, then park the session as blocked.
// Structural faults block immediately. Fatal faults fail the session.
// A checkpoint is written after every handler invocation, so a crash at
// any point resumes from the last fully-completed phase.
//
// The session deadline is cooperative: it is checked between phases and
// between milestones, never mid-handler. A breach parks the session as
// interrupted with the current phase recorded for resume, as does a
// context cancellation from an interrupt signal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/gantry-dev/gantry/internal/failover"
	"github.com/gantry-dev/gantry/internal/fault"
	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/metrics"
	"github.com/gantry-dev/gantry/internal/milestone"
	"github.com/gantry-dev/gantry/internal/session"
	"github.com/gantry-dev/gantry/internal/ticket"
)

// Executor runs role invocations with failover and exposes breaker
// state for checkpointing. *failover.Controller satisfies it.
type Executor interface {
	Execute(ctx context.Context, role failover.Role, prompt string, opts failover.Options) (*failover.Result, error)
	Snapshots() []session.BreakerSnapshot
}

// SourceControl is the repository surface the machine needs.
type SourceControl interface {
	Commit(message string) (string, error)
	HeadRevision() (string, error)
	Diff(fromRevision string) (string, error)
	ResetHard(revision string) error
}

// MilestoneRunner fans a milestone out to coder workers and aggregates
// the results. *milestone.Runner satisfies it.
type MilestoneRunner interface {
	Run(ctx context.Context, m *session.Milestone, workerCount int) (*milestone.Outcome, error)
	Repair(ctx context.Context, prompt string) ([]string, bool, error)
}

// Observer receives the session after every persisted state change.
type Observer interface {
	Update(s *session.Session)
}

// Handler advances one phase and names the next, or fails.
type Handler func(ctx context.Context, s *session.Session) (session.Phase, error)

// Deps are the machine's injected collaborators. Store, Journal,
// Tracker, Observer, and Cleanup may be nil; Exec, SC, Runner, and
// Metrics must not be.
type Deps struct {
	Exec     Executor
	SC       SourceControl
	Runner   MilestoneRunner
	Store    *session.Store
	Journal  *journal.Journal
	Metrics  *metrics.Metrics
	Tracker  ticket.Tracker
	Observer Observer
	Cleanup  func() error
	Logger   zerolog.Logger
}

// Config carries the per-run settings the handlers need.
type Config struct {
	// Idea is the task description driving the session.
	Idea string
	// Language is the detected project language, surfaced in prompts.
	Language string
	// Root is the project directory; pipeline steps run there.
	Root string
	// SessionDir holds the checkpoint for this session.
	SessionDir string
	// ConfidenceThreshold gates the plan; clamped by config validation.
	ConfidenceThreshold float64
	// InvokeTimeout bounds each model call.
	InvokeTimeout time.Duration
	// Pipeline is the ordered list of test commands.
	Pipeline []string
	// TicketLabels go on every filed issue.
	TicketLabels []string
}

// Machine interprets the phase enum for one session at a time.
type Machine struct {
	deps     Deps
	cfg      Config
	handlers map[session.Phase]Handler
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	runStep  func(ctx context.Context, dir, step string) (string, error)
}

// New wires a machine. The handler table is fixed; there is exactly one
// handler per working phase.
func New(deps Deps, cfg Config) *Machine {
	m := &Machine{
		deps:    deps,
		cfg:     cfg,
		now:     time.Now,
		sleep:   failover.Sleep,
		runStep: runShellStep,
	}
	m.deps.Logger = deps.Logger.With().Str("component", "engine").Logger()
	m.handlers = map[session.Phase]Handler{
		session.PhaseInitializing: m.handleInitializing,
		session.PhaseAnalyzing:    m.handleAnalyzing,
		session.PhasePlanning:     m.handlePlanning,
		session.PhaseImplementing: m.handleImplementing,
		session.PhaseReviewing:    m.handleReviewing,
		session.PhaseTesting:      m.handleTesting,
	}
	return m
}

// Run drives the session until it reaches a terminal phase or parks as
// interrupted. Completed, blocked, and interrupted sessions return nil;
// a failed session returns an error naming the cause.
func (m *Machine) Run(ctx context.Context, s *session.Session) error {
	m.deps.Logger.Info().
		Str("session", s.ID).
		Str("phase", string(s.Phase)).
		Time("deadline", s.Deadline).
		Msg("session started")
	m.journalAppend(journal.Event{Event: journal.EventSessionStarted, Session: s.ID, Phase: string(s.Phase)})

	if s.Phase == session.PhaseInterrupted {
		return fmt.Errorf("session %s is parked as interrupted; resume it instead of re-running", s.ID)
	}

	for !s.Phase.Terminal() {
		if ctx.Err() != nil {
			m.interrupt(s, "interrupt signal received")
			m.persist(s)
			break
		}
		if !m.now().Before(s.Deadline) {
			m.interrupt(s, "session budget exhausted")
			m.persist(s)
			break
		}

		phase := s.Phase
		m.journalAppend(journal.Event{Event: journal.EventPhaseStarted, Session: s.ID, Phase: string(phase)})

		started := m.now()
		next, err := m.handlers[phase](ctx, s)
		seconds := m.now().Sub(started).Seconds()

		var wait time.Duration
		if err != nil {
			m.deps.Metrics.RecordPhase(string(phase), "failure", seconds)
			wait = m.route(s, phase, err)
		} else {
			m.deps.Metrics.RecordPhase(string(phase), "success", seconds)
			s.RetryCount = 0
			if next == session.PhaseBlocked {
				m.block(s, phase, s.BlockReason)
			} else {
				s.Phase = next
				s.UpdateProgress()
				m.deps.Logger.Info().
					Str("session", s.ID).
					Str("phase", string(phase)).
					Str("next", string(next)).
					Msg("phase completed")
				m.journalAppend(journal.Event{
					Event:      journal.EventPhaseCompleted,
					Session:    s.ID,
					Phase:      string(phase),
					DurationMs: int64(seconds * 1000),
				})
			}
		}

		m.persist(s)

		if s.Phase == session.PhaseInterrupted {
			break
		}
		if wait > 0 && !s.Phase.Terminal() {
			if serr := m.sleep(ctx, wait); serr != nil {
				m.interrupt(s, "interrupt signal received")
				m.persist(s)
				break
			}
		}
	}

	return m.finish(ctx, s)
}

// route classifies a handler failure and mutates the session
// accordingly, returning how long to back off before the next attempt.
func (m *Machine) route(s *session.Session, phase session.Phase, err error) time.Duration {
	if errors.Is(err, context.Canceled) {
		m.interrupt(s, "interrupt signal received")
		return 0
	}

	class := fault.Classify(err)
	s.RecordError(phase, string(class), err.Error())
	m.deps.Logger.Warn().
		Str("session", s.ID).
		Str("phase", string(phase)).
		Str("class", string(class)).
		Err(err).
		Msg("phase failed")

	switch class {
	case fault.Fatal:
		s.Phase = session.PhaseFailed
		m.journalAppend(journal.Event{
			Event:   journal.EventSessionFailed,
			Session: s.ID,
			Phase:   string(phase),
			Error:   err.Error(),
		})
		return 0

	case fault.Structural:
		m.block(s, phase, err.Error())
		return 0

	case fault.Resource:
		if s.WorkerCount > 1 {
			s.WorkerCount--
			m.deps.Logger.Warn().
				Str("session", s.ID).
				Int("workers", s.WorkerCount).
				Msg("resource pressure, reducing worker concurrency")
		}
		if m.deps.Cleanup != nil {
			if cerr := m.deps.Cleanup(); cerr != nil {
				m.deps.Logger.Warn().Err(cerr).Msg("resource cleanup failed")
			}
		}
	}

	if s.RetryCount >= s.MaxRetries {
		m.block(s, phase, fmt.Sprintf("phase %s exhausted its %d retries: %v", phase, s.MaxRetries, err))
		return 0
	}
	s.RetryCount++
	m.journalAppend(journal.Event{
		Event:   journal.EventPhaseRetry,
		Session: s.ID,
		Phase:   string(phase),
		Attempt: s.RetryCount,
		Error:   err.Error(),
	})
	return failover.Backoff(s.RetryCount)
}

// block parks the session for human input, recording where to resume.
func (m *Machine) block(s *session.Session, phase session.Phase, reason string) {
	s.Phase = session.PhaseBlocked
	s.ResumePhase = phase
	if reason != "" {
		s.BlockReason = reason
	}
	m.deps.Logger.Warn().
		Str("session", s.ID).
		Str("phase", string(phase)).
		Str("reason", s.BlockReason).
		Msg("session blocked")
	m.journalAppend(journal.Event{
		Event:   journal.EventSessionBlocked,
		Session: s.ID,
		Phase:   string(phase),
		Reason:  s.BlockReason,
	})
}

// interrupt snapshots the current phase so a resume can re-enter it.
func (m *Machine) interrupt(s *session.Session, reason string) {
	s.ResumePhase = s.Phase
	s.Phase = session.PhaseInterrupted
	m.deps.Logger.Warn().
		Str("session", s.ID).
		Str("resume", string(s.ResumePhase)).
		Str("reason", reason).
		Msg("session interrupted")
	m.journalAppend(journal.Event{
		Event:   journal.EventSessionInterrupted,
		Session: s.ID,
		Phase:   string(s.ResumePhase),
		Reason:  reason,
	})
}

// persist checkpoints the session unconditionally. The checkpoint is
// the recovery record; failures to write it are loud but not fatal,
// since losing a checkpoint must not kill a healthy run.
func (m *Machine) persist(s *session.Session) {
	s.Breakers = m.deps.Exec.Snapshots()
	if err := session.SaveCheckpoint(m.cfg.SessionDir, s); err != nil {
		m.deps.Logger.Error().Err(err).Str("session", s.ID).Msg("checkpoint write failed")
	}
	if m.deps.Store != nil {
		if err := m.deps.Store.Update(s); err != nil {
			m.deps.Logger.Warn().Err(err).Msg("session index update failed")
		}
	}
	if m.deps.Observer != nil {
		m.deps.Observer.Update(s)
	}
	m.deps.Metrics.SessionProgress.Set(float64(s.Progress))
}

// finish files follow-up tickets for parked terminal states and maps
// the final phase to Run's return value.
func (m *Machine) finish(ctx context.Context, s *session.Session) error {
	switch s.Phase {
	case session.PhaseCompleted:
		m.journalAppend(journal.Event{Event: journal.EventSessionCompleted, Session: s.ID})
		m.deps.Logger.Info().Str("session", s.ID).Msg("session completed")
		return nil

	case session.PhaseBlocked:
		m.fileSessionTicket(ctx, s)
		return nil

	case session.PhaseFailed:
		m.fileSessionTicket(ctx, s)
		last := "unknown cause"
		if n := len(s.Errors); n > 0 {
			last = s.Errors[n-1].Message
		}
		return fmt.Errorf("session %s failed: %s", s.ID, last)

	default: // interrupted
		return nil
	}
}

// fileSessionTicket records a blocked or failed session with the
// tracker. Ticket creation is best-effort: a tracker outage is logged
// loudly and swallowed, because failing the failure handler helps
// nobody.
func (m *Machine) fileSessionTicket(ctx context.Context, s *session.Session) {
	if m.deps.Tracker == nil {
		return
	}
	issue := ticket.Issue{
		Title:  fmt.Sprintf("gantry session %s: %s", shortID(s.ID), s.Phase),
		Body:   sessionTicketBody(s),
		Labels: m.cfg.TicketLabels,
	}
	id, err := m.deps.Tracker.CreateIssue(ctx, issue)
	if err != nil {
		m.deps.Logger.Error().
			Err(err).
			Str("session", s.ID).
			Msg("ticket creation failed; the parked session has no tracking issue")
		return
	}
	m.deps.Logger.Info().Str("session", s.ID).Str("issue", id).Msg("follow-up ticket filed")
	m.journalAppend(journal.Event{
		Event:   journal.EventTicketCreated,
		Session: s.ID,
		Data:    map[string]interface{}{"issue": id},
	})
}

func sessionTicketBody(s *session.Session) string {
	body := fmt.Sprintf("Session `%s` for idea `%s` is %s.\n\n", s.ID, s.IdeaID, s.Phase)
	if s.BlockReason != "" {
		body += fmt.Sprintf("Reason: %s\n\n", s.BlockReason)
	}
	if s.ResumePhase != "" {
		body += fmt.Sprintf("It will re-enter the %s phase on resume.\n\n", s.ResumePhase)
	}
	if n := len(s.Errors); n > 0 {
		body += "Recent errors:\n"
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, rec := range s.Errors[start:] {
			body += fmt.Sprintf("- [%s/%s] %s\n", rec.Phase, rec.Class, rec.Message)
		}
		body += "\n"
	}
	body += fmt.Sprintf("Resume with `gantry resume %s` once addressed.\n", s.ID)
	return body
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m *Machine) journalAppend(ev journal.Event) {
	if m.deps.Journal == nil {
		return
	}
	if err := m.deps.Journal.Append(ev); err != nil {
		m.deps.Logger.Warn().Err(err).Msg("journal append failed")
	}
}

// runShellStep executes one pipeline command through the shell in dir.
func runShellStep(ctx context.Context, dir, step string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", step)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}
