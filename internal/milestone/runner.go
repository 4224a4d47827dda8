// Package milestone fans one milestone out to parallel coder workers and
// aggregates their results under a partial-success policy.
//
// Targets are partitioned into disjoint subsets, one per worker, so the
// workers never contend on a file. Every worker runs to completion; the
// success rate then decides whether the milestone is accepted in full,
// accepted partially with a follow-up for the failed subset, or rejected
// so the caller can roll the working tree back. Accepted files are
// scanned for conflict signatures and applied single-threaded, followed
// by one commit tagged with the milestone name.
package milestone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gantry-dev/gantry/internal/failover"
	"github.com/gantry-dev/gantry/internal/fault"
	"github.com/gantry-dev/gantry/internal/git"
	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/metrics"
	"github.com/gantry-dev/gantry/internal/session"
)

// Executor runs one role invocation with failover. *failover.Controller
// satisfies it; tests substitute a script.
type Executor interface {
	Execute(ctx context.Context, role failover.Role, prompt string, opts failover.Options) (*failover.Result, error)
}

// SourceControl is the slice of the repository the runner needs: one
// commit per accepted milestone and the revision it landed as.
type SourceControl interface {
	Commit(message string) (string, error)
	HeadRevision() (string, error)
}

// PromptBuilder renders the coder prompt for one worker's target subset.
type PromptBuilder func(m *session.Milestone, targets session.FileTargets) (string, error)

// File is one file produced by a coder worker.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// coderPayload is the JSON document a coder invocation must return.
type coderPayload struct {
	Files []File `json:"files"`
	Notes string `json:"notes,omitempty"`
}

// WorkerResult is the settled outcome of one worker, success or not.
type WorkerResult struct {
	Worker   int
	Success  bool
	Degraded bool
	Files    []File
	Deletes  []string
	Err      error
}

// Outcome reports what the milestone run did to the working tree.
type Outcome struct {
	// Accepted is true when at least the minimum share of workers
	// succeeded and their files were applied and committed.
	Accepted bool
	// AppliedFiles lists the paths written or removed, sorted.
	AppliedFiles []string
	// FailedWorkerCount is how many workers failed.
	FailedWorkerCount int
	// ShouldRollback tells the caller to reset the working tree to the
	// revision captured before the milestone began.
	ShouldRollback bool
	// PartialSuccess is true when some workers failed but the milestone
	// was accepted anyway.
	PartialSuccess bool
	// FailedTargets is the union of the failed workers' target paths,
	// for the follow-up ticket.
	FailedTargets []string
	// ResourcePressure is true when a failed worker hit a resource-class
	// error, so the caller can shed concurrency before the next attempt.
	ResourcePressure bool
	// CommitRevision is the commit the accepted files landed as.
	CommitRevision string
	// Degraded is true when any accepted worker used a degraded
	// fallback instead of a real model.
	Degraded bool
}

// Config tunes a Runner.
type Config struct {
	// Root is the project directory files are applied under.
	Root string
	// MinSuccessRate is the acceptance floor in (0, 1].
	MinSuccessRate float64
	// InvokeTimeout bounds each worker's coder call.
	InvokeTimeout time.Duration
	// Prompt renders the coder prompt for a worker.
	Prompt PromptBuilder
}

// Runner executes milestones. It is safe for sequential reuse across
// milestones; the fan-out inside one Run call is its only concurrency.
type Runner struct {
	exec    Executor
	sc      SourceControl
	cfg     Config
	logger  zerolog.Logger
	journal *journal.Journal
	mets    *metrics.Metrics
}

// NewRunner wires a runner. The journal may be nil; metrics must not be.
func NewRunner(exec Executor, sc SourceControl, cfg Config, logger zerolog.Logger, jrnl *journal.Journal, mets *metrics.Metrics) *Runner {
	if cfg.MinSuccessRate <= 0 || cfg.MinSuccessRate > 1 {
		cfg.MinSuccessRate = 0.5
	}
	return &Runner{
		exec:    exec,
		sc:      sc,
		cfg:     cfg,
		logger:  logger.With().Str("component", "milestone").Logger(),
		journal: jrnl,
		mets:    mets,
	}
}

// Run partitions the milestone across up to workerCount workers, awaits
// them all, and applies the acceptance policy. On acceptance it mutates
// m with the completion time, commit revision, and partial flag.
func (r *Runner) Run(ctx context.Context, m *session.Milestone, workerCount int) (*Outcome, error) {
	if workerCount < 1 {
		workerCount = 1
	}
	parts := partitionTargets(m.Targets, workerCount)

	r.logger.Info().
		Str("milestone", m.Name).
		Int("workers", len(parts)).
		Int("targets", len(m.Targets.All())).
		Msg("starting milestone fan-out")
	r.journalAppend(journal.Event{
		Event:     journal.EventMilestoneStarted,
		Milestone: m.Name,
		Data:      map[string]interface{}{"workers": len(parts)},
	})

	results := make([]WorkerResult, len(parts))
	var wg sync.WaitGroup
	for i, part := range parts {
		wg.Add(1)
		go func(i int, part session.FileTargets) {
			defer wg.Done()
			r.mets.WorkersActive.Inc()
			defer r.mets.WorkersActive.Dec()
			results[i] = r.runWorker(ctx, m, i+1, part)
		}(i, part)
	}
	wg.Wait()

	// A cancellation mid-fan-out must not reach the apply step: a
	// half-written tree would poison the next checkpoint.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	succeeded := 0
	degraded := false
	pressure := false
	var failedTargets []string
	for i, res := range results {
		if res.Success {
			succeeded++
			degraded = degraded || res.Degraded
		} else {
			failedTargets = append(failedTargets, parts[i].All()...)
			pressure = pressure || fault.Classify(res.Err) == fault.Resource
		}
	}
	failed := len(parts) - succeeded
	rate := float64(succeeded) / float64(len(parts))

	if rate < r.cfg.MinSuccessRate {
		r.logger.Warn().
			Str("milestone", m.Name).
			Int("failed", failed).
			Float64("rate", rate).
			Float64("floor", r.cfg.MinSuccessRate).
			Msg("milestone below success floor, rejecting")
		r.mets.RecordMilestone("rollback")
		return &Outcome{
			FailedWorkerCount: failed,
			ShouldRollback:    true,
			FailedTargets:     failedTargets,
			ResourcePressure:  pressure,
		}, nil
	}
	partial := failed > 0

	if err := scanConflicts(results); err != nil {
		r.logger.Error().Str("milestone", m.Name).Err(err).Msg("conflicting worker outputs")
		r.mets.RecordMilestone("conflict")
		return nil, fault.Wrap(fault.Structural, fmt.Errorf("milestone %q: %w", m.Name, err))
	}

	applied, err := r.apply(results)
	if err != nil {
		return nil, fmt.Errorf("milestone %q: %w", m.Name, err)
	}

	message := fmt.Sprintf("feat(gantry): %s", m.Name)
	if partial {
		message += " (partial)"
	}
	revision, err := r.sc.Commit(message)
	if errors.Is(err, git.ErrNoChanges) {
		// A worker can legitimately produce content identical to the
		// tree, leaving nothing to commit.
		revision, err = r.sc.HeadRevision()
	}
	if err != nil {
		return nil, fmt.Errorf("milestone %q: committing: %w", m.Name, err)
	}

	now := time.Now().UTC()
	m.CompletedAt = &now
	m.CommitRevision = revision
	m.PartialSuccess = partial

	outcome := "accepted"
	if partial {
		outcome = "partial"
	}
	r.mets.RecordMilestone(outcome)
	r.logger.Info().
		Str("milestone", m.Name).
		Str("revision", revision).
		Int("applied", len(applied)).
		Bool("partial", partial).
		Msg("milestone committed")
	r.journalAppend(journal.Event{
		Event:     journal.EventMilestoneCommitted,
		Milestone: m.Name,
		Revision:  revision,
		Applied:   len(applied),
	})

	return &Outcome{
		Accepted:          true,
		AppliedFiles:      applied,
		FailedWorkerCount: failed,
		PartialSuccess:    partial,
		FailedTargets:     failedTargets,
		ResourcePressure:  pressure,
		CommitRevision:    revision,
		Degraded:          degraded,
	}, nil
}

// Repair runs a single coder invocation outside the fan-out and applies
// its files immediately, without committing. The testing phase uses it
// to patch a failing pipeline step; the caller owns the fix commit.
func (r *Runner) Repair(ctx context.Context, prompt string) ([]string, bool, error) {
	res, err := r.exec.Execute(ctx, failover.RoleCoder, prompt, failover.Options{
		Timeout:          r.cfg.InvokeTimeout,
		DegradedFilePath: "MANUAL_REPAIR.md",
	})
	if err != nil {
		return nil, false, err
	}
	files, err := parseCoderOutput(res.Output)
	if err != nil {
		return nil, false, fmt.Errorf("parsing coder output from %s: %w", res.ModelUsed, err)
	}
	result := WorkerResult{Worker: 1, Success: true, Files: files}
	if err := scanConflicts([]WorkerResult{result}); err != nil {
		return nil, false, fault.Wrap(fault.Structural, err)
	}
	applied, err := r.apply([]WorkerResult{result})
	if err != nil {
		return nil, false, err
	}
	r.logger.Info().Int("applied", len(applied)).Bool("degraded", res.Degraded).Msg("repair applied")
	return applied, res.Degraded, nil
}

// runWorker drives one coder invocation and never panics or blocks its
// siblings; any failure is folded into the returned result.
func (r *Runner) runWorker(ctx context.Context, m *session.Milestone, worker int, part session.FileTargets) WorkerResult {
	result := WorkerResult{Worker: worker, Deletes: part.Delete}

	prompt, err := r.cfg.Prompt(m, part)
	if err != nil {
		result.Err = fmt.Errorf("worker %d: building prompt: %w", worker, err)
		r.finishWorker(m, result)
		return result
	}

	res, err := r.exec.Execute(ctx, failover.RoleCoder, prompt, failover.Options{
		Timeout: r.cfg.InvokeTimeout,
		// Distinct per worker so two degraded coders do not collide on
		// one placeholder file.
		DegradedFilePath: fmt.Sprintf("MANUAL_IMPLEMENTATION_worker%d.md", worker),
	})
	if err != nil {
		result.Err = fmt.Errorf("worker %d: %w", worker, err)
		r.finishWorker(m, result)
		return result
	}

	files, err := parseCoderOutput(res.Output)
	if err != nil {
		result.Err = fmt.Errorf("worker %d: parsing coder output from %s: %w", worker, res.ModelUsed, err)
		r.finishWorker(m, result)
		return result
	}

	result.Success = true
	result.Degraded = res.Degraded
	result.Files = files
	r.finishWorker(m, result)
	return result
}

func (r *Runner) finishWorker(m *session.Milestone, res WorkerResult) {
	ev := journal.Event{
		Event:     journal.EventWorkerCompleted,
		Milestone: m.Name,
		Worker:    res.Worker,
		Data:      map[string]interface{}{"files": len(res.Files)},
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
		r.logger.Warn().Str("milestone", m.Name).Int("worker", res.Worker).Err(res.Err).Msg("worker failed")
	} else {
		r.logger.Debug().Str("milestone", m.Name).Int("worker", res.Worker).Int("files", len(res.Files)).Msg("worker completed")
	}
	r.journalAppend(ev)
}

// parseCoderOutput decodes the coder's JSON document. Models sometimes
// wrap the document in a markdown fence, which is stripped first.
func parseCoderOutput(text string) ([]File, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		if _, rest, ok := strings.Cut(trimmed, "\n"); ok {
			trimmed = rest
		}
		if i := strings.LastIndex(trimmed, "```"); i >= 0 {
			trimmed = trimmed[:i]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	var payload coderPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("not a file document: %w", err)
	}
	for i, f := range payload.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("file %d has an empty path", i)
		}
	}
	return payload.Files, nil
}

func (r *Runner) journalAppend(ev journal.Event) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(ev); err != nil {
		r.logger.Warn().Err(err).Msg("journal append failed")
	}
}
