// Package session defines the session record that the execution state
// machine checkpoints after every phase, plus its SQLite index store.
package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is bumped whenever the checkpoint format changes in a
// way old binaries cannot read.
const SchemaVersion = 1

// Phase is one named stage of the execution state machine.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseAnalyzing    Phase = "analyzing"
	PhasePlanning     Phase = "planning"
	PhaseImplementing Phase = "implementing"
	PhaseReviewing    Phase = "reviewing"
	PhaseTesting      Phase = "testing"
	PhaseCompleted    Phase = "completed"
	PhaseBlocked      Phase = "blocked"
	PhaseFailed       Phase = "failed"
	PhaseInterrupted  Phase = "interrupted"
)

// Terminal reports whether the phase ends the session.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseBlocked || p == PhaseFailed
}

// Resumable reports whether a session parked in this phase can be
// resumed. Blocked sessions resume once the human input they wait on is
// resolved; interrupted sessions resume unconditionally.
func (p Phase) Resumable() bool {
	return p == PhaseBlocked || p == PhaseInterrupted
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInitializing, PhaseAnalyzing, PhasePlanning, PhaseImplementing,
		PhaseReviewing, PhaseTesting, PhaseCompleted, PhaseBlocked,
		PhaseFailed, PhaseInterrupted:
		return true
	}
	return false
}

// FileTargets lists the files a milestone creates, modifies and deletes.
type FileTargets struct {
	Create []string `json:"create,omitempty"`
	Modify []string `json:"modify,omitempty"`
	Delete []string `json:"delete,omitempty"`
}

// All returns the union of all target paths, deduplicated, in input order.
func (ft FileTargets) All() []string {
	var all []string
	seen := make(map[string]bool)
	for _, group := range [][]string{ft.Create, ft.Modify, ft.Delete} {
		for _, path := range group {
			if path == "" || seen[path] {
				continue
			}
			seen[path] = true
			all = append(all, path)
		}
	}
	return all
}

// Milestone is one unit of implementation work within a plan. Milestones
// are appended when the plan is produced and marked complete, in order,
// as their fan-out is committed. They are never removed.
type Milestone struct {
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Targets        FileTargets `json:"fileTargets"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
	CommitRevision string      `json:"commitRevision,omitempty"`
	PartialSuccess bool        `json:"partialSuccess,omitempty"`
}

// Done reports whether the milestone has been committed.
func (m *Milestone) Done() bool {
	return m.CompletedAt != nil
}

// Plan is the structured plan produced by the planning phase. It is
// produced once and stays immutable unless replanning appends milestones.
type Plan struct {
	Title      string  `json:"title"`
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ErrorRecord is one classified failure appended to the session history.
type ErrorRecord struct {
	Phase     Phase     `json:"phase"`
	Class     string    `json:"class"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// BreakerSnapshot captures one model's circuit-breaker state so it can
// ride inside the checkpoint and be restored on resume.
type BreakerSnapshot struct {
	ModelID  string      `json:"modelId"`
	Failures []time.Time `json:"failureTimestamps,omitempty"`
	OpenedAt *time.Time  `json:"openedAt,omitempty"`
}

// Session is the unit of work for one idea. Every field must survive a
// JSON round trip unchanged; the checkpoint is a full serialization of
// this record.
type Session struct {
	SchemaVersion int    `json:"schemaVersion"`
	ID            string `json:"sessionId"`
	IdeaID        string `json:"ideaId"`

	Phase       Phase     `json:"phase"`
	ResumePhase Phase     `json:"resumePhase,omitempty"` // phase to re-enter after blocked/interrupted
	StartedAt   time.Time `json:"startedAt"`
	Deadline    time.Time `json:"timeoutDeadline"`

	RetryCount   int  `json:"retryCount"`
	MaxRetries   int  `json:"maxRetries"`
	DegradedMode bool `json:"degradedMode"`
	Progress     int  `json:"progress"`
	WorkerCount  int  `json:"workerCount"`

	Branch          string `json:"branch,omitempty"`
	InitialRevision string `json:"initialRevision,omitempty"` // head when the session started
	BaseRevision    string `json:"baseRevision,omitempty"`    // head before the in-flight milestone

	Analysis    string `json:"analysis,omitempty"`
	Review      string `json:"review,omitempty"`
	BlockReason string `json:"blockReason,omitempty"`

	Plan          *Plan             `json:"plan,omitempty"`
	Milestones    []Milestone       `json:"milestones"`
	Errors        []ErrorRecord     `json:"errors"`
	ModifiedFiles []string          `json:"modifiedFiles"`
	Breakers      []BreakerSnapshot `json:"breakers,omitempty"`
}

// New creates a session for the given idea in the initializing phase.
func New(ideaID string, maxRetries, workerCount int, budget time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		SchemaVersion: SchemaVersion,
		ID:            uuid.New().String(),
		IdeaID:        ideaID,
		Phase:         PhaseInitializing,
		StartedAt:     now,
		Deadline:      now.Add(budget),
		MaxRetries:    maxRetries,
		WorkerCount:   workerCount,
		Milestones:    []Milestone{},
		Errors:        []ErrorRecord{},
		ModifiedFiles: []string{},
	}
}

// RecordError appends a classified failure to the session history.
func (s *Session) RecordError(phase Phase, class, message string) {
	s.Errors = append(s.Errors, ErrorRecord{
		Phase:     phase,
		Class:     class,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// AddModifiedFiles merges paths into the modified-file set, keeping it
// sorted and free of duplicates.
func (s *Session) AddModifiedFiles(paths ...string) {
	seen := make(map[string]bool, len(s.ModifiedFiles)+len(paths))
	for _, p := range s.ModifiedFiles {
		seen[p] = true
	}
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		s.ModifiedFiles = append(s.ModifiedFiles, p)
	}
	sort.Strings(s.ModifiedFiles)
}

// NextMilestone returns the first milestone that has not been committed
// yet, or nil when all are done.
func (s *Session) NextMilestone() *Milestone {
	for i := range s.Milestones {
		if !s.Milestones[i].Done() {
			return &s.Milestones[i]
		}
	}
	return nil
}

// CompletedMilestones counts committed milestones. It doubles as the
// current milestone index: milestones complete strictly in order.
func (s *Session) CompletedMilestones() int {
	n := 0
	for i := range s.Milestones {
		if s.Milestones[i].Done() {
			n++
		}
	}
	return n
}

// phaseProgress anchors the progress value at the start of each phase.
// The implementing span (30-80) is filled in proportionally per milestone.
var phaseProgress = map[Phase]int{
	PhaseInitializing: 0,
	PhaseAnalyzing:    10,
	PhasePlanning:     20,
	PhaseImplementing: 30,
	PhaseReviewing:    85,
	PhaseTesting:      95,
	PhaseCompleted:    100,
}

// UpdateProgress recomputes the 0-100 progress value from the phase and
// milestone position. Terminal side states keep their last value.
func (s *Session) UpdateProgress() {
	base, ok := phaseProgress[s.Phase]
	if !ok {
		return
	}
	p := base
	if s.Phase == PhaseImplementing && len(s.Milestones) > 0 {
		p = 30 + (50*s.CompletedMilestones())/len(s.Milestones)
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	s.Progress = p
}

// Validate checks the record against the closed schema. It is called on
// every checkpoint load so a corrupted or foreign snapshot is rejected
// instead of resumed.
func (s *Session) Validate() error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", s.SchemaVersion, SchemaVersion)
	}
	if s.ID == "" {
		return fmt.Errorf("session has no id")
	}
	if !s.Phase.Valid() {
		return fmt.Errorf("unknown phase %q", s.Phase)
	}
	if s.ResumePhase != "" && !s.ResumePhase.Valid() {
		return fmt.Errorf("unknown resume phase %q", s.ResumePhase)
	}
	if s.RetryCount < 0 {
		return fmt.Errorf("negative retry count %d", s.RetryCount)
	}
	if s.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive, got %d", s.MaxRetries)
	}
	if s.Progress < 0 || s.Progress > 100 {
		return fmt.Errorf("progress %d out of range", s.Progress)
	}
	if s.WorkerCount < 0 {
		return fmt.Errorf("negative worker count %d", s.WorkerCount)
	}
	done := s.CompletedMilestones()
	if done > len(s.Milestones) {
		return fmt.Errorf("completed milestones %d exceeds total %d", done, len(s.Milestones))
	}
	for i, rec := range s.Errors {
		if !rec.Phase.Valid() {
			return fmt.Errorf("error record %d has unknown phase %q", i, rec.Phase)
		}
	}
	return nil
}
