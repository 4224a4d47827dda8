package session

import (
	"testing"
	"time"
)

func TestNewSession(t *testing.T) {
	s := New("query-cache", 3, 4, 30*time.Minute)

	if s.ID == "" {
		t.Error("New should assign an ID")
	}
	if s.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", s.SchemaVersion, SchemaVersion)
	}
	if s.Phase != PhaseInitializing {
		t.Errorf("Phase = %q, want %q", s.Phase, PhaseInitializing)
	}
	if s.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", s.MaxRetries)
	}
	if s.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", s.WorkerCount)
	}
	if got := s.Deadline.Sub(s.StartedAt); got != 30*time.Minute {
		t.Errorf("Deadline-StartedAt = %v, want 30m", got)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("fresh session should validate: %v", err)
	}
}

func TestPhasePredicates(t *testing.T) {
	cases := []struct {
		phase     Phase
		terminal  bool
		resumable bool
	}{
		{PhaseInitializing, false, false},
		{PhaseAnalyzing, false, false},
		{PhaseImplementing, false, false},
		{PhaseCompleted, true, false},
		{PhaseFailed, true, false},
		{PhaseBlocked, true, true},
		{PhaseInterrupted, false, true},
	}
	for _, tc := range cases {
		if got := tc.phase.Terminal(); got != tc.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tc.phase, got, tc.terminal)
		}
		if got := tc.phase.Resumable(); got != tc.resumable {
			t.Errorf("%s.Resumable() = %v, want %v", tc.phase, got, tc.resumable)
		}
	}
	if Phase("daydreaming").Valid() {
		t.Error("unknown phase should not be valid")
	}
}

func TestRecordError(t *testing.T) {
	s := New("idea", 3, 3, time.Hour)
	s.Phase = PhaseAnalyzing

	s.RecordError(PhaseAnalyzing, "transient", "model timed out")
	s.RecordError(PhaseAnalyzing, "transient", "model timed out again")

	if len(s.Errors) != 2 {
		t.Fatalf("Errors = %d entries, want 2", len(s.Errors))
	}
	if s.Errors[0].Phase != PhaseAnalyzing || s.Errors[0].Class != "transient" {
		t.Errorf("Errors[0] = %+v", s.Errors[0])
	}
	if s.Errors[1].Timestamp.Before(s.Errors[0].Timestamp) {
		t.Error("error timestamps should be non-decreasing")
	}
}

func TestAddModifiedFiles(t *testing.T) {
	s := New("idea", 3, 3, time.Hour)
	s.AddModifiedFiles("b.go", "a.go")
	s.AddModifiedFiles("a.go", "c.go")

	want := []string{"a.go", "b.go", "c.go"}
	if len(s.ModifiedFiles) != len(want) {
		t.Fatalf("ModifiedFiles = %v, want %v", s.ModifiedFiles, want)
	}
	for i := range want {
		if s.ModifiedFiles[i] != want[i] {
			t.Errorf("ModifiedFiles[%d] = %q, want %q", i, s.ModifiedFiles[i], want[i])
		}
	}
}

func TestNextMilestone(t *testing.T) {
	s := New("idea", 3, 3, time.Hour)
	if s.NextMilestone() != nil {
		t.Error("NextMilestone should be nil with no plan")
	}

	now := time.Now().UTC()
	s.Milestones = []Milestone{
		{Name: "first", CompletedAt: &now},
		{Name: "second"},
		{Name: "third"},
	}

	next := s.NextMilestone()
	if next == nil || next.Name != "second" {
		t.Fatalf("NextMilestone = %+v, want second", next)
	}
	if got := s.CompletedMilestones(); got != 1 {
		t.Errorf("CompletedMilestones = %d, want 1", got)
	}

	next.CompletedAt = &now
	if got := s.NextMilestone(); got == nil || got.Name != "third" {
		t.Errorf("NextMilestone after completion = %+v, want third", got)
	}
}

func TestUpdateProgress(t *testing.T) {
	s := New("idea", 3, 3, time.Hour)
	s.UpdateProgress()
	if s.Progress != 0 {
		t.Errorf("initializing progress = %d, want 0", s.Progress)
	}

	s.Phase = PhasePlanning
	s.UpdateProgress()
	if s.Progress != 20 {
		t.Errorf("planning progress = %d, want 20", s.Progress)
	}

	now := time.Now().UTC()
	s.Phase = PhaseImplementing
	s.Milestones = []Milestone{
		{Name: "a", CompletedAt: &now},
		{Name: "b", CompletedAt: &now},
		{Name: "c"},
		{Name: "d"},
	}
	s.UpdateProgress()
	if s.Progress != 55 {
		t.Errorf("implementing progress with 2/4 done = %d, want 55", s.Progress)
	}

	s.Phase = PhaseCompleted
	s.UpdateProgress()
	if s.Progress != 100 {
		t.Errorf("completed progress = %d, want 100", s.Progress)
	}
}

func TestProgressNeverDecreasesAcrossPhases(t *testing.T) {
	s := New("idea", 3, 3, time.Hour)
	order := []Phase{
		PhaseInitializing, PhaseAnalyzing, PhasePlanning,
		PhaseImplementing, PhaseReviewing, PhaseTesting, PhaseCompleted,
	}
	prev := -1
	for _, p := range order {
		s.Phase = p
		s.UpdateProgress()
		if s.Progress < prev {
			t.Errorf("progress decreased at %s: %d < %d", p, s.Progress, prev)
		}
		prev = s.Progress
	}
}

func TestValidateRejections(t *testing.T) {
	base := func() *Session { return New("idea", 3, 3, time.Hour) }

	s := base()
	s.ID = ""
	if err := s.Validate(); err == nil {
		t.Error("empty ID should not validate")
	}

	s = base()
	s.SchemaVersion = 2
	if err := s.Validate(); err == nil {
		t.Error("wrong schema version should not validate")
	}

	s = base()
	s.Phase = Phase("unknown")
	if err := s.Validate(); err == nil {
		t.Error("unknown phase should not validate")
	}

	s = base()
	s.RetryCount = -1
	if err := s.Validate(); err == nil {
		t.Error("negative retry count should not validate")
	}

	s = base()
	s.Progress = 120
	if err := s.Validate(); err == nil {
		t.Error("progress above 100 should not validate")
	}

	s = base()
	s.Errors = append(s.Errors, ErrorRecord{Phase: Phase("nope"), Class: "transient", Message: "x", Timestamp: time.Now()})
	if err := s.Validate(); err == nil {
		t.Error("error record with unknown phase should not validate")
	}
}

func TestFileTargetsAll(t *testing.T) {
	ft := FileTargets{
		Create: []string{"a.go", "b.go"},
		Modify: []string{"b.go", "c.go"},
		Delete: []string{"d.go"},
	}
	all := ft.All()
	want := []string{"a.go", "b.go", "c.go", "d.go"}
	if len(all) != len(want) {
		t.Fatalf("All() = %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, all[i], want[i])
		}
	}
}
