// Package progress renders a live session view on the terminal. The
// Display satisfies the engine's Observer interface, so it sees the
// session after every persisted state change.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/gantry-dev/gantry/internal/session"
)

// workingPhases is the display order of the pipeline.
var workingPhases = []session.Phase{
	session.PhaseInitializing,
	session.PhaseAnalyzing,
	session.PhasePlanning,
	session.PhaseImplementing,
	session.PhaseReviewing,
	session.PhaseTesting,
}

// Display writes session progress to a terminal. On a TTY it redraws
// the phase list in place; otherwise it prints one line per transition
// so piped output stays readable.
type Display struct {
	mu  sync.Mutex
	out io.Writer
	tty bool

	linesDrawn     int
	lastPhase      session.Phase
	lastMilestones int
	startedAt      time.Time
}

// New creates a Display writing to out. tty selects the in-place
// renderer.
func New(out io.Writer, tty bool) *Display {
	return &Display{out: out, tty: tty, startedAt: time.Now()}
}

// ForStdout creates a Display on stdout, detecting whether it is a
// terminal.
func ForStdout() *Display {
	return New(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

// Update rerenders the view from the session snapshot.
func (d *Display) Update(s *session.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tty {
		d.renderTTY(s)
		return
	}
	d.renderPlain(s)
}

// Finish prints the closing summary line. Call it once after the
// machine returns.
func (d *Display) Finish(s *session.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tty && d.linesDrawn > 0 {
		fmt.Fprintln(d.out)
	}

	elapsed := formatDuration(time.Since(d.startedAt))
	switch s.Phase {
	case session.PhaseCompleted:
		fmt.Fprintf(d.out, "completed: %d/%d milestones, %d files changed, %s\n",
			s.CompletedMilestones(), len(s.Milestones), len(s.ModifiedFiles), elapsed)
	case session.PhaseBlocked:
		fmt.Fprintf(d.out, "blocked: %s\n", s.BlockReason)
		fmt.Fprintf(d.out, "resume with: gantry resume %s\n", s.ID)
	case session.PhaseInterrupted:
		fmt.Fprintf(d.out, "interrupted at %s (%d/%d milestones done)\n",
			s.ResumePhase, s.CompletedMilestones(), len(s.Milestones))
		fmt.Fprintf(d.out, "resume with: gantry resume %s\n", s.ID)
	case session.PhaseFailed:
		fmt.Fprintf(d.out, "failed after %s\n", elapsed)
	}
}

// renderTTY redraws the whole phase list in place.
func (d *Display) renderTTY(s *session.Session) {
	if d.linesDrawn > 0 {
		fmt.Fprintf(d.out, "\033[%dA", d.linesDrawn)
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "\033[2K\033[1mgantry %s\033[0m  %3d%%  %s\n", shortID(s.ID), s.Progress, s.IdeaID)
	buf.WriteString("\033[2K\n")

	current := currentPhase(s)
	for _, phase := range workingPhases {
		buf.WriteString("\033[2K")
		buf.WriteString(phaseLine(s, phase, current))
		buf.WriteString("\n")
	}

	fmt.Fprint(d.out, buf.String())
	d.linesDrawn = len(workingPhases) + 2
}

// renderPlain prints transition lines only, never repeating a state.
func (d *Display) renderPlain(s *session.Session) {
	done := s.CompletedMilestones()
	if s.Phase == d.lastPhase && done == d.lastMilestones {
		return
	}
	d.lastPhase = s.Phase
	d.lastMilestones = done

	line := fmt.Sprintf("[%3d%%] %s", s.Progress, s.Phase)
	if s.Phase == session.PhaseImplementing && len(s.Milestones) > 0 {
		line += fmt.Sprintf(" (milestone %d/%d)", done, len(s.Milestones))
	}
	if s.DegradedMode {
		line += " [degraded]"
	}
	fmt.Fprintln(d.out, line)
}

// currentPhase maps side states back onto the working phase they parked
// in, so the list still shows where the session stands.
func currentPhase(s *session.Session) session.Phase {
	if s.Phase.Resumable() && s.ResumePhase != "" {
		return s.ResumePhase
	}
	return s.Phase
}

func phaseLine(s *session.Session, phase, current session.Phase) string {
	icon := "\033[90m·\033[0m" // pending
	switch {
	case s.Phase == session.PhaseCompleted || phaseIndex(phase) < phaseIndex(current):
		icon = "\033[32m✓\033[0m"
	case phase == current:
		icon = "\033[33m›\033[0m"
	}

	line := fmt.Sprintf("  %s %-13s", icon, phase)
	if phase == session.PhaseImplementing && len(s.Milestones) > 0 {
		line += fmt.Sprintf(" %d/%d", s.CompletedMilestones(), len(s.Milestones))
		if next := s.NextMilestone(); next != nil && phase == current {
			line += "  " + next.Name
		}
	}
	return line
}

func phaseIndex(p session.Phase) int {
	for i, phase := range workingPhases {
		if phase == p {
			return i
		}
	}
	return len(workingPhases)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
