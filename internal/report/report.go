// Package report summarizes a finished or parked session from its
// checkpoint and journal. Generation is pure; nothing here touches git
// or the network, so a report can be produced for any session that
// still has its directory.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/session"
)

// Report is the aggregated view of one session.
type Report struct {
	SessionID  string
	IdeaID     string
	Phase      session.Phase
	Branch     string
	PlanTitle  string
	Confidence float64

	Milestones []session.Milestone
	Completed  int
	Partial    int

	ModifiedFiles []string
	Errors        []session.ErrorRecord
	BlockReason   string

	Degraded bool
	Duration time.Duration
	CostUSD  float64
}

// Generate builds a Report from the checkpointed session and its
// journal events. events may be empty; duration and cost then stay
// zero.
func Generate(s *session.Session, events []journal.Event) *Report {
	r := &Report{
		SessionID:     s.ID,
		IdeaID:        s.IdeaID,
		Phase:         s.Phase,
		Branch:        s.Branch,
		Milestones:    s.Milestones,
		ModifiedFiles: s.ModifiedFiles,
		Errors:        s.Errors,
		BlockReason:   s.BlockReason,
		Degraded:      s.DegradedMode,
	}

	if s.Plan != nil {
		r.PlanTitle = s.Plan.Title
		r.Confidence = s.Plan.Confidence
	}

	for _, m := range s.Milestones {
		if m.Done() {
			r.Completed++
			if m.PartialSuccess {
				r.Partial++
			}
		}
	}

	r.Duration = spanOf(events)
	for _, e := range events {
		r.CostUSD += e.CostUSD
	}

	return r
}

// Format renders the report for the terminal.
func Format(r *Report) string {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString("  Gantry Session Report\n")
	b.WriteString("========================================\n\n")

	fmt.Fprintf(&b, "Session:   %s\n", r.SessionID)
	fmt.Fprintf(&b, "Idea:      %s\n", r.IdeaID)
	fmt.Fprintf(&b, "Phase:     %s\n", r.Phase)
	if r.Branch != "" {
		fmt.Fprintf(&b, "Branch:    %s\n", r.Branch)
	}
	if r.PlanTitle != "" {
		fmt.Fprintf(&b, "Plan:      %s (confidence %.2f)\n", r.PlanTitle, r.Confidence)
	}
	b.WriteString("\n")

	if len(r.Milestones) > 0 {
		fmt.Fprintf(&b, "Milestones: %d/%d complete", r.Completed, len(r.Milestones))
		if r.Partial > 0 {
			fmt.Fprintf(&b, " (%d partial)", r.Partial)
		}
		b.WriteString("\n")
		for i := range r.Milestones {
			b.WriteString("  " + milestoneLine(&r.Milestones[i]) + "\n")
		}
		b.WriteString("\n")
	}

	if len(r.ModifiedFiles) > 0 {
		fmt.Fprintf(&b, "Files changed: %d\n", len(r.ModifiedFiles))
		for _, f := range r.ModifiedFiles {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
		b.WriteString("\n")
	}

	if r.BlockReason != "" {
		fmt.Fprintf(&b, "Blocked:   %s\n\n", r.BlockReason)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "Errors:    %d\n", len(r.Errors))
		for _, rec := range r.Errors {
			fmt.Fprintf(&b, "  - [%s/%s] %s\n", rec.Phase, rec.Class, rec.Message)
		}
		b.WriteString("\n")
	}

	if r.Duration > 0 {
		fmt.Fprintf(&b, "Duration:  %s\n", formatDuration(r.Duration))
	}
	if r.CostUSD > 0 {
		fmt.Fprintf(&b, "Cost:      $%.2f\n", r.CostUSD)
	}
	if r.Degraded {
		b.WriteString("Degraded:  yes (at least one deterministic fallback was used)\n")
	}

	b.WriteString("========================================\n")
	return b.String()
}

func milestoneLine(m *session.Milestone) string {
	mark := "[ ]"
	if m.Done() {
		mark = "[x]"
	}
	line := fmt.Sprintf("%s %s", mark, m.Name)
	if m.CommitRevision != "" {
		line += fmt.Sprintf(" (rev %s)", shortRev(m.CommitRevision))
	}
	if m.PartialSuccess {
		line += " (partial)"
	}
	return line
}

// Write renders the report into dir/report.md, creating dir if needed.
func Write(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(dir, "report.md")
	if err := os.WriteFile(path, []byte(Format(r)), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// spanOf measures from the first event to the last terminal event, or
// to the last event at all when the session never terminated.
func spanOf(events []journal.Event) time.Duration {
	var start, end time.Time
	for _, e := range events {
		if e.Time.IsZero() {
			continue
		}
		if start.IsZero() {
			start = e.Time
		}
		if e.Time.After(end) {
			end = e.Time
		}
	}
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

func shortRev(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
