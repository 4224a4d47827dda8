// status.go implements "gantry status": a detailed view of one session
// built from its checkpoint.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show a session's phase, milestones and errors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer p.close()

	entry, err := p.resolveEntry(args)
	if err != nil {
		return err
	}

	s, err := p.loadSession(entry)
	if err != nil {
		return err
	}

	fmt.Printf("Session:  %s\n", s.ID)
	fmt.Printf("Idea:     %s\n", s.IdeaID)
	fmt.Printf("Phase:    %s", s.Phase)
	if s.Phase.Resumable() && s.ResumePhase != "" {
		fmt.Printf(" (resumes at %s)", s.ResumePhase)
	}
	fmt.Println()
	fmt.Printf("Progress: %d%%\n", s.Progress)
	if s.Branch != "" {
		fmt.Printf("Branch:   %s\n", s.Branch)
	}
	if s.DegradedMode {
		fmt.Println("Degraded: yes")
	}
	if s.BlockReason != "" {
		fmt.Printf("Blocked:  %s\n", s.BlockReason)
	}

	if s.Plan != nil {
		fmt.Printf("\nPlan: %s (confidence %.2f)\n", s.Plan.Title, s.Plan.Confidence)
	}
	if len(s.Milestones) > 0 {
		fmt.Println("Milestones:")
		for i := range s.Milestones {
			m := &s.Milestones[i]
			mark := "[ ]"
			if m.Done() {
				mark = "[x]"
			}
			extra := ""
			if m.PartialSuccess {
				extra = " (partial)"
			}
			fmt.Printf("  %s %s%s\n", mark, m.Name, extra)
		}
	}

	if len(s.Errors) > 0 {
		fmt.Printf("\nErrors: %d (last: [%s/%s] %s)\n",
			len(s.Errors),
			s.Errors[len(s.Errors)-1].Phase,
			s.Errors[len(s.Errors)-1].Class,
			s.Errors[len(s.Errors)-1].Message)
	}

	if s.Phase.Resumable() {
		fmt.Printf("\nResume with: gantry resume %s\n", s.ID)
	}
	return nil
}
