// resume.go implements "gantry resume": reload a blocked or interrupted
// session from its checkpoint and continue where it parked.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/metrics"
	"github.com/gantry-dev/gantry/internal/progress"
	"github.com/gantry-dev/gantry/internal/session"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Resume a blocked or interrupted session",
	Long: `Reload a parked session from its checkpoint and re-enter the phase it
stopped in. The retry counter resets and a fresh time budget starts;
completed milestones stay completed. Without an argument the most
recently parked session is resumed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

var resumeBudgetFlag time.Duration

func init() {
	resumeCmd.Flags().DurationVar(&resumeBudgetFlag, "budget", 0, "Fresh wall-clock budget, e.g. 45m (default from config)")
}

func runResume(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer p.close()

	entry, err := p.resolveResumable(args)
	if err != nil {
		return err
	}

	s, err := p.loadSession(entry)
	if err != nil {
		return err
	}
	if !s.Phase.Resumable() {
		return fmt.Errorf("session %s is %s, only blocked or interrupted sessions resume", s.ID, s.Phase)
	}
	if s.ResumePhase == "" {
		return fmt.Errorf("session %s has no recorded resume phase", s.ID)
	}

	budget := p.cfg.Budget()
	if resumeBudgetFlag > 0 {
		budget = resumeBudgetFlag
	}

	fmt.Printf("Resuming session %s at %s (%d/%d milestones done)\n",
		s.ID, s.ResumePhase, s.CompletedMilestones(), len(s.Milestones))

	// Re-enter the parked phase with a clean retry budget and deadline.
	// Whatever blocked the session is presumed resolved by the operator.
	s.Phase = s.ResumePhase
	s.ResumePhase = ""
	s.BlockReason = ""
	s.RetryCount = 0
	s.Deadline = time.Now().UTC().Add(budget)

	if s.Branch != "" {
		if current, err := p.repo.CurrentBranch(); err == nil && current != s.Branch {
			if !p.repo.BranchExists(s.Branch) {
				return fmt.Errorf("session branch %s no longer exists", s.Branch)
			}
			if err := p.repo.SwitchBranch(s.Branch); err != nil {
				return fmt.Errorf("switching to session branch: %w", err)
			}
		}
	}

	ideaText, err := readIdea(filepath.FromSlash(s.IdeaID))
	if err != nil {
		// The idea file may have moved since the session started; the
		// identifier is better than aborting a half-done session.
		logger.Warn().Err(err).Msg("idea file unavailable, prompts will carry the idea id only")
		ideaText = s.IdeaID
	}

	jrnl, err := journal.New(entry.Dir)
	if err != nil {
		return err
	}

	mets := metrics.New()
	stopMetrics := p.startMetricsServer(mets)
	defer stopMetrics()

	display := progress.ForStdout()
	machine, ctrl := p.machineFor(s, ideaText, jrnl, mets, display)
	ctrl.Restore(s.Breakers)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("session", s.ID).Str("phase", string(s.Phase)).Msg("session resuming")
	runErr := machine.Run(ctx, s)
	display.Finish(s)

	writeSessionReport(s, jrnl, entry.Dir)
	return runErr
}

// resolveResumable picks the session to resume: the named one, or the
// most recently parked one.
func (p *project) resolveResumable(args []string) (*session.Entry, error) {
	if len(args) > 0 {
		entry, err := p.store.Get(args[0])
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("unknown session %s", args[0])
		}
		return entry, nil
	}

	entry, err := p.store.LatestResumable()
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("no blocked or interrupted sessions to resume")
	}
	return entry, nil
}
