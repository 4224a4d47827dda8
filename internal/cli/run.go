// run.go implements "gantry run": start a new session for an idea file
// and drive it until it completes or parks.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantry-dev/gantry/internal/config"
	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/metrics"
	"github.com/gantry-dev/gantry/internal/progress"
	"github.com/gantry-dev/gantry/internal/report"
	"github.com/gantry-dev/gantry/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run <idea-file>",
	Short: "Run a session for an idea file",
	Long: `Run the full pipeline for an idea: analyze the repository, produce a
plan, implement each milestone with parallel coder workers, review the
diff and run the test pipeline. Progress is checkpointed after every
phase; Ctrl-C parks the session as interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	workersFlag int
	budgetFlag  time.Duration
	branchFlag  string
)

func init() {
	runCmd.Flags().IntVar(&workersFlag, "workers", 0, "Coder workers per milestone (default from config)")
	runCmd.Flags().DurationVar(&budgetFlag, "budget", 0, "Session wall-clock budget, e.g. 45m (default from config)")
	runCmd.Flags().StringVar(&branchFlag, "branch", "", "Branch name (default derived from the idea file)")
}

func runRun(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer p.close()

	ideaPath := args[0]
	ideaText, err := readIdea(ideaPath)
	if err != nil {
		return err
	}

	workers := p.cfg.Workers.Count
	if workersFlag > 0 {
		workers = workersFlag
	}
	budget := p.cfg.Budget()
	if budgetFlag > 0 {
		budget = budgetFlag
	}

	s := session.New(filepath.ToSlash(ideaPath), p.cfg.Execution.MaxRetries, workers, budget)

	// Sessions stage and reset the whole tree, so the user's uncommitted
	// work must not be in it when one starts.
	if err := p.repo.RequireClean(); err != nil {
		return fmt.Errorf("cannot start a session: %w (commit or stash first)", err)
	}

	// Sessions always run on their own branch so a rollback or abandoned
	// run never touches the user's branch.
	if err := p.repo.EnsureInitialCommit(); err != nil {
		return fmt.Errorf("preparing repository: %w", err)
	}
	branch := branchFlag
	if branch == "" {
		branch = p.repo.SessionBranch(p.cfg.Execution.BranchPrefix, ideaSlug(ideaPath))
	}
	if err := p.repo.CreateBranch(branch); err != nil {
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	s.Branch = branch

	sessionDir := config.SessionDir(p.root, s.ID)
	jrnl, err := journal.New(sessionDir)
	if err != nil {
		return err
	}
	if err := p.store.Insert(s, sessionDir); err != nil {
		return err
	}

	mets := metrics.New()
	stopMetrics := p.startMetricsServer(mets)
	defer stopMetrics()

	display := progress.ForStdout()
	machine, _ := p.machineFor(s, ideaText, jrnl, mets, display)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("session", s.ID).Str("branch", branch).Str("idea", ideaPath).Msg("session starting")
	runErr := machine.Run(ctx, s)
	display.Finish(s)

	writeSessionReport(s, jrnl, sessionDir)
	return runErr
}

// readIdea loads the idea file. Ideas are plain text; the contents feed
// every prompt of the session.
func readIdea(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading idea file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("idea file %s is empty", path)
	}
	return text, nil
}

// ideaSlug derives the branch suffix from the idea filename.
func ideaSlug(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// writeSessionReport renders the final report next to the checkpoint
// and prints it. Report failures never mask the session outcome.
func writeSessionReport(s *session.Session, jrnl *journal.Journal, sessionDir string) {
	events, err := jrnl.ReadAll()
	if err != nil {
		logger.Warn().Err(err).Msg("reading journal for report")
	}
	r := report.Generate(s, events)
	if err := report.Write(sessionDir, r); err != nil {
		logger.Warn().Err(err).Msg("writing report")
	}
	fmt.Println()
	fmt.Print(report.Format(r))
}
