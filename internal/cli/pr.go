// pr.go implements "gantry pr": open a pull request for a completed
// session's branch.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/report"
	"github.com/gantry-dev/gantry/internal/session"
	"github.com/gantry-dev/gantry/internal/ticket"
)

var prCmd = &cobra.Command{
	Use:   "pr [session-id]",
	Short: "Open a pull request for a completed session",
	Long: `Push the session branch and open a GitHub pull request titled after
the plan, with the session report as its description. Requires
tickets.repo in the config and a GITHUB_TOKEN.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPR,
}

var baseFlag string

func init() {
	prCmd.Flags().StringVar(&baseFlag, "base", "main", "Base branch for the pull request")
}

func runPR(cmd *cobra.Command, args []string) error {
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
	if s.Phase != session.PhaseCompleted {
		return fmt.Errorf("session %s is %s; only completed sessions become pull requests", s.ID, s.Phase)
	}
	if s.Branch == "" {
		return fmt.Errorf("session %s has no branch recorded", s.ID)
	}

	gh, err := ticket.NewGitHubTracker(p.env.GitHubToken, p.cfg.Tickets.Repo)
	if err != nil {
		return fmt.Errorf("github unavailable: %w (set tickets.repo and GITHUB_TOKEN)", err)
	}

	if err := p.repo.Push(s.Branch); err != nil {
		return fmt.Errorf("pushing %s: %w", s.Branch, err)
	}

	title := fmt.Sprintf("gantry: %s", s.IdeaID)
	if s.Plan != nil && s.Plan.Title != "" {
		title = s.Plan.Title
	}

	jrnl, err := journal.New(entry.Dir)
	if err != nil {
		return err
	}
	events, err := jrnl.ReadAll()
	if err != nil {
		logger.Warn().Err(err).Msg("reading journal")
	}
	body := report.Format(report.Generate(s, events))

	url, err := gh.CreatePullRequest(cmd.Context(), title, body, s.Branch, baseFlag)
	if err != nil {
		return fmt.Errorf("creating pull request: %w", err)
	}

	fmt.Println(url)
	return nil
}
