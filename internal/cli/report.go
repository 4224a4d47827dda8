// report.go implements "gantry report": render the session report.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [session-id]",
	Short: "Show a session report",
	Long: `Build a report from a session's checkpoint and journal: milestones,
files changed, errors, duration and cost. Defaults to the most recent
session. The report is also written to the session directory as
report.md.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
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

	jrnl, err := journal.New(entry.Dir)
	if err != nil {
		return err
	}
	events, err := jrnl.ReadAll()
	if err != nil {
		logger.Warn().Err(err).Msg("reading journal")
	}

	r := report.Generate(s, events)
	if err := report.Write(entry.Dir, r); err != nil {
		logger.Warn().Err(err).Msg("writing report.md")
	}

	fmt.Print(report.Format(r))
	return nil
}
