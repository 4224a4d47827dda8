// sessions.go implements "gantry sessions": list indexed sessions.
package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions, newest first",
	RunE:  runSessions,
}

var limitFlag int

func init() {
	sessionsCmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum sessions to list (0 = all)")
}

func runSessions(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer p.close()

	entries, err := p.store.List(limitFlag)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No sessions yet. Start one with: gantry run <idea-file>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tPHASE\tPROGRESS\tIDEA\tUPDATED")
	for _, e := range entries {
		degraded := ""
		if e.Degraded {
			degraded = " *"
		}
		fmt.Fprintf(w, "%s\t%s%s\t%d%%\t%s\t%s\n",
			e.ID[:8], e.Phase, degraded, e.Progress, e.IdeaID, e.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
