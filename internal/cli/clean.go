// clean.go implements "gantry clean": prune old session directories.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantry-dev/gantry/internal/cleanup"
	"github.com/gantry-dev/gantry/internal/config"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old session directories",
	Long: `Remove session directories under .gantry/sessions. By default
directories untouched for --older-than (default 30 days) are removed;
--keep switches to keeping only the N most recent. --dry-run previews
without deleting. The session index keeps its rows; only checkpoints,
journals and reports are removed.`,
	RunE: runClean,
}

var (
	keepFlag      int
	olderThanFlag time.Duration
	dryRunFlag    bool
)

func init() {
	cleanCmd.Flags().IntVar(&keepFlag, "keep", 0, "Keep only the N most recent sessions (0 = age-based)")
	cleanCmd.Flags().DurationVar(&olderThanFlag, "older-than", 30*24*time.Hour, "Age cutoff for removal, e.g. 168h")
	cleanCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Preview what would be removed")
}

func runClean(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer p.close()

	sessionsDir := config.SessionsDir(p.root)

	var pruned []string
	if keepFlag > 0 {
		pruned, err = cleanup.PruneKeepRecent(sessionsDir, keepFlag, dryRunFlag)
	} else {
		pruned, err = cleanup.PruneByAge(sessionsDir, olderThanFlag, dryRunFlag)
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if len(pruned) == 0 {
		fmt.Println("No session directories to clean up.")
		return nil
	}

	verb := "Removed"
	if dryRunFlag {
		verb = "Would remove"
	}
	for _, name := range pruned {
		fmt.Printf("  %s %s\n", verb, name)
	}
	fmt.Printf("%s %d session director%s.\n", verb, len(pruned), plural(len(pruned), "y", "ies"))
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
