// init.go implements "gantry init": scaffold .gantry/ and seed the
// config from stack detection.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gantry-dev/gantry/internal/config"
	"github.com/gantry-dev/gantry/internal/detect"
	"github.com/gantry-dev/gantry/internal/git"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize gantry in the current project",
	Long: `Create the .gantry/ directory with a config seeded from stack
detection: project language, framework and the default test pipeline.
An existing config is only replaced with --force.`,
	RunE: runInit,
}

var forceFlag bool

func init() {
	initCmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite an existing .gantry/config.yaml")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	configPath := filepath.Join(config.GantryDir(dir), "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !forceFlag {
		return fmt.Errorf(".gantry/config.yaml already exists, rerun with --force to replace it")
	}

	// A repository must exist before sessions can branch and commit.
	repo, err := git.Init(dir)
	if err != nil {
		return fmt.Errorf("preparing git repository: %w", err)
	}
	if err := repo.EnsureInitialCommit(); err != nil {
		logger.Warn().Err(err).Msg("could not create an initial commit")
	}

	cfg := config.DefaultConfig()
	cfg.Project.Name = filepath.Base(dir)

	stack := detect.Stack{}
	if detect.HasProject(dir) {
		stack = detect.Detect(dir)
		cfg.Project.Language = stack.Language
		cfg.TestPipeline = detect.Pipeline(dir, stack)
	}

	if err := config.WriteConfig(dir, cfg); err != nil {
		return err
	}
	if err := ensureGitignore(dir); err != nil {
		logger.Warn().Err(err).Msg("could not update .gitignore")
	}

	if stack.Language != "" {
		fmt.Println("gantry initialized (existing project detected)")
		fmt.Printf("  Language:        %s\n", stack.Language)
		if stack.Framework != "" {
			fmt.Printf("  Framework:       %s\n", stack.Framework)
		}
		if stack.PackageManager != "" {
			fmt.Printf("  Package manager: %s\n", stack.PackageManager)
		}
		for i, step := range cfg.TestPipeline {
			label := "  Test pipeline:  "
			if i > 0 {
				label = "                  "
			}
			fmt.Printf("%s %s\n", label, step)
		}
	} else {
		fmt.Println("gantry initialized (empty project)")
		fmt.Println("Set project.language and test_pipeline in .gantry/config.yaml before running.")
	}
	fmt.Println()
	fmt.Println("Configuration written to .gantry/config.yaml")
	fmt.Println("Start a session with: gantry run <idea-file>")

	return nil
}

// gitignoreEntries keeps per-session state and credentials out of the
// repository. The config itself is meant to be committed.
var gitignoreEntries = []string{
	".gantry/sessions/",
	".gantry/gantry.db",
	".gantry/tickets.jsonl",
	".env",
}

// ensureGitignore appends the missing runtime entries to .gitignore,
// creating the file when absent.
func ensureGitignore(dir string) error {
	path := filepath.Join(dir, ".gitignore")

	existing := ""
	if data, err := os.ReadFile(path); err == nil {
		existing = string(data)
	}

	var missing []string
	for _, entry := range gitignoreEntries {
		if !strings.Contains(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		b.WriteString("\n")
	}
	for _, entry := range missing {
		b.WriteString(entry + "\n")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening .gitignore: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}
	return nil
}
