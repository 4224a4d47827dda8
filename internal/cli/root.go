// Package cli defines the Cobra commands for the gantry binary.
// This file holds the root command and global logging setup.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gantry-dev/gantry/internal/config"
)

var (
	verbose bool
	version = "dev" // set via ldflags at build time

	// logger is configured once in the persistent pre-run and shared by
	// every command.
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Autonomous coding sessions with failover and checkpoints",
	Long: `Gantry turns an idea file into reviewed, tested commits. A session
moves through analyzing, planning, implementing, reviewing and testing
phases, checkpointing after every step so interrupted or blocked work
can be resumed.`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogging configures the shared zerolog logger from the
// environment and the --verbose flag. Human-readable output goes to a
// terminal, JSON everywhere else.
func setupLogging(cmd *cobra.Command, args []string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(env.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	var out io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(prCmd)
	rootCmd.AddCommand(cleanCmd)
}
