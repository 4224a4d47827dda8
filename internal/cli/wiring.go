// wiring.go assembles the execution stack shared by run and resume:
// project handles, the failover controller, the milestone runner and
// the state machine itself.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/gantry-dev/gantry/internal/cleanup"
	"github.com/gantry-dev/gantry/internal/config"
	"github.com/gantry-dev/gantry/internal/engine"
	"github.com/gantry-dev/gantry/internal/failover"
	"github.com/gantry-dev/gantry/internal/git"
	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/metrics"
	"github.com/gantry-dev/gantry/internal/milestone"
	"github.com/gantry-dev/gantry/internal/model"
	"github.com/gantry-dev/gantry/internal/progress"
	"github.com/gantry-dev/gantry/internal/session"
	"github.com/gantry-dev/gantry/internal/ticket"
)

// sessionsKeptOnPressure is how many recent session directories survive
// the cleanup hook that fires on resource errors.
const sessionsKeptOnPressure = 5

// project bundles the handles every session command needs.
type project struct {
	root  string
	cfg   *config.Config
	env   *config.Env
	repo  *git.Repo
	store *session.Store
}

// openProject resolves the working directory, reads and validates the
// config, loads environment overrides, and opens the git repository and
// session index.
func openProject() (*project, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if _, err := os.Stat(config.GantryDir(root)); os.IsNotExist(err) {
		return nil, fmt.Errorf(".gantry/ not found, run 'gantry init' first")
	}

	cfg, err := config.ReadConfig(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(root)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	store, err := session.OpenStore(config.DBPath(root))
	if err != nil {
		return nil, fmt.Errorf("opening session index: %w", err)
	}

	return &project{root: root, cfg: cfg, env: env, repo: repo, store: store}, nil
}

func (p *project) close() {
	if err := p.store.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing session index")
	}
}

// tracker picks the configured ticket backend. A github provider
// without a token falls back to the local logbook so parked sessions
// are never silently untracked.
func (p *project) tracker() ticket.Tracker {
	if p.cfg.Tickets.Provider == "github" {
		t, err := ticket.NewGitHubTracker(p.env.GitHubToken, p.cfg.Tickets.Repo)
		if err == nil {
			return t
		}
		logger.Warn().Err(err).Msg("github tracker unavailable, using local logbook")
	}

	lb, err := ticket.NewLogbook(config.GantryDir(p.root))
	if err != nil {
		logger.Error().Err(err).Msg("logbook unavailable, tickets disabled")
		return nil
	}
	return lb
}

// machineFor wires a state machine for the session. ideaText is the
// idea file's contents; jrnl and display belong to this session.
func (p *project) machineFor(s *session.Session, ideaText string, jrnl *journal.Journal, mets *metrics.Metrics, display *progress.Display) (*engine.Machine, *failover.Controller) {
	binary := p.cfg.Models.CLI
	if p.env.ModelCLI != "" {
		binary = p.env.ModelCLI
	}
	invoker := model.NewCLIInvoker(binary, p.root)

	ctrl := failover.New(invoker, failover.Config{
		Candidates: map[failover.Role][]string{
			failover.RoleAnalyzer: p.cfg.Models.Analyzer,
			failover.RolePlanner:  p.cfg.Models.Planner,
			failover.RoleCoder:    p.cfg.Models.Coder,
			failover.RoleReviewer: p.cfg.Models.Reviewer,
		},
		Degradation:      p.cfg.Execution.Degradation,
		FailureThreshold: p.cfg.Breaker.FailureThreshold,
		MonitoringPeriod: time.Duration(p.cfg.Breaker.MonitoringSec) * time.Second,
		ResetTimeout:     time.Duration(p.cfg.Breaker.ResetSec) * time.Second,
		InvokeTimeout:    p.cfg.InvokeTimeout(),
	}, logger, jrnl, mets)

	language := p.cfg.Project.Language
	runner := milestone.NewRunner(ctrl, p.repo, milestone.Config{
		Root:           p.root,
		MinSuccessRate: p.cfg.Workers.MinSuccessRate,
		InvokeTimeout:  p.cfg.InvokeTimeout(),
		Prompt:         engine.CoderPrompt(ideaText, language),
	}, logger, jrnl, mets)

	sessionsDir := config.SessionsDir(p.root)
	machine := engine.New(engine.Deps{
		Exec:     ctrl,
		SC:       p.repo,
		Runner:   runner,
		Store:    p.store,
		Journal:  jrnl,
		Metrics:  mets,
		Tracker:  p.tracker(),
		Observer: display,
		Cleanup: func() error {
			_, err := cleanup.PruneKeepRecent(sessionsDir, sessionsKeptOnPressure, false)
			return err
		},
		Logger: logger,
	}, engine.Config{
		Idea:                ideaText,
		Language:            language,
		Root:                p.root,
		SessionDir:          config.SessionDir(p.root, s.ID),
		ConfidenceThreshold: p.cfg.Execution.ConfidenceThreshold,
		InvokeTimeout:       p.cfg.InvokeTimeout(),
		Pipeline:            p.cfg.TestPipeline,
		TicketLabels:        p.cfg.Tickets.Labels,
	})

	return machine, ctrl
}

// startMetricsServer serves /metrics when an address is configured.
// The returned stop function is a no-op when it is not.
func (p *project) startMetricsServer(mets *metrics.Metrics) func() {
	if p.env.MetricsAddr == "" {
		return func() {}
	}
	srv, err := metrics.NewServer(p.env.MetricsAddr, mets)
	if err != nil {
		logger.Warn().Err(err).Str("addr", p.env.MetricsAddr).Msg("metrics server unavailable")
		return func() {}
	}
	go func() {
		if err := srv.Start(); err != nil {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", srv.Addr()).Msg("metrics server listening")
	return func() {
		if err := srv.Stop(); err != nil {
			logger.Warn().Err(err).Msg("stopping metrics server")
		}
	}
}

// loadSession reads a session's checkpoint. An index row whose
// checkpoint file is gone (a cleaned session directory) is an error,
// not a nil session.
func (p *project) loadSession(entry *session.Entry) (*session.Session, error) {
	s, err := session.LoadCheckpoint(entry.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint for %s: %w", entry.ID, err)
	}
	if s == nil {
		return nil, fmt.Errorf("session %s has no checkpoint, its directory may have been cleaned", entry.ID)
	}
	return s, nil
}

// resolveEntry finds the session named by args, or falls back to the
// most recent one when args is empty.
func (p *project) resolveEntry(args []string) (*session.Entry, error) {
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

	entry, err := p.store.Latest()
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("no sessions yet, start one with 'gantry run <idea-file>'")
	}
	return entry, nil
}
