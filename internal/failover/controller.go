// Package failover routes one logical model call through an ordered list
// of per-role candidates, consulting a per-model circuit breaker table
// and falling back to deterministic degraded output when every candidate
// is exhausted.
package failover

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gantry-dev/gantry/internal/fault"
	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/metrics"
	"github.com/gantry-dev/gantry/internal/model"
	"github.com/gantry-dev/gantry/internal/session"
)

// Role names the deliverable a model call produces.
type Role string

const (
	RoleAnalyzer Role = "analyzer"
	RolePlanner  Role = "planner"
	RoleCoder    Role = "coder"
	RoleReviewer Role = "reviewer"
)

// Options tunes a single Execute call.
type Options struct {
	// Timeout overrides the controller-wide per-invocation timeout.
	Timeout time.Duration
	// DegradedFilePath is where the degraded coder fallback plants its
	// placeholder. Defaults to MANUAL_IMPLEMENTATION.md.
	DegradedFilePath string
}

// Result is the outcome of one Execute call.
type Result struct {
	Success      bool
	Output       string
	ModelUsed    string
	UsedFallback bool
	Degraded     bool
	CostUSD      float64
}

// Config tunes the controller.
type Config struct {
	// Candidates maps each role to its ordered model list; the first
	// entry is the primary, the rest are fallbacks.
	Candidates map[Role][]string
	// Degradation enables the deterministic fallbacks once every
	// candidate is exhausted.
	Degradation      bool
	FailureThreshold int
	MonitoringPeriod time.Duration
	ResetTimeout     time.Duration
	// InvokeTimeout is the default per-invocation timeout.
	InvokeTimeout time.Duration
}

// Controller owns the breaker table and executes model calls with
// failover. Safe for concurrent use by milestone workers.
type Controller struct {
	invoker model.Invoker
	cfg     Config
	logger  zerolog.Logger
	journal *journal.Journal
	metrics *metrics.Metrics

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	backoff func(attempt int) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// New constructs a Controller. jnl may be nil when no journal should be
// written; mets must not be nil.
func New(invoker model.Invoker, cfg Config, logger zerolog.Logger, jnl *journal.Journal, mets *metrics.Metrics) *Controller {
	return &Controller{
		invoker:  invoker,
		cfg:      cfg,
		logger:   logger.With().Str("component", "failover").Logger(),
		journal:  jnl,
		metrics:  mets,
		breakers: make(map[string]*CircuitBreaker),
		backoff:  Backoff,
		sleep:    Sleep,
	}
}

// Execute attempts the role's candidates in priority order and returns
// the first success. Candidates with an open breaker are skipped without
// counting as an attempt. A fatal failure abandons the remaining
// candidates immediately, treating the role as exhausted. When the role
// is exhausted the controller returns its degraded fallback if
// degradation is enabled, otherwise an error classified from the last
// failure.
func (c *Controller) Execute(ctx context.Context, role Role, prompt string, opts Options) (*Result, error) {
	candidates := c.cfg.Candidates[role]
	if len(candidates) == 0 {
		return nil, fault.New(fault.Fatal, "no model candidates configured for role %s", role)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.InvokeTimeout
	}

	var failures []string
	var lastErr error
	fatalModel := ""
	attempts := 0

	for i, modelID := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		br := c.breaker(modelID)
		halfOpen := br.State() == StateHalfOpen
		if !br.Allow() {
			c.logger.Debug().Str("role", string(role)).Str("model", modelID).
				Msg("breaker open, skipping candidate")
			continue
		}
		if halfOpen {
			c.logger.Info().Str("role", string(role)).Str("model", modelID).
				Msg("half-open breaker admits a probe")
			c.journalAppend(journal.Event{Event: journal.EventBreakerProbe, Model: modelID})
		}

		attempts++
		start := time.Now()
		out, err := c.invoker.Invoke(ctx, modelID, prompt, timeout)
		elapsed := time.Since(start)

		if err == nil {
			br.RecordSuccess()
			c.metrics.RecordInvocation(string(role), modelID, "success", elapsed.Seconds())
			c.logger.Info().Str("role", string(role)).Str("model", modelID).
				Dur("elapsed", elapsed).Bool("fallback", i > 0).
				Msg("model invocation succeeded")
			c.journalAppend(journal.Event{
				Event:      journal.EventModelInvoked,
				Model:      modelID,
				DurationMs: elapsed.Milliseconds(),
				CostUSD:    out.CostUSD,
			})
			return &Result{
				Success:      true,
				Output:       out.Text,
				ModelUsed:    modelID,
				UsedFallback: i > 0,
				CostUSD:      out.CostUSD,
			}, nil
		}

		c.metrics.RecordInvocation(string(role), modelID, "failure", elapsed.Seconds())
		if br.RecordFailure() {
			c.metrics.RecordBreakerOpen(modelID)
			c.logger.Warn().Str("model", modelID).Msg("circuit breaker opened")
			c.journalAppend(journal.Event{Event: journal.EventBreakerOpen, Model: modelID})
		}

		failures = append(failures, fmt.Sprintf("%s: %v", modelID, err))
		lastErr = err

		if fault.Classify(err) == fault.Fatal {
			c.logger.Error().Str("role", string(role)).Str("model", modelID).Err(err).
				Msg("fatal model error, abandoning failover")
			fatalModel = modelID
			break
		}

		c.logger.Warn().Str("role", string(role)).Str("model", modelID).Err(err).
			Msg("model invocation failed")
		if i < len(candidates)-1 {
			c.metrics.RecordFailover()
			c.journalAppend(journal.Event{
				Event: journal.EventFailover,
				Model: modelID,
				Error: err.Error(),
			})
			if err := c.sleep(ctx, c.backoff(attempts)); err != nil {
				return nil, err
			}
		}
	}

	if c.cfg.Degradation {
		if res := degradedResult(role, prompt, opts); res != nil {
			c.metrics.RecordDegraded(string(role))
			c.logger.Warn().Str("role", string(role)).Str("fallback", res.ModelUsed).
				Msg("all candidates exhausted, using degraded fallback")
			c.journalAppend(journal.Event{
				Event:  journal.EventDegraded,
				Model:  res.ModelUsed,
				Reason: fmt.Sprintf("role %s exhausted %d candidates", role, len(candidates)),
			})
			return res, nil
		}
	}

	if fatalModel != "" {
		return nil, fmt.Errorf("role %s: fatal error from %s: %w", role, fatalModel, lastErr)
	}
	if lastErr == nil {
		return nil, fault.New(fault.Transient, "role %s: every candidate breaker is open (%s)",
			role, strings.Join(candidates, ", "))
	}
	return nil, fmt.Errorf("role %s: all candidates failed (%s): %w",
		role, strings.Join(failures, "; "), lastErr)
}

// breaker returns the breaker for modelID, creating it on first use.
func (c *Controller) breaker(modelID string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	br, ok := c.breakers[modelID]
	if !ok {
		br = NewCircuitBreaker(modelID, c.cfg.FailureThreshold, c.cfg.MonitoringPeriod, c.cfg.ResetTimeout)
		c.breakers[modelID] = br
	}
	return br
}

// Snapshots exports every breaker for checkpointing, sorted by model ID.
func (c *Controller) Snapshots() []session.BreakerSnapshot {
	c.mu.Lock()
	brs := make([]*CircuitBreaker, 0, len(c.breakers))
	for _, br := range c.breakers {
		brs = append(brs, br)
	}
	c.mu.Unlock()

	snaps := make([]session.BreakerSnapshot, 0, len(brs))
	for _, br := range brs {
		snaps = append(snaps, br.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ModelID < snaps[j].ModelID })
	return snaps
}

// Restore loads checkpointed breaker state for the snapshotted models.
func (c *Controller) Restore(snaps []session.BreakerSnapshot) {
	for _, snap := range snaps {
		c.breaker(snap.ModelID).restore(snap)
	}
}

func (c *Controller) journalAppend(event journal.Event) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Append(event); err != nil {
		c.logger.Warn().Err(err).Msg("journal append failed")
	}
}
