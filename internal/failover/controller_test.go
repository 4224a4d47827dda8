package failover

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-dev/gantry/internal/fault"
	"github.com/gantry-dev/gantry/internal/journal"
	"github.com/gantry-dev/gantry/internal/metrics"
	"github.com/gantry-dev/gantry/internal/model"
	"github.com/gantry-dev/gantry/internal/session"
)

// scriptedInvoker answers invocations from a per-model script and records
// the order models were tried in.
type scriptedInvoker struct {
	mu    sync.Mutex
	calls []string
	fn    func(modelID, prompt string) (*model.Output, error)
}

func (s *scriptedInvoker) Invoke(_ context.Context, modelID, prompt string, _ time.Duration) (*model.Output, error) {
	s.mu.Lock()
	s.calls = append(s.calls, modelID)
	s.mu.Unlock()
	return s.fn(modelID, prompt)
}

func transientErr(modelID string) error {
	return &model.InvokeError{Kind: model.KindTimeout, ModelID: modelID, Err: errors.New("deadline exceeded")}
}

func newTestController(inv model.Invoker, mutate func(*Config)) *Controller {
	cfg := Config{
		Candidates: map[Role][]string{
			RoleAnalyzer: {"alpha"},
			RolePlanner:  {"alpha", "beta", "gamma"},
			RoleCoder:    {"alpha", "beta", "gamma"},
			RoleReviewer: {"alpha", "beta"},
		},
		FailureThreshold: 3,
		MonitoringPeriod: 5 * time.Minute,
		ResetTimeout:     time.Minute,
		InvokeTimeout:    time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c := New(inv, cfg, zerolog.Nop(), nil, metrics.New())
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func TestExecutePrimarySucceeds(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return &model.Output{Text: "plan text", CostUSD: 0.05}, nil
	}}
	c := newTestController(inv, nil)

	res, err := c.Execute(context.Background(), RolePlanner, "prompt", Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "alpha", res.ModelUsed)
	assert.False(t, res.UsedFallback)
	assert.False(t, res.Degraded)
	assert.Equal(t, "plan text", res.Output)
	assert.Equal(t, []string{"alpha"}, inv.calls)
}

func TestExecuteFailoverOrdering(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		switch modelID {
		case "alpha":
			return nil, &model.InvokeError{Kind: model.KindTimeout, ModelID: modelID, Err: errors.New("deadline")}
		case "beta":
			return nil, &model.InvokeError{Kind: model.KindMalformedOutput, ModelID: modelID, Err: errors.New("bad json")}
		default:
			return &model.Output{Text: "done"}, nil
		}
	}}
	c := newTestController(inv, nil)

	res, err := c.Execute(context.Background(), RoleCoder, "prompt", Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "gamma", res.ModelUsed)
	assert.True(t, res.UsedFallback)
	assert.False(t, res.Degraded)

	// Each failing candidate is tried exactly once, not retried in place.
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, inv.calls)
}

func TestExecuteSkipsOpenBreaker(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return &model.Output{Text: "ok"}, nil
	}}
	c := newTestController(inv, nil)

	openedAt := time.Now()
	c.Restore([]session.BreakerSnapshot{{ModelID: "alpha", OpenedAt: &openedAt}})

	res, err := c.Execute(context.Background(), RolePlanner, "prompt", Options{})
	require.NoError(t, err)
	assert.Equal(t, "beta", res.ModelUsed)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, []string{"beta"}, inv.calls, "alpha must be skipped, not invoked")
}

func TestExecuteHalfOpenProbeJournaled(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return &model.Output{Text: "ok"}, nil
	}}
	c := newTestController(inv, nil)
	jnl, err := journal.New(t.TempDir())
	require.NoError(t, err)
	c.journal = jnl

	// Opened long enough ago that the reset timeout has lapsed.
	openedAt := time.Now().Add(-2 * time.Minute)
	c.Restore([]session.BreakerSnapshot{{ModelID: "alpha", OpenedAt: &openedAt}})

	res, err := c.Execute(context.Background(), RoleCoder, "prompt", Options{})
	require.NoError(t, err)
	assert.Equal(t, "alpha", res.ModelUsed)
	assert.Equal(t, StateClosed, c.breaker("alpha").State(), "a successful probe closes the breaker")

	events, err := jnl.ReadAll()
	require.NoError(t, err)
	kinds := make([]string, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Event)
	}
	assert.Contains(t, kinds, journal.EventBreakerProbe)
}

func TestExecuteFatalAbandonsFailover(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return nil, &model.InvokeError{Kind: model.KindAuthFailed, ModelID: modelID, Err: errors.New("401")}
	}}
	c := newTestController(inv, nil)

	res, err := c.Execute(context.Background(), RoleCoder, "prompt", Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, fault.Fatal, fault.Classify(err))
	assert.Equal(t, []string{"alpha"}, inv.calls, "remaining candidates must not be tried after a fatal error")
}

func TestExecuteFatalDegradesWhenEnabled(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return nil, &model.InvokeError{Kind: model.KindAuthFailed, ModelID: modelID, Err: errors.New("401")}
	}}
	c := newTestController(inv, func(cfg *Config) { cfg.Degradation = true })

	res, err := c.Execute(context.Background(), RoleCoder, "prompt", Options{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Degraded)
	assert.Equal(t, "degraded-manual", res.ModelUsed)
	assert.Equal(t, []string{"alpha"}, inv.calls,
		"a fatal error exhausts the role without trying the remaining candidates")
}

func TestExecuteFatalSurfacesWhenRoleHasNoFallback(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return nil, &model.InvokeError{Kind: model.KindAuthFailed, ModelID: modelID, Err: errors.New("401")}
	}}
	c := newTestController(inv, func(cfg *Config) { cfg.Degradation = true })

	res, err := c.Execute(context.Background(), RoleAnalyzer, "prompt", Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, fault.Fatal, fault.Classify(err))
	assert.Contains(t, err.Error(), "fatal error from alpha")
}

func TestExecuteAllFailWithoutDegradation(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return nil, transientErr(modelID)
	}}
	c := newTestController(inv, nil)

	res, err := c.Execute(context.Background(), RoleCoder, "prompt", Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, fault.Transient, fault.Classify(err))
	assert.Contains(t, err.Error(), "all candidates failed")
	assert.Len(t, inv.calls, 3)
}

func TestExecuteDegradedPlanner(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return nil, transientErr(modelID)
	}}
	c := newTestController(inv, func(cfg *Config) { cfg.Degradation = true })

	res, err := c.Execute(context.Background(), RolePlanner, "prompt", Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Degraded)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "degraded-template", res.ModelUsed)
	assert.Equal(t, 2, strings.Count(res.Output, "## Milestone:"), "degraded plan should carry two milestones")
	assert.Contains(t, res.Output, "confidence:")
}

func TestExecuteDegradedCoder(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return nil, transientErr(modelID)
	}}
	c := newTestController(inv, func(cfg *Config) { cfg.Degradation = true })

	res, err := c.Execute(context.Background(), RoleCoder, "add search filters", Options{DegradedFilePath: "notes/worker-2.md"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, "degraded-manual", res.ModelUsed)

	var payload struct {
		Files []struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		} `json:"files"`
		Notes string `json:"notes"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Output), &payload))
	require.Len(t, payload.Files, 1)
	assert.Equal(t, "notes/worker-2.md", payload.Files[0].Path)
	assert.Contains(t, payload.Files[0].Content, "add search filters")
}

func TestExecuteDegradedReviewer(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return nil, transientErr(modelID)
	}}
	c := newTestController(inv, func(cfg *Config) { cfg.Degradation = true })

	res, err := c.Execute(context.Background(), RoleReviewer, "prompt", Options{})
	require.NoError(t, err)
	assert.Equal(t, "degraded-optimistic", res.ModelUsed)

	var review struct {
		Approved   bool    `json:"approved"`
		Confidence float64 `json:"confidence"`
		Summary    string  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Output), &review))
	assert.True(t, review.Approved)
	assert.InDelta(t, 0.3, review.Confidence, 0.001)
	assert.NotEmpty(t, review.Summary)
}

func TestExecuteAnalyzerHasNoDegradedMode(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return nil, transientErr(modelID)
	}}
	c := newTestController(inv, func(cfg *Config) { cfg.Degradation = true })

	res, err := c.Execute(context.Background(), RoleAnalyzer, "prompt", Options{})
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestExecuteNoCandidatesConfigured(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return &model.Output{Text: "ok"}, nil
	}}
	c := newTestController(inv, func(cfg *Config) { delete(cfg.Candidates, RoleReviewer) })

	_, err := c.Execute(context.Background(), RoleReviewer, "prompt", Options{})
	require.Error(t, err)
	assert.Equal(t, fault.Fatal, fault.Classify(err))
}

func TestExecuteOpensBreakerAcrossCalls(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		if modelID == "alpha" {
			return nil, transientErr(modelID)
		}
		return &model.Output{Text: "ok"}, nil
	}}
	c := newTestController(inv, func(cfg *Config) { cfg.FailureThreshold = 2 })

	// Two failed calls open alpha's breaker.
	for i := 0; i < 2; i++ {
		_, err := c.Execute(context.Background(), RoleCoder, "prompt", Options{})
		require.NoError(t, err)
	}
	inv.mu.Lock()
	inv.calls = nil
	inv.mu.Unlock()

	_, err := c.Execute(context.Background(), RoleCoder, "prompt", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, inv.calls, "alpha's open breaker should skip it entirely")
}

func TestExecuteAllBreakersOpen(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return &model.Output{Text: "ok"}, nil
	}}
	c := newTestController(inv, nil)

	openedAt := time.Now()
	c.Restore([]session.BreakerSnapshot{
		{ModelID: "alpha", OpenedAt: &openedAt},
		{ModelID: "beta", OpenedAt: &openedAt},
	})

	_, err := c.Execute(context.Background(), RoleReviewer, "prompt", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "breaker")
	assert.Empty(t, inv.calls)
}

func TestExecuteContextCanceled(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return &model.Output{Text: "ok"}, nil
	}}
	c := newTestController(inv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Execute(ctx, RolePlanner, "prompt", Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, inv.calls)
}

func TestSnapshotsSortedAndRestorable(t *testing.T) {
	inv := &scriptedInvoker{fn: func(modelID, _ string) (*model.Output, error) {
		return nil, transientErr(modelID)
	}}
	c := newTestController(inv, nil)

	_, err := c.Execute(context.Background(), RoleCoder, "prompt", Options{})
	require.Error(t, err)

	snaps := c.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "alpha", snaps[0].ModelID)
	assert.Equal(t, "beta", snaps[1].ModelID)
	assert.Equal(t, "gamma", snaps[2].ModelID)
	for _, snap := range snaps {
		assert.Len(t, snap.Failures, 1, "model %s", snap.ModelID)
	}

	fresh := newTestController(inv, nil)
	fresh.Restore(snaps)
	restored := fresh.Snapshots()
	require.Len(t, restored, 3)
	for i := range snaps {
		assert.Equal(t, snaps[i].ModelID, restored[i].ModelID)
		assert.Len(t, restored[i].Failures, len(snaps[i].Failures))
	}
}
