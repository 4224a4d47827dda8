// Package journal provides structured event logging.
// This file appends JSON events to the per-session journal.jsonl.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventSessionStarted     = "session_started"
	EventPhaseStarted       = "phase_started"
	EventPhaseCompleted     = "phase_completed"
	EventPhaseRetry         = "phase_retry"
	EventModelInvoked       = "model_invoked"
	EventFailover           = "failover"
	EventBreakerOpen        = "breaker_open"
	EventBreakerProbe       = "breaker_probe"
	EventDegraded           = "degraded"
	EventMilestoneStarted   = "milestone_started"
	EventWorkerCompleted    = "worker_completed"
	EventMilestoneCommitted = "milestone_committed"
	EventRollback           = "rollback"
	EventTestStep           = "test_step"
	EventTicketCreated      = "ticket_created"
	EventSessionBlocked     = "session_blocked"
	EventSessionFailed      = "session_failed"
	EventSessionInterrupted = "session_interrupted"
	EventSessionCompleted   = "session_completed"
)

// Event is a single structured record written to the journal.
type Event struct {
	Time       time.Time              `json:"time"`
	Event      string                 `json:"event"`
	Session    string                 `json:"session,omitempty"`
	Phase      string                 `json:"phase,omitempty"`
	Milestone  string                 `json:"milestone,omitempty"`
	Model      string                 `json:"model,omitempty"`
	Worker     int                    `json:"worker,omitempty"`
	Attempt    int                    `json:"attempt,omitempty"`
	Step       string                 `json:"step,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Revision   string                 `json:"revision,omitempty"`
	Applied    int                    `json:"applied,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	CostUSD    float64                `json:"cost_usd,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Journal writes append-only JSONL events to a session's journal file.
type Journal struct {
	path string
	mu   sync.Mutex
}

// New creates a Journal writing to journal.jsonl inside sessionDir.
// Creates the directory if it does not already exist and never truncates
// an existing journal.
func New(sessionDir string) (*Journal, error) {
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	return &Journal{
		path: filepath.Join(sessionDir, "journal.jsonl"),
	}, nil
}

// Append writes a single Event as one JSON line. If event.Time is the
// zero value it is set to time.Now().UTC(). The file is opened in append
// mode, written to, and closed. Thread-safe via mutex.
func (j *Journal) Append(event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal journal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write journal event: %w", err)
	}

	return nil
}

// ReadAll reads and parses all events from the journal. Returns an empty
// slice (not an error) if the file does not exist. Malformed lines are
// skipped so a truncated tail does not hide the rest of the record.
func (j *Journal) ReadAll() ([]Event, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal file: %w", err)
	}

	return events, nil
}
