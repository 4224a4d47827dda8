// logbook.go implements Tracker as an append-only JSONL file under the
// project's .gantry directory. It is the fallback when no remote tracker
// is configured, so blocked and failed sessions still leave a record.
package ticket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	entryIssue   = "issue"
	entryComment = "comment"
	entryClose   = "close"
)

// logEntry is one line of the logbook. Issues, comments, and closes are
// all appended; the current state of an issue is derived by replay.
type logEntry struct {
	Kind   string    `json:"kind"`
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Title  string    `json:"title,omitempty"`
	Body   string    `json:"body,omitempty"`
	Labels []string  `json:"labels,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// Logbook appends ticket records to dir/tickets.jsonl.
type Logbook struct {
	path string
	mu   sync.Mutex
}

// NewLogbook creates the directory if needed and returns a logbook
// backed by tickets.jsonl inside it.
func NewLogbook(dir string) (*Logbook, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logbook dir: %w", err)
	}
	return &Logbook{path: filepath.Join(dir, "tickets.jsonl")}, nil
}

// Path returns the location of the logbook file.
func (l *Logbook) Path() string {
	return l.path
}

// CreateIssue appends an issue entry and returns a generated id of the
// form LB-<n>, numbered by issues already in the file.
func (l *Logbook) CreateIssue(_ context.Context, issue Issue) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return "", err
	}
	issues := 0
	for _, e := range entries {
		if e.Kind == entryIssue {
			issues++
		}
	}
	id := fmt.Sprintf("LB-%d", issues+1)
	err = l.append(logEntry{
		Kind:   entryIssue,
		ID:     id,
		Time:   time.Now().UTC(),
		Title:  issue.Title,
		Body:   issue.Body,
		Labels: issue.Labels,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Comment appends a comment entry for an existing issue.
func (l *Logbook) Comment(_ context.Context, issueID, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.require(issueID); err != nil {
		return err
	}
	return l.append(logEntry{
		Kind: entryComment,
		ID:   issueID,
		Time: time.Now().UTC(),
		Text: text,
	})
}

// Close appends a close entry for an existing issue.
func (l *Logbook) Close(_ context.Context, issueID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.require(issueID); err != nil {
		return err
	}
	return l.append(logEntry{
		Kind: entryClose,
		ID:   issueID,
		Time: time.Now().UTC(),
	})
}

// Open reports the issues that have no close entry, newest last.
func (l *Logbook) Open() ([]Issue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return nil, err
	}
	closed := make(map[string]bool)
	for _, e := range entries {
		if e.Kind == entryClose {
			closed[e.ID] = true
		}
	}
	var open []Issue
	for _, e := range entries {
		if e.Kind == entryIssue && !closed[e.ID] {
			open = append(open, Issue{Title: e.Title, Body: e.Body, Labels: e.Labels})
		}
	}
	return open, nil
}

func (l *Logbook) require(issueID string) error {
	entries, err := l.read()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Kind == entryIssue && e.ID == issueID {
			return nil
		}
	}
	return fmt.Errorf("logbook has no issue %s", issueID)
}

func (l *Logbook) append(e logEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling logbook entry: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening logbook: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing logbook entry: %w", err)
	}
	return nil
}

func (l *Logbook) read() ([]logEntry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening logbook: %w", err)
	}
	defer f.Close()

	var entries []logEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e logEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading logbook: %w", err)
	}
	return entries, nil
}
