// Package ticket files follow-up issues when a session ends in a state
// that needs a human: blocked sessions, failed sessions, and milestones
// that were only partially applied.
//
// Two implementations exist. GitHubTracker files real issues through the
// GitHub API. Logbook appends issues to a local JSONL file for projects
// that have no remote configured. Callers must treat ticket creation as
// best-effort: a tracker error is logged, never propagated into the
// execution state machine.
package ticket

import "context"

// Issue is the tracker-agnostic payload for a follow-up item.
type Issue struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

// Tracker files and updates follow-up issues.
type Tracker interface {
	// CreateIssue files a new issue and returns its identifier
	// (an issue number for GitHub, a generated id for the logbook).
	CreateIssue(ctx context.Context, issue Issue) (string, error)

	// Comment appends a comment to an existing issue.
	Comment(ctx context.Context, issueID, text string) error

	// Close marks an issue resolved.
	Close(ctx context.Context, issueID string) error
}
