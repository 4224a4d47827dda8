// github.go implements Tracker against the GitHub issues API using a
// personal access token.
package ticket

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v60/github"
)

// GitHubTracker files issues in a single repository.
type GitHubTracker struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubTracker builds a tracker for repo, given as "owner/name".
func NewGitHubTracker(token, repo string) (*GitHubTracker, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("repository %q is not in owner/name form", repo)
	}
	if token == "" {
		return nil, fmt.Errorf("github token is empty")
	}
	return &GitHubTracker{
		client: github.NewClient(nil).WithAuthToken(token),
		owner:  owner,
		repo:   name,
	}, nil
}

// CreateIssue files the issue and returns its number as a string.
func (t *GitHubTracker) CreateIssue(ctx context.Context, issue Issue) (string, error) {
	req := &github.IssueRequest{
		Title: &issue.Title,
		Body:  &issue.Body,
	}
	if len(issue.Labels) > 0 {
		req.Labels = &issue.Labels
	}
	created, _, err := t.client.Issues.Create(ctx, t.owner, t.repo, req)
	if err != nil {
		return "", fmt.Errorf("creating issue: %w", err)
	}
	return strconv.Itoa(created.GetNumber()), nil
}

// Comment appends text to the issue identified by its number.
func (t *GitHubTracker) Comment(ctx context.Context, issueID, text string) error {
	number, err := strconv.Atoi(issueID)
	if err != nil {
		return fmt.Errorf("issue id %q is not a number: %w", issueID, err)
	}
	_, _, err = t.client.Issues.CreateComment(ctx, t.owner, t.repo, number, &github.IssueComment{
		Body: &text,
	})
	if err != nil {
		return fmt.Errorf("commenting on issue %d: %w", number, err)
	}
	return nil
}

// Close marks the issue closed.
func (t *GitHubTracker) Close(ctx context.Context, issueID string) error {
	number, err := strconv.Atoi(issueID)
	if err != nil {
		return fmt.Errorf("issue id %q is not a number: %w", issueID, err)
	}
	state := "closed"
	_, _, err = t.client.Issues.Edit(ctx, t.owner, t.repo, number, &github.IssueRequest{
		State: &state,
	})
	if err != nil {
		return fmt.Errorf("closing issue %d: %w", number, err)
	}
	return nil
}

// CreatePullRequest opens a pull request from head into base and returns
// its URL. This sits outside the Tracker interface: only the pr command
// needs it, and the logbook has no equivalent.
func (t *GitHubTracker) CreatePullRequest(ctx context.Context, title, body, head, base string) (string, error) {
	if base == "" {
		base = "main"
	}
	pr, _, err := t.client.PullRequests.Create(ctx, t.owner, t.repo, &github.NewPullRequest{
		Title: &title,
		Body:  &body,
		Head:  &head,
		Base:  &base,
	})
	if err != nil {
		return "", fmt.Errorf("creating pull request: %w", err)
	}
	return pr.GetHTMLURL(), nil
}
