// branch.go handles creating and switching session branches.
package git

import (
	"fmt"
	"strings"
)

const maxBranchLen = 50

// CreateBranch creates a new branch and switches to it.
func (r *Repo) CreateBranch(name string) error {
	if _, err := r.run("checkout", "-b", name); err != nil {
		return err
	}
	return nil
}

// SwitchBranch switches to an existing branch.
func (r *Repo) SwitchBranch(name string) error {
	if _, err := r.run("checkout", name); err != nil {
		return err
	}
	return nil
}

// CurrentBranch returns the name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists reports whether a branch with the given name exists.
func (r *Repo) BranchExists(name string) bool {
	_, err := r.run("rev-parse", "--verify", "refs/heads/"+name)
	return err == nil
}

// Push publishes branch to origin and sets its upstream.
func (r *Repo) Push(branch string) error {
	if _, err := r.run("push", "-u", "origin", branch); err != nil {
		return err
	}
	return nil
}

// SanitizeBranchName turns free text into a usable branch name under the
// given prefix: lowercase, runs of non-alphanumerics collapse to single
// dashes, trimmed to 50 characters.
func SanitizeBranchName(prefix, text string) string {
	var b strings.Builder
	lastDash := true
	for _, c := range strings.ToLower(text) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "session"
	}

	name := prefix + slug
	if len(name) > maxBranchLen {
		name = strings.TrimRight(name[:maxBranchLen], "-")
	}
	return name
}

// SessionBranch builds the branch name for an idea, ensuring uniqueness
// against existing branches by appending a numeric suffix.
func (r *Repo) SessionBranch(prefix, idea string) string {
	name := SanitizeBranchName(prefix, idea)
	if !r.BranchExists(name) {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if !r.BranchExists(candidate) {
			return candidate
		}
	}
}
