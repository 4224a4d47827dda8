// Package git wraps the Git operations gantry needs, bound to a single
// repository directory.
package git

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	ErrGitNotFound = errors.New("git not found in PATH")
	ErrNoChanges   = errors.New("no changes to commit")
	ErrNotARepo    = errors.New("not a git repository")
	ErrDirtyTree   = errors.New("working tree has uncommitted changes")
)

// Repo is a handle to one git repository.
type Repo struct {
	dir string
}

// Open verifies dir is inside a git repository and returns a handle.
func Open(dir string) (*Repo, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, ErrGitNotFound
	}
	r := &Repo{dir: dir}
	if _, err := r.run("rev-parse", "--git-dir"); err != nil {
		return nil, ErrNotARepo
	}
	return r, nil
}

// Init returns a handle to dir, running git init first if dir is not
// already a repository.
func Init(dir string) (*Repo, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, ErrGitNotFound
	}
	r := &Repo{dir: dir}
	if _, err := r.run("rev-parse", "--git-dir"); err != nil {
		if _, initErr := r.run("init"); initErr != nil {
			return nil, initErr
		}
	}
	return r, nil
}

// Dir returns the directory the handle was opened with.
func (r *Repo) Dir() string { return r.dir }

// run executes one git command in the repository directory and returns
// its trimmed combined output.
func (r *Repo) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// HasChanges reports whether the working tree has uncommitted changes.
func (r *Repo) HasChanges() (bool, error) {
	out, err := r.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// RequireClean returns ErrDirtyTree when the working tree has
// uncommitted or untracked files. Sessions stage and reset the whole
// tree, so anything the user left uncommitted would be swept into a
// milestone commit or deleted on rollback.
func (r *Repo) RequireClean() error {
	has, err := r.HasChanges()
	if err != nil {
		return err
	}
	if has {
		return ErrDirtyTree
	}
	return nil
}

// Commit stages everything and commits with message, returning the new
// revision. Returns ErrNoChanges when the tree is clean.
func (r *Repo) Commit(message string) (string, error) {
	has, err := r.HasChanges()
	if err != nil {
		return "", err
	}
	if !has {
		return "", ErrNoChanges
	}
	if _, err := r.run("add", "-A"); err != nil {
		return "", err
	}
	if _, err := r.run("commit", "-m", message); err != nil {
		return "", err
	}
	return r.HeadRevision()
}

// HeadRevision returns the full hash of HEAD.
func (r *Repo) HeadRevision() (string, error) {
	return r.run("rev-parse", "HEAD")
}

// Diff returns the committed changes between fromRevision and HEAD.
func (r *Repo) Diff(fromRevision string) (string, error) {
	cmd := exec.Command("git", "diff", fromRevision, "HEAD")
	cmd.Dir = r.dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff %s HEAD: %w", fromRevision, err)
	}
	return string(out), nil
}

// ResetHard discards every change after revision, including files created
// since (untracked files survive a bare reset).
func (r *Repo) ResetHard(revision string) error {
	if _, err := r.run("reset", "--hard", revision); err != nil {
		return err
	}
	if _, err := r.run("clean", "-fd"); err != nil {
		return err
	}
	return nil
}

// EnsureInitialCommit creates an empty initial commit if the repo has
// none. Git cannot create branches in a repo with no commits.
func (r *Repo) EnsureInitialCommit() error {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = r.dir
	if err := cmd.Run(); err != nil {
		if _, commitErr := r.run("commit", "--allow-empty", "-m", "chore: initialize repository"); commitErr != nil {
			return fmt.Errorf("creating initial commit: %w", commitErr)
		}
	}
	return nil
}
