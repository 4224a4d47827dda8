package git

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// newTestRepo initializes a throwaway repository with an identity set so
// commits work in bare CI environments.
func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, args := range [][]string{
		{"config", "user.email", "gantry@example.com"},
		{"config", "user.name", "gantry"},
	} {
		if _, err := r.run(args...); err != nil {
			t.Fatalf("git %v: %v", args, err)
		}
	}
	if err := r.EnsureInitialCommit(); err != nil {
		t.Fatalf("EnsureInitialCommit: %v", err)
	}
	return r
}

func writeFile(t *testing.T, r *Repo, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.Dir(), name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestRequireCleanFreshRepo(t *testing.T) {
	r := newTestRepo(t)
	if err := r.RequireClean(); err != nil {
		t.Errorf("RequireClean on a fresh repo: %v", err)
	}
}

func TestRequireCleanUntrackedFile(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "notes.txt", "do not lose me")

	err := r.RequireClean()
	if !errors.Is(err, ErrDirtyTree) {
		t.Errorf("RequireClean = %v, want ErrDirtyTree for an untracked file", err)
	}
}

func TestRequireCleanAfterCommit(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "main.go", "package main\n")
	rev, err := r.Commit("feat(gantry): add main")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if rev == "" {
		t.Error("Commit returned an empty revision")
	}
	if err := r.RequireClean(); err != nil {
		t.Errorf("RequireClean after commit: %v", err)
	}
}

func TestCommitCleanTree(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.Commit("nothing"); !errors.Is(err, ErrNoChanges) {
		t.Errorf("Commit on a clean tree = %v, want ErrNoChanges", err)
	}
}

func TestResetHardRemovesNewFiles(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "keep.go", "package keep\n")
	rev, err := r.Commit("feat(gantry): keep")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeFile(t, r, "discard.go", "package discard\n")
	if err := r.ResetHard(rev); err != nil {
		t.Fatalf("ResetHard: %v", err)
	}

	if _, err := os.Stat(filepath.Join(r.Dir(), "discard.go")); !os.IsNotExist(err) {
		t.Error("ResetHard left a file created after the target revision")
	}
	if _, err := os.Stat(filepath.Join(r.Dir(), "keep.go")); err != nil {
		t.Errorf("ResetHard removed a committed file: %v", err)
	}
}
