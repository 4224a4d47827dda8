package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// makeSessionDir creates a session directory and backdates its mtime.
func makeSessionDir(t *testing.T, sessionsDir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(sessionsDir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("creating session dir %s: %v", name, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("backdating %s: %v", name, err)
	}
	return name
}

func TestPruneByAgeRemovesOldSessions(t *testing.T) {
	dir := t.TempDir()
	old := makeSessionDir(t, dir, "0b8f3a52-aaaa-4000-8000-000000000001", 60*24*time.Hour)
	recent := makeSessionDir(t, dir, "0b8f3a52-aaaa-4000-8000-000000000002", 5*24*time.Hour)

	pruned, err := PruneByAge(dir, 30*24*time.Hour, false)
	if err != nil {
		t.Fatalf("PruneByAge failed: %v", err)
	}

	if len(pruned) != 1 || pruned[0] != old {
		t.Errorf("expected pruned=[%s], got %v", old, pruned)
	}
	if _, err := os.Stat(filepath.Join(dir, old)); !os.IsNotExist(err) {
		t.Errorf("expected %s to be deleted", old)
	}
	if _, err := os.Stat(filepath.Join(dir, recent)); err != nil {
		t.Errorf("expected %s to still exist: %v", recent, err)
	}
}

func TestPruneByAgeDryRun(t *testing.T) {
	dir := t.TempDir()
	old := makeSessionDir(t, dir, "0b8f3a52-aaaa-4000-8000-000000000003", 60*24*time.Hour)

	pruned, err := PruneByAge(dir, 30*24*time.Hour, true)
	if err != nil {
		t.Fatalf("PruneByAge dry-run failed: %v", err)
	}

	if len(pruned) != 1 || pruned[0] != old {
		t.Errorf("expected pruned=[%s], got %v", old, pruned)
	}
	if _, err := os.Stat(filepath.Join(dir, old)); err != nil {
		t.Errorf("expected %s to still exist in dry-run: %v", old, err)
	}
}

func TestPruneByAgeIgnoresFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stray.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	stamp := time.Now().Add(-90 * 24 * time.Hour)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatal(err)
	}

	pruned, err := PruneByAge(dir, 30*24*time.Hour, false)
	if err != nil {
		t.Fatalf("PruneByAge failed: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected no pruned entries, got %v", pruned)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("stray file should survive pruning: %v", err)
	}
}

func TestPruneByAgeNonexistentDir(t *testing.T) {
	pruned, err := PruneByAge(filepath.Join(t.TempDir(), "missing"), 30*24*time.Hour, false)
	if err != nil {
		t.Fatalf("expected nil error for missing dir, got: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected empty pruned list, got %v", pruned)
	}
}

func TestPruneKeepRecentRemovesOldest(t *testing.T) {
	dir := t.TempDir()
	d1 := makeSessionDir(t, dir, "session-oldest", 4*24*time.Hour)
	d2 := makeSessionDir(t, dir, "session-older", 3*24*time.Hour)
	makeSessionDir(t, dir, "session-newer", 2*24*time.Hour)
	makeSessionDir(t, dir, "session-newest", 1*24*time.Hour)

	pruned, err := PruneKeepRecent(dir, 2, false)
	if err != nil {
		t.Fatalf("PruneKeepRecent failed: %v", err)
	}

	if len(pruned) != 2 || pruned[0] != d1 || pruned[1] != d2 {
		t.Errorf("expected pruned=[%s %s], got %v", d1, d2, pruned)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected 2 remaining dirs, got %d", len(entries))
	}
}

func TestPruneKeepRecentKeepMoreThanExist(t *testing.T) {
	dir := t.TempDir()
	makeSessionDir(t, dir, "session-only", 24*time.Hour)

	pruned, err := PruneKeepRecent(dir, 5, false)
	if err != nil {
		t.Fatalf("PruneKeepRecent failed: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected no pruned dirs, got %v", pruned)
	}
}

func TestPruneKeepRecentDryRun(t *testing.T) {
	dir := t.TempDir()
	d1 := makeSessionDir(t, dir, "session-a", 3*24*time.Hour)
	makeSessionDir(t, dir, "session-b", 24*time.Hour)

	pruned, err := PruneKeepRecent(dir, 1, true)
	if err != nil {
		t.Fatalf("PruneKeepRecent dry-run failed: %v", err)
	}
	if len(pruned) != 1 || pruned[0] != d1 {
		t.Errorf("expected pruned=[%s], got %v", d1, pruned)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected 2 dirs to remain in dry-run, got %d", len(entries))
	}
}
