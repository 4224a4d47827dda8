// Package cleanup prunes old session directories under
// .gantry/sessions. Directories are named by session UUID, so age
// comes from filesystem modification time rather than the name.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// PruneByAge removes session directories whose last modification is
// older than maxAge. With dryRun nothing is deleted; the return value
// lists the directory names that were (or would be) removed.
func PruneByAge(sessionsDir string, maxAge time.Duration, dryRun bool) ([]string, error) {
	entries, err := readSessionDirs(sessionsDir)
	if err != nil || entries == nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge)
	var pruned []string
	for _, e := range entries {
		if e.modTime.After(cutoff) {
			continue
		}
		if !dryRun {
			if err := os.RemoveAll(filepath.Join(sessionsDir, e.name)); err != nil {
				return pruned, fmt.Errorf("removing %s: %w", e.name, err)
			}
		}
		pruned = append(pruned, e.name)
	}
	return pruned, nil
}

// PruneKeepRecent removes all session directories except the keep most
// recently modified ones.
func PruneKeepRecent(sessionsDir string, keep int, dryRun bool) ([]string, error) {
	entries, err := readSessionDirs(sessionsDir)
	if err != nil || len(entries) <= keep {
		return nil, err
	}

	// Oldest first; everything before the kept tail goes.
	toRemove := entries[:len(entries)-keep]
	var pruned []string
	for _, e := range toRemove {
		if !dryRun {
			if err := os.RemoveAll(filepath.Join(sessionsDir, e.name)); err != nil {
				return pruned, fmt.Errorf("removing %s: %w", e.name, err)
			}
		}
		pruned = append(pruned, e.name)
	}
	return pruned, nil
}

type dirEntry struct {
	name    string
	modTime time.Time
}

// readSessionDirs lists session directories sorted oldest first. A
// missing sessions directory is not an error; there is nothing to prune.
func readSessionDirs(sessionsDir string) ([]dirEntry, error) {
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sessions directory: %w", err)
	}

	var dirs []dirEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, dirEntry{name: e.Name(), modTime: info.ModTime()})
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].modTime.Before(dirs[j].modTime) })
	return dirs, nil
}
